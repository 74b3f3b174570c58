package routing

import (
	"strings"
	"testing"
)

func TestParse_MessageFields(t *testing.T) {
	raw := []byte(`{"update_id":7,"message":{"from":{"id":42},"chat":{"id":-100123},"text":"/quote add"}}`)
	u := Parse(raw)

	if u.SenderID != 42 {
		t.Errorf("SenderID = %d, want 42", u.SenderID)
	}
	if u.ChatID != -100123 {
		t.Errorf("ChatID = %d, want -100123", u.ChatID)
	}
	if u.Text != "/quote add" {
		t.Errorf("Text = %q, want %q", u.Text, "/quote add")
	}
	if string(u.Raw) != string(raw) {
		t.Error("Raw payload should be preserved verbatim")
	}
}

func TestParse_EditedMessage(t *testing.T) {
	u := Parse([]byte(`{"edited_message":{"from":{"id":9},"chat":{"id":5},"text":"fixed"}}`))
	if u.SenderID != 9 || u.ChatID != 5 || u.Text != "fixed" {
		t.Errorf("got sender=%d chat=%d text=%q", u.SenderID, u.ChatID, u.Text)
	}
}

func TestParse_CallbackQuery(t *testing.T) {
	u := Parse([]byte(`{"callback_query":{"from":{"id":3},"message":{"chat":{"id":8}},"data":"page:2"}}`))
	if u.SenderID != 3 {
		t.Errorf("SenderID = %d, want 3", u.SenderID)
	}
	if u.ChatID != 8 {
		t.Errorf("ChatID = %d, want 8", u.ChatID)
	}
	if u.Text != "page:2" {
		t.Errorf("Text = %q, want %q", u.Text, "page:2")
	}
}

func TestParse_Malformed(t *testing.T) {
	u := Parse([]byte(`{not json`))
	if u.SenderID != 0 || u.ChatID != 0 || u.Text != "" {
		t.Errorf("malformed payload should yield zero identity, got %+v", u)
	}
}

func TestIdentify_Namespaces(t *testing.T) {
	tests := []struct {
		name   string
		update Update
		want   string
	}{
		{"sender wins", Update{SenderID: 42, ChatID: 7}, "u:42"},
		{"chat fallback", Update{ChatID: -100123}, "c:-100123"},
		{"sender only", Update{SenderID: 1}, "u:1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Identify(tt.update); got != tt.want {
				t.Errorf("Identify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIdentify_RandomFallback(t *testing.T) {
	u := Update{}
	first := Identify(u)
	if !strings.HasPrefix(first, "r:") {
		t.Fatalf("fallback key %q should carry the r: namespace", first)
	}

	// No stickiness: repeated calls should not converge on one key.
	same := true
	for i := 0; i < 16; i++ {
		if Identify(u) != first {
			same = false
			break
		}
	}
	if same {
		t.Error("fallback keys should vary between calls")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Priority
	}{
		{"command", "/start", PriorityCommand},
		{"command with args", "/quote random", PriorityCommand},
		{"plain text", "hello", PriorityDefault},
		{"slash mid-text", "a/b", PriorityDefault},
		{"empty", "", PriorityDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(Update{Text: tt.text}); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestRoute_Deterministic(t *testing.T) {
	for _, key := range []string{"u:42", "c:-100123", "r:deadbeef"} {
		first := Route(key, 4)
		for i := 0; i < 10; i++ {
			if got := Route(key, 4); got != first {
				t.Fatalf("Route(%q, 4) changed between calls: %d then %d", key, first, got)
			}
		}
		if first < 0 || first >= 4 {
			t.Errorf("Route(%q, 4) = %d, out of range", key, first)
		}
	}
}

func TestRoute_SameSenderSameSlot(t *testing.T) {
	a := Parse([]byte(`{"message":{"from":{"id":42},"chat":{"id":1},"text":"one"}}`))
	b := Parse([]byte(`{"message":{"from":{"id":42},"chat":{"id":2},"text":"two"}}`))
	if Route(Identify(a), 8) != Route(Identify(b), 8) {
		t.Error("updates from the same sender should route to the same slot")
	}
}

func TestRoute_DegenerateSlotCount(t *testing.T) {
	if got := Route("u:42", 0); got != 0 {
		t.Errorf("Route with 0 slots = %d, want 0", got)
	}
	if got := Route("u:42", -3); got != 0 {
		t.Errorf("Route with negative slots = %d, want 0", got)
	}
}
