package routing

import "encoding/json"

// Update is a single inbound bot-platform update. The raw payload is kept
// opaque; only the identity and text fields needed for routing decisions
// are extracted.
type Update struct {
	// Raw is the update payload exactly as received. It is forwarded to
	// workers untouched.
	Raw json.RawMessage

	// SenderID is the platform identifier of the sending user, or 0 when
	// the update carries no sender.
	SenderID int64

	// ChatID is the platform identifier of the conversation, or 0 when
	// the update carries no chat.
	ChatID int64

	// Text is the textual content of the update, if any.
	Text string
}

// updateEnvelope mirrors the subset of the platform update schema that
// routing cares about. Unknown fields are ignored.
type updateEnvelope struct {
	Message       *messageBody `json:"message"`
	EditedMessage *messageBody `json:"edited_message"`
	CallbackQuery *struct {
		From    *peerBody    `json:"from"`
		Message *messageBody `json:"message"`
		Data    string       `json:"data"`
	} `json:"callback_query"`
}

type messageBody struct {
	From *peerBody `json:"from"`
	Chat *peerBody `json:"chat"`
	Text string    `json:"text"`
}

type peerBody struct {
	ID int64 `json:"id"`
}

// Parse extracts routing identity from a raw update payload. Malformed or
// unrecognized payloads yield an Update with zero identity fields; such
// updates route via the random-fallback namespace.
func Parse(raw []byte) Update {
	u := Update{Raw: json.RawMessage(raw)}

	var env updateEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return u
	}

	msg := env.Message
	if msg == nil {
		msg = env.EditedMessage
	}
	if msg == nil && env.CallbackQuery != nil {
		if env.CallbackQuery.From != nil {
			u.SenderID = env.CallbackQuery.From.ID
		}
		if env.CallbackQuery.Message != nil && env.CallbackQuery.Message.Chat != nil {
			u.ChatID = env.CallbackQuery.Message.Chat.ID
		}
		u.Text = env.CallbackQuery.Data
		return u
	}
	if msg == nil {
		return u
	}

	if msg.From != nil {
		u.SenderID = msg.From.ID
	}
	if msg.Chat != nil {
		u.ChatID = msg.Chat.ID
	}
	u.Text = msg.Text
	return u
}
