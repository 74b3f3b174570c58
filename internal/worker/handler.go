package worker

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/mikeyhodl/quote-bot/internal/routing"
)

// maxRemembered bounds the per-chat message memory.
const maxRemembered = 100

// QuoteHandler is the default update handler: it remembers recent messages
// per chat and serves one back on /quote. State is in-memory only; a
// replacement worker starts empty, which the protocol tolerates.
type QuoteHandler struct {
	mu     sync.Mutex
	recent map[int64][]string // chat id -> remembered lines
}

// NewQuoteHandler creates an empty QuoteHandler.
func NewQuoteHandler() *QuoteHandler {
	return &QuoteHandler{recent: make(map[int64][]string)}
}

// Handle processes one update.
func (h *QuoteHandler) Handle(ctx context.Context, u routing.Update, c *Client) error {
	if u.ChatID == 0 {
		return nil
	}

	if !strings.HasPrefix(u.Text, string(routing.CommandMarker)) {
		h.remember(u.ChatID, u.Text)
		return nil
	}

	cmd := u.Text
	if i := strings.IndexAny(cmd, " @"); i > 0 {
		cmd = cmd[:i]
	}

	switch cmd {
	case "/quote":
		line, ok := h.pick(u.ChatID)
		if !ok {
			return c.SendMessage(u.ChatID, "Nothing memorable has been said here yet.")
		}
		return c.SendMessage(u.ChatID, fmt.Sprintf("%q", line))
	case "/start", "/help":
		return c.SendMessage(u.ChatID, "I remember what this chat says. Ask /quote to hear it again.")
	default:
		// Unknown commands are not ours to answer.
		return nil
	}
}

// remember stores a line for the chat, keeping the newest maxRemembered.
func (h *QuoteHandler) remember(chatID int64, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	lines := append(h.recent[chatID], text)
	if len(lines) > maxRemembered {
		lines = lines[len(lines)-maxRemembered:]
	}
	h.recent[chatID] = lines
}

// pick returns a random remembered line for the chat.
func (h *QuoteHandler) pick(chatID int64) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	lines := h.recent[chatID]
	if len(lines) == 0 {
		return "", false
	}
	return lines[rand.Intn(len(lines))], true
}
