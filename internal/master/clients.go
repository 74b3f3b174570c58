package master

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mikeyhodl/quote-bot/internal/logging"
	"github.com/mikeyhodl/quote-bot/internal/util"
)

// loggedTextLimit bounds how much message text ends up in the log.
const loggedTextLimit = 120

// logMessenger is the default MessagingClient. It records outbound
// messages in the log stream; a real bot-platform client replaces it via
// WithMessenger.
type logMessenger struct {
	logger *logging.Logger
}

func (m *logMessenger) SendMessage(ctx context.Context, chatID int64, text string) error {
	m.logger.Info("outbound message", "chat_id", chatID, "text", util.TruncateString(text, loggedTextLimit))
	return nil
}

// logInvoker is the default PrivilegedInvoker. It acknowledges each call
// with an echo of the method so workers relying on privileged calls get a
// well-formed response rather than a hang.
type logInvoker struct {
	logger *logging.Logger
}

func (i *logInvoker) Invoke(ctx context.Context, method string, args []json.RawMessage) (json.RawMessage, error) {
	i.logger.Info("privileged call", "method", method, "args", len(args))

	result, err := json.Marshal(map[string]string{"acknowledged": method})
	if err != nil {
		return nil, fmt.Errorf("master: encode result: %w", err)
	}
	return result, nil
}
