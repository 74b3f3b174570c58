package routing

import (
	"fmt"
	"math/rand"
	"strconv"
)

// Priority is the coarse ordering class applied to queued updates.
// Higher values are dispatched first.
type Priority int

const (
	// PriorityDefault covers all ordinary updates.
	PriorityDefault Priority = iota

	// PriorityCommand covers updates whose text begins with the command
	// marker. Commands outrank everything else in the overflow queue.
	PriorityCommand
)

// String returns a human-readable name for the priority tier.
func (p Priority) String() string {
	switch p {
	case PriorityCommand:
		return "command"
	case PriorityDefault:
		return "default"
	default:
		return "unknown"
	}
}

// CommandMarker is the leading character that marks an update as a command.
const CommandMarker = '/'

// Key namespaces. The prefix keeps sender ids, chat ids, and random
// fallbacks from colliding in the hash space.
const (
	nsSender   = "u:"
	nsChat     = "c:"
	nsFallback = "r:"
)

// Identify derives the routing key for an update. Sender identity wins,
// then chat identity. Updates with neither get a fresh random key on every
// call, so unattributable traffic has no slot stickiness.
func Identify(u Update) string {
	if u.SenderID != 0 {
		return nsSender + strconv.FormatInt(u.SenderID, 10)
	}
	if u.ChatID != 0 {
		return nsChat + strconv.FormatInt(u.ChatID, 10)
	}
	return fmt.Sprintf("%s%08x", nsFallback, rand.Uint32())
}

// Classify returns the priority tier for an update. Only non-empty text
// beginning with the command marker counts as a command.
func Classify(u Update) Priority {
	if len(u.Text) > 0 && u.Text[0] == CommandMarker {
		return PriorityCommand
	}
	return PriorityDefault
}

// Route maps a routing key onto a slot index in [0, slots). The checksum is
// a plain byte sum, which is stable and order-independent enough for slot
// selection. A non-positive slot count returns 0 rather than panicking.
func Route(key string, slots int) int {
	if slots <= 0 {
		return 0
	}
	var sum int
	for i := 0; i < len(key); i++ {
		sum += int(key[i])
	}
	return sum % slots
}
