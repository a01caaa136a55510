package notify

import (
	"time"

	"github.com/dexguard/dexguard/internal/event"
)

// Alert is one structured notification, appended to history on every
// Notify call.
type Alert struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Severity     event.Severity `json:"severity"`
	Payload      map[string]any `json:"payload,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	Acknowledged bool           `json:"acknowledged"`
}

// ChannelState is the operator-visible configuration of one channel.
type ChannelState struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Enabled  bool   `json:"enabled"`
	Priority int    `json:"priority"`
}
