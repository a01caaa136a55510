package protocol

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dexguard/dexguard/internal/event"
)

// LoggingActions returns a callback for every known action that logs the
// invocation and acknowledges it. The trading engine replaces these with
// real callbacks at integration time; until then every playbook remains
// executable end to end.
func LoggingActions() map[string]ActionFunc {
	out := make(map[string]ActionFunc, len(KnownActions()))
	for _, name := range KnownActions() {
		name := name
		out[name] = func(ctx context.Context, ev event.Event) (map[string]any, error) {
			log.Info().
				Str("action", name).
				Str("event", ev.ID).
				Str("kind", string(ev.Kind)).
				Msg("Emergency action invoked")
			return map[string]any{
				"action":          name,
				"acknowledged_at": time.Now().UTC().Format(time.RFC3339Nano),
			}, nil
		}
	}
	return out
}
