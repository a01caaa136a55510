package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// WebhookChannel posts alerts as JSON to an HTTP endpoint. Used for both
// team-chat webhooks and governance submission endpoints; the kind only
// differs in labeling and payload envelope.
type WebhookChannel struct {
	name     string
	kind     string
	endpoint string
	client   *http.Client
}

// NewWebhookChannel creates a webhook channel. Kind should be "chat" or
// "governance".
func NewWebhookChannel(name, kind, endpoint string, timeout time.Duration) *WebhookChannel {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookChannel{
		name:     name,
		kind:     kind,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Name implements Channel.
func (c *WebhookChannel) Name() string { return c.name }

// Kind implements Channel.
func (c *WebhookChannel) Kind() string { return c.kind }

// Deliver implements Channel. Delivery is a single POST; the alert ID makes
// retried posts idempotent on the receiving side.
func (c *WebhookChannel) Deliver(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(map[string]any{
		"id":        alert.ID,
		"type":      alert.Type,
		"severity":  alert.Severity,
		"payload":   alert.Payload,
		"timestamp": alert.Timestamp.Format(time.RFC3339),
		"source":    "dexguard",
	})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post to %s: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s returned status %d", c.name, resp.StatusCode)
	}
	return nil
}

// DashboardChannel pushes alerts to connected dashboard clients through the
// websocket hub.
type DashboardChannel struct {
	name string
	hub  *Hub
}

// NewDashboardChannel creates a dashboard channel over hub.
func NewDashboardChannel(name string, hub *Hub) *DashboardChannel {
	return &DashboardChannel{name: name, hub: hub}
}

// Name implements Channel.
func (c *DashboardChannel) Name() string { return c.name }

// Kind implements Channel.
func (c *DashboardChannel) Kind() string { return "dashboard" }

// Deliver implements Channel. Broadcast never blocks on slow clients, so a
// stuck dashboard cannot stall the notifier.
func (c *DashboardChannel) Deliver(_ context.Context, alert Alert) error {
	c.hub.Broadcast(alert)
	return nil
}

// LogChannel writes alerts to the structured log. Kept as the lowest
// priority fallback so an alert is always visible somewhere.
type LogChannel struct {
	name string
}

// NewLogChannel creates a log channel.
func NewLogChannel(name string) *LogChannel { return &LogChannel{name: name} }

// Name implements Channel.
func (c *LogChannel) Name() string { return c.name }

// Kind implements Channel.
func (c *LogChannel) Kind() string { return "log" }

// Deliver implements Channel.
func (c *LogChannel) Deliver(_ context.Context, alert Alert) error {
	log.Warn().
		Str("alert", alert.ID).
		Str("type", alert.Type).
		Str("severity", string(alert.Severity)).
		Interface("payload", alert.Payload).
		Msg("ALERT")
	return nil
}
