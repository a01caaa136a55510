package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dexguard/dexguard/internal/event"
)

// Channel delivers alerts to one destination. Implementations must be
// idempotent and tolerate repeated delivery.
type Channel interface {
	Name() string
	Kind() string
	Deliver(ctx context.Context, alert Alert) error
}

// Deduper suppresses repeated alerts for the same key inside a window. The
// redis store provides one; nil disables de-duplication.
type Deduper interface {
	Seen(ctx context.Context, key string, window time.Duration) (bool, error)
}

// Archiver receives every appended alert for durable storage.
type Archiver interface {
	ArchiveAlert(alert Alert) error
}

// Options tune the notifier.
type Options struct {
	MaxHistory      int           // retained alerts; 0 keeps everything
	DeliveryTimeout time.Duration // per-channel delivery bound
	DedupWindow     time.Duration // suppression window when a Deduper is set
	RatePerChannel  rate.Limit    // deliveries per second per channel; 0 disables limiting
	RateBurst       int
}

// DefaultOptions returns standard notifier settings.
func DefaultOptions() Options {
	return Options{
		MaxHistory:      1000,
		DeliveryTimeout: 5 * time.Second,
		DedupWindow:     30 * time.Second,
		RatePerChannel:  rate.Limit(2),
		RateBurst:       10,
	}
}

type channelEntry struct {
	ch       Channel
	enabled  bool
	priority int
	limiter  *rate.Limiter
}

// Notifier fans alerts out to its channel registry and records alert
// history. Channel failures are isolated: they are logged and never reach
// the caller or block other channels.
type Notifier struct {
	opts     Options
	dedup    Deduper
	archiver Archiver

	mu       sync.RWMutex
	channels map[string]*channelEntry
	order    []string
	history  []Alert
	byID     map[string]int

	alertCount atomic.Int64
	failures   atomic.Int64

	alertsMetric   prometheus.Counter
	failuresMetric prometheus.Counter
}

// NewNotifier creates a notifier with the given options.
func NewNotifier(opts Options) *Notifier {
	return &Notifier{
		opts:     opts,
		channels: make(map[string]*channelEntry),
		byID:     make(map[string]int),
	}
}

// SetDeduper attaches an alert de-duplication cache.
func (n *Notifier) SetDeduper(d Deduper) { n.dedup = d }

// SetArchiver attaches a durable alert sink.
func (n *Notifier) SetArchiver(a Archiver) { n.archiver = a }

// SetCounters attaches telemetry counters mirroring the internal alert and
// failed-delivery totals.
func (n *Notifier) SetCounters(alerts, failures prometheus.Counter) {
	n.alertsMetric = alerts
	n.failuresMetric = failures
}

// AddChannel registers a delivery channel.
func (n *Notifier) AddChannel(ch Channel, enabled bool, priority int) {
	n.mu.Lock()
	defer n.mu.Unlock()

	var limiter *rate.Limiter
	if n.opts.RatePerChannel > 0 {
		limiter = rate.NewLimiter(n.opts.RatePerChannel, n.opts.RateBurst)
	}
	if _, exists := n.channels[ch.Name()]; !exists {
		n.order = append(n.order, ch.Name())
	}
	n.channels[ch.Name()] = &channelEntry{ch: ch, enabled: enabled, priority: priority, limiter: limiter}
}

// SetEnabled toggles a channel. Returns false for unknown channels.
func (n *Notifier) SetEnabled(name string, enabled bool) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	e, ok := n.channels[name]
	if !ok {
		return false
	}
	e.enabled = enabled
	log.Info().Str("channel", name).Bool("enabled", enabled).Msg("Notification channel toggled")
	return true
}

// Notify appends one alert to history and attempts delivery to every
// enabled channel. Always returns the appended alert; delivery problems
// are logged only. A duplicate inside the de-dup window is suppressed
// entirely and reported via the bool.
func (n *Notifier) Notify(ctx context.Context, alertType string, severity event.Severity, payload map[string]any) (Alert, bool) {
	if n.dedup != nil {
		key := alertType + ":" + string(severity)
		seen, err := n.dedup.Seen(ctx, key, n.opts.DedupWindow)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Alert de-dup check failed, delivering anyway")
		} else if seen {
			log.Debug().Str("key", key).Msg("Duplicate alert suppressed")
			return Alert{}, false
		}
	}

	alert := Alert{
		ID:        uuid.NewString(),
		Type:      alertType,
		Severity:  severity,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	n.append(alert)
	n.alertCount.Add(1)
	if n.alertsMetric != nil {
		n.alertsMetric.Inc()
	}

	n.mu.RLock()
	entries := make([]*channelEntry, 0, len(n.order))
	for _, name := range n.order {
		if e := n.channels[name]; e.enabled {
			entries = append(entries, e)
		}
	}
	n.mu.RUnlock()

	for _, e := range entries {
		n.deliver(ctx, e, alert)
	}
	return alert, true
}

func (n *Notifier) deliver(ctx context.Context, e *channelEntry, alert Alert) {
	if e.limiter != nil && !e.limiter.Allow() {
		n.recordFailure()
		log.Warn().Str("channel", e.ch.Name()).Str("alert", alert.ID).Msg("Channel rate limited, delivery dropped")
		return
	}

	dctx := ctx
	if n.opts.DeliveryTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, n.opts.DeliveryTimeout)
		defer cancel()
	}

	if err := e.ch.Deliver(dctx, alert); err != nil {
		n.recordFailure()
		log.Warn().Err(err).Str("channel", e.ch.Name()).Str("alert", alert.ID).Msg("Alert delivery failed")
		return
	}
	log.Debug().Str("channel", e.ch.Name()).Str("alert", alert.ID).Msg("Alert delivered")
}

func (n *Notifier) recordFailure() {
	n.failures.Add(1)
	if n.failuresMetric != nil {
		n.failuresMetric.Inc()
	}
}

func (n *Notifier) append(alert Alert) {
	n.mu.Lock()
	if n.opts.MaxHistory > 0 && len(n.history) >= n.opts.MaxHistory {
		drop := n.history[0]
		n.history = n.history[1:]
		delete(n.byID, drop.ID)
		for id, i := range n.byID {
			n.byID[id] = i - 1
		}
	}
	n.byID[alert.ID] = len(n.history)
	n.history = append(n.history, alert)
	archiver := n.archiver
	n.mu.Unlock()

	if archiver != nil {
		if err := archiver.ArchiveAlert(alert); err != nil {
			log.Warn().Err(err).Str("alert", alert.ID).Msg("Alert archive write failed")
		}
	}
}

// Acknowledge marks an alert acknowledged.
func (n *Notifier) Acknowledge(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	i, ok := n.byID[id]
	if !ok {
		return false
	}
	n.history[i].Acknowledged = true
	return true
}

// History returns up to limit most recent alerts, newest first.
func (n *Notifier) History(limit int) []Alert {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if limit <= 0 || limit > len(n.history) {
		limit = len(n.history)
	}
	out := make([]Alert, 0, limit)
	for i := len(n.history) - 1; i >= len(n.history)-limit; i-- {
		out = append(out, n.history[i])
	}
	return out
}

// Count returns the running alert counter.
func (n *Notifier) Count() int64 { return n.alertCount.Load() }

// DeliveryFailures returns the running failed-delivery counter.
func (n *Notifier) DeliveryFailures() int64 { return n.failures.Load() }

// ChannelStates returns operator-visible channel configuration in
// registration order.
func (n *Notifier) ChannelStates() []ChannelState {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]ChannelState, 0, len(n.order))
	for _, name := range n.order {
		e := n.channels[name]
		out = append(out, ChannelState{
			Name:     e.ch.Name(),
			Kind:     e.ch.Kind(),
			Enabled:  e.enabled,
			Priority: e.priority,
		})
	}
	return out
}
