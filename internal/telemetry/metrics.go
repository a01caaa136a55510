package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric the containment engine exposes.
type Metrics struct {
	registry *prometheus.Registry

	// Breaker metrics
	BreakerTrips      *prometheus.CounterVec
	BreakerRecoveries *prometheus.CounterVec
	OpenBreakers      prometheus.Gauge

	// Risk metrics
	RiskScore prometheus.Gauge
	RiskLevel *prometheus.GaugeVec

	// Protocol metrics
	ProtocolExecutions *prometheus.CounterVec
	ActionOutcomes     *prometheus.CounterVec

	// Threat metrics
	ThreatDetections *prometheus.CounterVec

	// Notification metrics
	AlertsSent       prometheus.Counter
	DeliveryFailures prometheus.Counter

	// Scheduler metrics
	CheckDuration *prometheus.HistogramVec
	SystemStatus  prometheus.Gauge
}

// NewMetrics creates and registers every metric on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		BreakerTrips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexguard_breaker_trips_total",
				Help: "Circuit breaker trips by breaker id",
			},
			[]string{"breaker"},
		),
		BreakerRecoveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexguard_breaker_recoveries_total",
				Help: "Completed breaker recoveries by breaker id",
			},
			[]string{"breaker"},
		),
		OpenBreakers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dexguard_open_breakers",
				Help: "Number of currently open circuit breakers",
			},
		),

		RiskScore: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dexguard_risk_score",
				Help: "Latest overall risk score (0.0 to 1.0)",
			},
		),
		RiskLevel: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dexguard_risk_level",
				Help: "Latest risk level (1 for the active level, 0 otherwise)",
			},
			[]string{"level"},
		),

		ProtocolExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexguard_protocol_executions_total",
				Help: "Emergency protocol executions by protocol name",
			},
			[]string{"protocol"},
		),
		ActionOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexguard_action_outcomes_total",
				Help: "Playbook action outcomes by action and status",
			},
			[]string{"action", "status"},
		),

		ThreatDetections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexguard_threat_detections_total",
				Help: "Threat rule detections by rule name",
			},
			[]string{"rule"},
		),

		AlertsSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dexguard_alerts_total",
				Help: "Alerts appended to history",
			},
		),
		DeliveryFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dexguard_alert_delivery_failures_total",
				Help: "Failed channel deliveries",
			},
		),

		CheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dexguard_check_duration_seconds",
				Help:    "Duration of scheduled monitor checks",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"check"},
		),
		SystemStatus: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dexguard_system_status",
				Help: "System status (0 operational, 1 warning, 2 emergency)",
			},
		),
	}

	m.registry.MustRegister(
		m.BreakerTrips, m.BreakerRecoveries, m.OpenBreakers,
		m.RiskScore, m.RiskLevel,
		m.ProtocolExecutions, m.ActionOutcomes,
		m.ThreatDetections,
		m.AlertsSent, m.DeliveryFailures,
		m.CheckDuration, m.SystemStatus,
	)
	return m
}

// SetRiskLevel flips the level gauge so exactly one level reads 1.
func (m *Metrics) SetRiskLevel(level string) {
	for _, l := range []string{"low", "medium", "high", "critical"} {
		v := 0.0
		if l == level {
			v = 1.0
		}
		m.RiskLevel.WithLabelValues(l).Set(v)
	}
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
