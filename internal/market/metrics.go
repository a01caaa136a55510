package market

import (
	"context"
	"time"
)

// AssetMetrics holds the latest observed per-asset-per-venue figures used
// for circuit breaker evaluation.
type AssetMetrics struct {
	AvgSlippage    float64   `json:"avg_slippage"`
	Volatility     float64   `json:"volatility"`
	LiquidityRatio float64   `json:"liquidity_ratio"`
	SuccessRate    float64   `json:"success_rate"`
	ObservedAt     time.Time `json:"observed_at"`
}

// SystemMetrics holds platform-wide figures for the system breaker and
// operational risk scoring.
type SystemMetrics struct {
	CurrentDrawdown    float64   `json:"current_drawdown"`
	DailyPnL           float64   `json:"daily_pnl"`
	HourlyTransactions float64   `json:"hourly_transactions"`
	Uptime             float64   `json:"uptime"`
	ObservedAt         time.Time `json:"observed_at"`
}

// ActivitySnapshot aggregates recent order-flow activity consumed by the
// threat rules. Values are normalized rates over each rule's window.
type ActivitySnapshot struct {
	SelfMatchRatio      float64   `json:"self_match_ratio"`  // fraction of volume matched against same account cluster
	CancelRatio         float64   `json:"cancel_ratio"`      // cancels per placed order
	BurstRate           float64   `json:"burst_rate"`        // orders per second in the hottest burst
	OracleDivergence    float64   `json:"oracle_divergence"` // max relative deviation between price feeds
	SandwichScore       float64   `json:"sandwich_score"`    // front/back-run adjacency score
	LargeOrderImbalance float64   `json:"large_order_imbalance"`
	ObservedAt          time.Time `json:"observed_at"`
}

// AssetSource supplies per-asset-per-venue metrics on demand.
type AssetSource interface {
	AssetMetrics(ctx context.Context, asset, venue string) (AssetMetrics, error)
}

// SystemSource supplies system-wide metrics on demand.
type SystemSource interface {
	SystemMetrics(ctx context.Context) (SystemMetrics, error)
}

// ActivitySource supplies recent activity aggregates for threat scanning.
type ActivitySource interface {
	Activity(ctx context.Context) (ActivitySnapshot, error)
}

// Key identifies one asset-venue pair.
type Key struct {
	Asset string
	Venue string
}

func (k Key) String() string {
	return k.Asset + "-" + k.Venue
}
