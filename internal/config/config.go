package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so yaml configs can say "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// AssetThresholds configures one asset breaker.
type AssetThresholds struct {
	MaxSlippage       float64 `yaml:"max_slippage"`
	MaxVolatility     float64 `yaml:"max_volatility"`
	MinLiquidityRatio float64 `yaml:"min_liquidity_ratio"`
	MaxFailureRate    float64 `yaml:"max_failure_rate"`
}

// ThresholdOverrides adjusts individual breaker thresholds for one pair.
// Pointer fields distinguish "not set" from an explicit zero, so a pair can
// disable a bound outright.
type ThresholdOverrides struct {
	MaxSlippage       *float64 `yaml:"max_slippage,omitempty"`
	MaxVolatility     *float64 `yaml:"max_volatility,omitempty"`
	MinLiquidityRatio *float64 `yaml:"min_liquidity_ratio,omitempty"`
	MaxFailureRate    *float64 `yaml:"max_failure_rate,omitempty"`
}

// Pair is one asset-venue entry in the monitored universe.
type Pair struct {
	Asset      string              `yaml:"asset"`
	Venue      string              `yaml:"venue"`
	Thresholds *ThresholdOverrides `yaml:"thresholds,omitempty"`
}

// SystemThresholds configures the system-wide breaker.
type SystemThresholds struct {
	MaxDrawdown           float64 `yaml:"max_drawdown"`
	MaxDailyLoss          float64 `yaml:"max_daily_loss"`
	MaxHourlyTransactions float64 `yaml:"max_hourly_transactions"`
}

// Intervals are the monitor cadences.
type Intervals struct {
	Composite    Duration `yaml:"composite"`
	Volatility   Duration `yaml:"volatility"`
	Liquidity    Duration `yaml:"liquidity"`
	Transactions Duration `yaml:"transactions"`
}

// RuleOverride adjusts one named built-in threat rule.
type RuleOverride struct {
	Name      string   `yaml:"name"`
	Threshold *float64 `yaml:"threshold,omitempty"`
	Window    Duration `yaml:"window,omitempty"`
	Enabled   *bool    `yaml:"enabled,omitempty"`
}

// ProtocolConfig overrides one playbook.
type ProtocolConfig struct {
	Name              string   `yaml:"name"`
	TriggerCondition  string   `yaml:"trigger_condition"`
	Actions           []string `yaml:"actions"`
	RequiredApprovals int      `yaml:"required_approvals"`
	Budget            Duration `yaml:"budget"`
	Enabled           bool     `yaml:"enabled"`
}

// ChannelConfig declares one notification channel.
type ChannelConfig struct {
	Name     string   `yaml:"name"`
	Kind     string   `yaml:"kind"` // "chat", "governance", "dashboard", "log"
	Endpoint string   `yaml:"endpoint,omitempty"`
	Enabled  bool     `yaml:"enabled"`
	Priority int      `yaml:"priority"`
	Timeout  Duration `yaml:"timeout,omitempty"`
}

// NotifierConfig tunes alert fan-out.
type NotifierConfig struct {
	MaxHistory      int      `yaml:"max_history"`
	DeliveryTimeout Duration `yaml:"delivery_timeout"`
	DedupWindow     Duration `yaml:"dedup_window"`
	RatePerChannel  float64  `yaml:"rate_per_channel"`
	RateBurst       int      `yaml:"rate_burst"`
}

// GuardConfig bounds external metric source calls.
type GuardConfig struct {
	RequestTimeout   Duration `yaml:"request_timeout"`
	FailureThreshold uint32   `yaml:"failure_threshold"`
	OpenTimeout      Duration `yaml:"open_timeout"`
}

// HTTPConfig configures the status API server.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// PostgresConfig configures the optional durable archive.
type PostgresConfig struct {
	DSN     string   `yaml:"dsn"`
	Timeout Duration `yaml:"timeout"`
}

// RedisConfig configures the optional alert de-dup cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Config is the full engine configuration document.
type Config struct {
	LogLevel string `yaml:"log_level"`

	SystemID  string   `yaml:"system_id"`
	Cooldown  Duration `yaml:"cooldown"`
	Probation Duration `yaml:"probation"`

	Universe          []Pair           `yaml:"universe"`
	DefaultThresholds AssetThresholds  `yaml:"default_thresholds"`
	SystemThresholds  SystemThresholds `yaml:"system_thresholds"`

	Intervals Intervals `yaml:"intervals"`

	ThreatRules []RuleOverride   `yaml:"threat_rules"`
	Protocols   []ProtocolConfig `yaml:"protocols"`
	Channels    []ChannelConfig  `yaml:"channels"`
	Notifier    NotifierConfig   `yaml:"notifier"`

	MaxEvents int `yaml:"max_events"`

	Guard    GuardConfig    `yaml:"guard"`
	HTTP     HTTPConfig     `yaml:"http"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
}

// Default returns a runnable configuration: a small universe, standard
// thresholds and a log channel.
func Default() Config {
	return Config{
		LogLevel:  "info",
		SystemID:  "system-wide",
		Cooldown:  Duration(5 * time.Minute),
		Probation: Duration(2 * time.Minute),
		Universe: []Pair{
			{Asset: "ETH", Venue: "uniswap"},
			{Asset: "WBTC", Venue: "uniswap"},
			{Asset: "ETH", Venue: "curve"},
		},
		DefaultThresholds: AssetThresholds{
			MaxSlippage:       0.10,
			MaxVolatility:     0.25,
			MinLiquidityRatio: 0.30,
			MaxFailureRate:    0.15,
		},
		SystemThresholds: SystemThresholds{
			MaxDrawdown:           0.15,
			MaxDailyLoss:          50000,
			MaxHourlyTransactions: 10000,
		},
		Intervals: Intervals{
			Composite:    Duration(30 * time.Second),
			Volatility:   Duration(15 * time.Second),
			Liquidity:    Duration(45 * time.Second),
			Transactions: Duration(10 * time.Second),
		},
		Channels: []ChannelConfig{
			{Name: "ops-log", Kind: "log", Enabled: true, Priority: 3},
		},
		Notifier: NotifierConfig{
			MaxHistory:      1000,
			DeliveryTimeout: Duration(5 * time.Second),
			DedupWindow:     Duration(30 * time.Second),
			RatePerChannel:  2,
			RateBurst:       10,
		},
		MaxEvents: 1000,
		Guard: GuardConfig{
			RequestTimeout:   Duration(3 * time.Second),
			FailureThreshold: 3,
			OpenTimeout:      Duration(30 * time.Second),
		},
		HTTP: HTTPConfig{Host: "127.0.0.1", Port: 8090},
		Postgres: PostgresConfig{
			Timeout: Duration(5 * time.Second),
		},
	}
}

// Load reads a yaml config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if len(c.Universe) == 0 {
		return fmt.Errorf("universe must list at least one asset-venue pair")
	}
	seen := make(map[string]bool, len(c.Universe))
	for _, p := range c.Universe {
		if p.Asset == "" || p.Venue == "" {
			return fmt.Errorf("universe entries need both asset and venue")
		}
		key := p.Asset + "-" + p.Venue
		if seen[key] {
			return fmt.Errorf("duplicate universe entry %q", key)
		}
		seen[key] = true
	}
	if c.Cooldown.Std() <= 0 || c.Probation.Std() <= 0 {
		return fmt.Errorf("cooldown and probation must be positive")
	}
	if c.Guard.RequestTimeout.Std() <= 0 || c.Guard.OpenTimeout.Std() <= 0 {
		return fmt.Errorf("guard request_timeout and open_timeout must be positive")
	}
	for _, ch := range c.Channels {
		switch ch.Kind {
		case "chat", "governance":
			if ch.Endpoint == "" {
				return fmt.Errorf("channel %q of kind %q needs an endpoint", ch.Name, ch.Kind)
			}
		case "dashboard", "log":
		default:
			return fmt.Errorf("channel %q has unknown kind %q", ch.Name, ch.Kind)
		}
	}
	return nil
}
