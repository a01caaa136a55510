package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dexguard/dexguard/internal/breaker"
	"github.com/dexguard/dexguard/internal/config"
	"github.com/dexguard/dexguard/internal/engine"
	"github.com/dexguard/dexguard/internal/event"
	httpapi "github.com/dexguard/dexguard/internal/interfaces/http"
	"github.com/dexguard/dexguard/internal/market"
	"github.com/dexguard/dexguard/internal/monitor"
	"github.com/dexguard/dexguard/internal/notify"
	"github.com/dexguard/dexguard/internal/protocol"
	"github.com/dexguard/dexguard/internal/risk"
	"github.com/dexguard/dexguard/internal/store/postgres"
	"github.com/dexguard/dexguard/internal/store/redis"
	"github.com/dexguard/dexguard/internal/telemetry"
	"github.com/dexguard/dexguard/internal/threat"
)

// app holds the assembled daemon.
type app struct {
	engine    *engine.Engine
	registry  *breaker.Registry
	scheduler *monitor.Scheduler
	server    *httpapi.Server
	archive   *postgres.Archive
	dedup     *redis.Deduper
}

// buildApp assembles the full containment stack from configuration. The
// metric and risk sources are the static stand-ins; a trading engine
// integration replaces them and the logging action callbacks.
func buildApp(cfg config.Config) (*app, error) {
	universe := make(map[market.Key]breaker.AssetThresholds, len(cfg.Universe))
	keys := make([]market.Key, 0, len(cfg.Universe))
	for _, pair := range cfg.Universe {
		key := market.Key{Asset: pair.Asset, Venue: pair.Venue}
		keys = append(keys, key)
		universe[key] = mergeThresholds(cfg.DefaultThresholds, pair.Thresholds)
	}

	registry := breaker.NewRegistry(
		breaker.Config{
			SystemID:  cfg.SystemID,
			Cooldown:  cfg.Cooldown.Std(),
			Probation: cfg.Probation.Std(),
		},
		universe,
		breaker.SystemThresholds{
			MaxDrawdown:           cfg.SystemThresholds.MaxDrawdown,
			MaxDailyLoss:          cfg.SystemThresholds.MaxDailyLoss,
			MaxHourlyTransactions: cfg.SystemThresholds.MaxHourlyTransactions,
		},
	)

	static := market.NewStaticSource()
	assetSrc := market.NewGuardedAssetSource(static, guardConfig(cfg, "asset-metrics"))
	systemSrc := market.NewGuardedSystemSource(static, guardConfig(cfg, "system-metrics"))
	activitySrc := market.NewGuardedActivitySource(static, guardConfig(cfg, "activity"))

	assessor := risk.NewAssessor(risk.NewStaticSource())
	detector := threat.NewDetector(activitySrc, threatRules(cfg))
	executor := protocol.NewExecutor(protocols(cfg), protocol.LoggingActions())

	notifier := notify.NewNotifier(notify.Options{
		MaxHistory:      cfg.Notifier.MaxHistory,
		DeliveryTimeout: cfg.Notifier.DeliveryTimeout.Std(),
		DedupWindow:     cfg.Notifier.DedupWindow.Std(),
		RatePerChannel:  rate.Limit(cfg.Notifier.RatePerChannel),
		RateBurst:       cfg.Notifier.RateBurst,
	})

	var hub *notify.Hub
	for _, ch := range cfg.Channels {
		switch ch.Kind {
		case "chat", "governance":
			notifier.AddChannel(notify.NewWebhookChannel(ch.Name, ch.Kind, ch.Endpoint, ch.Timeout.Std()), ch.Enabled, ch.Priority)
		case "dashboard":
			if hub == nil {
				hub = notify.NewHub()
			}
			notifier.AddChannel(notify.NewDashboardChannel(ch.Name, hub), ch.Enabled, ch.Priority)
		case "log":
			notifier.AddChannel(notify.NewLogChannel(ch.Name), ch.Enabled, ch.Priority)
		}
	}

	history := event.NewHistory(cfg.MaxEvents)

	a := &app{registry: registry}

	if cfg.Postgres.DSN != "" {
		archive, err := postgres.Open(cfg.Postgres.DSN, cfg.Postgres.Timeout.Std())
		if err != nil {
			return nil, fmt.Errorf("open event archive: %w", err)
		}
		history.SetArchiver(archive)
		notifier.SetArchiver(archive)
		a.archive = archive
		log.Info().Msg("Durable event archive enabled")
	}

	if cfg.Redis.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		dedup, err := redis.Open(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		cancel()
		if err != nil {
			a.closeStores()
			return nil, fmt.Errorf("open alert de-dup cache: %w", err)
		}
		notifier.SetDeduper(dedup)
		a.dedup = dedup
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Alert de-duplication enabled")
	}

	eng, err := engine.New(engine.Deps{
		Registry:     registry,
		Assessor:     assessor,
		Detector:     detector,
		Executor:     executor,
		Notifier:     notifier,
		History:      history,
		Metrics:      telemetry.NewMetrics(),
		AssetSource:  assetSrc,
		SystemSource: systemSrc,
		Universe:     keys,
	})
	if err != nil {
		a.closeStores()
		return nil, err
	}

	a.engine = eng
	a.scheduler = monitor.NewScheduler(eng, monitor.Intervals{
		Composite:    cfg.Intervals.Composite.Std(),
		Volatility:   cfg.Intervals.Volatility.Std(),
		Liquidity:    cfg.Intervals.Liquidity.Std(),
		Transactions: cfg.Intervals.Transactions.Std(),
	})
	a.server = httpapi.NewServer(serverConfig(cfg), eng, hub)
	return a, nil
}

func (a *app) closeStores() {
	if a.archive != nil {
		a.archive.Close()
	}
	if a.dedup != nil {
		a.dedup.Close()
	}
}

// shutdown stops the scheduler, drains the API server and releases stores.
func (a *app) shutdown(ctx context.Context) {
	a.scheduler.Stop()
	if err := a.server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("API server shutdown incomplete")
	}
	a.registry.Stop()
	a.closeStores()
}

// mergeThresholds applies a pair's explicit overrides onto the defaults.
// Unset fields keep the default; an explicit zero is honored.
func mergeThresholds(def config.AssetThresholds, override *config.ThresholdOverrides) breaker.AssetThresholds {
	t := def
	if override != nil {
		if override.MaxSlippage != nil {
			t.MaxSlippage = *override.MaxSlippage
		}
		if override.MaxVolatility != nil {
			t.MaxVolatility = *override.MaxVolatility
		}
		if override.MinLiquidityRatio != nil {
			t.MinLiquidityRatio = *override.MinLiquidityRatio
		}
		if override.MaxFailureRate != nil {
			t.MaxFailureRate = *override.MaxFailureRate
		}
	}
	return breaker.AssetThresholds{
		MaxSlippage:       t.MaxSlippage,
		MaxVolatility:     t.MaxVolatility,
		MinLiquidityRatio: t.MinLiquidityRatio,
		MaxFailureRate:    t.MaxFailureRate,
	}
}

func guardConfig(cfg config.Config, name string) market.GuardConfig {
	return market.GuardConfig{
		Name:             name,
		RequestTimeout:   cfg.Guard.RequestTimeout.Std(),
		FailureThreshold: cfg.Guard.FailureThreshold,
		OpenTimeout:      cfg.Guard.OpenTimeout.Std(),
	}
}

// threatRules applies configured overrides onto the built-in rule set.
func threatRules(cfg config.Config) []threat.RuleSpec {
	specs := threat.DefaultRules()
	for _, ov := range cfg.ThreatRules {
		for i := range specs {
			if specs[i].Rule.Name != ov.Name {
				continue
			}
			if ov.Threshold != nil {
				specs[i].Rule.Threshold = *ov.Threshold
			}
			if ov.Window.Std() > 0 {
				specs[i].Rule.Window = ov.Window.Std()
			}
			if ov.Enabled != nil {
				specs[i].Rule.Enabled = *ov.Enabled
			}
		}
	}
	return specs
}

// protocols replaces default playbooks with any configured under the same
// name and appends new ones.
func protocols(cfg config.Config) []protocol.Protocol {
	out := protocol.DefaultProtocols()
	for _, pc := range cfg.Protocols {
		p := protocol.Protocol{
			Name:              pc.Name,
			TriggerCondition:  pc.TriggerCondition,
			Actions:           pc.Actions,
			RequiredApprovals: pc.RequiredApprovals,
			Budget:            pc.Budget.Std(),
			Enabled:           pc.Enabled,
		}
		replaced := false
		for i := range out {
			if out[i].Name == p.Name {
				out[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, p)
		}
	}
	return out
}

func serverConfig(cfg config.Config) httpapi.Config {
	sc := httpapi.DefaultConfig()
	if cfg.HTTP.Host != "" {
		sc.Host = cfg.HTTP.Host
	}
	if cfg.HTTP.Port != 0 {
		sc.Port = cfg.HTTP.Port
	}
	return sc
}
