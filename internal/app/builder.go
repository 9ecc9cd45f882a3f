package app

import (
	"context"
	"fmt"

	"tiller/internal/allocator"
	"tiller/internal/audit"
	"tiller/internal/broker"
	"tiller/internal/config"
	"tiller/internal/engine"
	"tiller/internal/logger"
	"tiller/internal/notifier"
	"tiller/internal/pkg/circuit"
	"tiller/internal/profile"
	"tiller/internal/risk"
	"tiller/internal/scheduler"
	"tiller/internal/scorer"
	"tiller/internal/session"
	"tiller/internal/store/gormstore"
	"tiller/internal/strategy/breakdown"
	"tiller/internal/strategy/trail"
	adminhttp "tiller/internal/transport/http/admin"

	"github.com/robfig/cron/v3"
)

type AppBuilder struct {
	cfg *config.Config

	brokerFn func(config.BrokerConfig) (broker.Broker, error)
	scorerFn func(config.ScorerConfig) (scorer.Scorer, error)

	repoOverride     allocator.Repository
	recorderOverride audit.Recorder
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:      cfg,
		brokerFn: buildBroker,
		scorerFn: buildScorer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func buildBroker(cfg config.BrokerConfig) (broker.Broker, error) {
	switch cfg.Driver {
	case "", "paper":
		return broker.NewPaper(cfg.StartingEquity), nil
	default:
		return nil, fmt.Errorf("app: unknown broker driver %q", cfg.Driver)
	}
}

func buildScorer(cfg config.ScorerConfig) (scorer.Scorer, error) {
	if cfg.FeedPath == "" {
		return &scorer.Static{}, nil
	}
	return scorer.NewFileFeed(cfg.FeedPath, cfg.MaxRows, cfg.MinScore)
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("app: nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.Log.Level)

	clock, err := session.NewClock(cfg.Session.Timezone, session.Windows{
		NoEntryOpenMins:  cfg.Session.NoEntryOpenMins,
		NoEntryCloseMins: cfg.Session.NoEntryCloseMins,
		PrimaryStartHour: cfg.Session.PrimaryStartHour,
		ChopStartHour:    cfg.Session.ChopStartHour,
		ChopEndHour:      cfg.Session.ChopEndHour,
		EntryCutoffHour:  cfg.Session.EntryCutoffHour,
		ForceExitHour:    cfg.Session.ForceExitHour,
		ForceExitMinute:  cfg.Session.ForceExitMinute,
	})
	if err != nil {
		return nil, fmt.Errorf("app: session clock: %w", err)
	}

	brk, err := b.brokerFn(cfg.Broker)
	if err != nil {
		return nil, err
	}
	scr, err := b.scorerFn(cfg.Scorer)
	if err != nil {
		return nil, fmt.Errorf("app: scorer: %w", err)
	}

	registry, err := profile.NewRegistry(cfg.Buckets.ProfileFile)
	if err != nil {
		return nil, fmt.Errorf("app: bucket profiles: %w", err)
	}

	var store *gormstore.Store
	repo := b.repoOverride
	var trails engine.TrailStore
	if repo == nil {
		store, err = gormstore.Open(cfg.Store.StatePath)
		if err != nil {
			return nil, fmt.Errorf("app: state store: %w", err)
		}
		repo = store
		trails = store
	}

	alloc, err := allocator.New(registry.Profiles(), repo)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}
	registry.OnChange(func(snap profile.Snapshot) {
		profiles := make([]allocator.Profile, 0, len(snap.Profiles))
		for _, p := range snap.Profiles {
			profiles = append(profiles, p)
		}
		alloc.UpdateProfiles(profiles)
		logger.Infof("app: bucket profiles reloaded (version %d)", snap.Version)
	})

	recorder := b.recorderOverride
	if recorder == nil {
		recorder, err = audit.OpenSQLite(cfg.Store.AuditPath)
		if err != nil {
			if store != nil {
				store.Close()
			}
			return nil, fmt.Errorf("app: audit store: %w", err)
		}
	}

	notify := notifier.Multi{notifier.Log{}}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		notify = append(notify, notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID))
		logger.Infof("app: telegram notifications enabled")
	}

	breaker := circuit.New(cfg.Risk.DailyLossHaltPct, func(tripped bool, reason string) {
		if tripped {
			logger.Errorf("app: trading halted: %s", reason)
		} else {
			logger.Warnf("app: trading halt cleared")
		}
	})

	sectors := cfg.Sectors
	gate := risk.NewGate(riskConfigFrom(cfg.Risk), clock, func(ticker string) string {
		return sectors[ticker]
	})

	var pattern *breakdown.Engine
	var patternExec *engine.PatternExecutor
	if cfg.Pattern.Enabled {
		patternExec = engine.NewPatternExecutor(brk)
		pattern = breakdown.NewEngine(patternParamsFrom(cfg.Pattern), clock, patternExec)
		pattern.SetReferenceLevel(cfg.Pattern.ReferenceLow)
		logger.Infof("app: breakdown pattern armed on %s at %.2f", cfg.Pattern.Ticker, cfg.Pattern.ReferenceLow)
	}

	book := trail.NewBook()
	eng := engine.New(engine.Options{
		Interval:       cfg.Loop.Interval,
		ClosedInterval: cfg.Loop.ClosedInterval,
		StaleOrderAge:  cfg.Loop.StaleOrderAge,
		MaxBackoff:     cfg.Loop.MaxBackoff,
	}, brk, scr, gate, book, alloc, breaker,
		scheduler.NewIntervalTicker(cfg.Loop.Interval), recorder, notify,
		registry, trails, pattern, patternExec)

	var admin *adminhttp.Server
	if cfg.Admin.Enabled {
		admin, err = adminhttp.NewServer(cfg.Admin.Listen, &adminhttp.Router{
			Engine:   eng,
			Alloc:    alloc,
			Book:     book,
			Breaker:  breaker,
			Recorder: recorder,
			Scorer:   scr,
		})
		if err != nil {
			return nil, err
		}
	}

	sched := cron.New(cron.WithLocation(clock.Location()))
	if cfg.Loop.DailyResetCron != "" {
		if _, err := sched.AddFunc(cfg.Loop.DailyResetCron, eng.ResetDaily); err != nil {
			return nil, fmt.Errorf("app: daily reset cron: %w", err)
		}
	}

	return &App{
		cfg:      cfg,
		engine:   eng,
		scorer:   scr,
		admin:    admin,
		cron:     sched,
		store:    store,
		recorder: recorder,
	}, nil
}

func riskConfigFrom(rc config.RiskConfig) risk.Config {
	return risk.Config{
		DailyLossHaltPct:     rc.DailyLossHaltPct,
		MaxPositions:         rc.MaxPositions,
		MaxPositionPctEquity: rc.MaxPositionPctEquity,
		MaxPositionDollars:   rc.MaxPositionDollars,
		ScaleInThresholdPct:  rc.ScaleInThresholdPct,
		DefaultStopPct:       rc.DefaultStopPct,
		BuyingPowerFrac:      rc.BuyingPowerFrac,
		MinNotional:          rc.MinNotional,
		MaxSectorPct:         rc.MaxSectorPct,
	}
}

func patternParamsFrom(pc config.PatternConfig) breakdown.Params {
	return breakdown.Params{
		Ticker:            pc.Ticker,
		NearLevelBuffer:   pc.NearLevelBuffer,
		MinFlush:          pc.MinFlush,
		DeepThreshold:     pc.DeepThreshold,
		MaxFlush:          pc.MaxFlush,
		StopBuffer:        pc.StopBuffer,
		RipThreshold:      pc.RipThreshold,
		MinRewardRisk:     pc.MinRewardRisk,
		Tier1ExitPct:      pc.Tier1ExitPct,
		Tier1TargetMult:   pc.Tier1TargetMult,
		RiskPerTrade:      pc.RiskPerTrade,
		AcceptanceShallow: pc.AcceptanceShallow,
		AcceptanceDeep:    pc.AcceptanceDeep,
		AcceptanceBar:     pc.AcceptanceBar,
		MaxTradesPerDay:   pc.MaxTradesPerDay,
	}
}

func WithBroker(fn func(config.BrokerConfig) (broker.Broker, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.brokerFn = fn
		}
	}
}

func WithScorer(fn func(config.ScorerConfig) (scorer.Scorer, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.scorerFn = fn
		}
	}
}

func WithStorageOverrides(repo allocator.Repository, recorder audit.Recorder) AppBuilderOption {
	return func(b *AppBuilder) {
		if repo != nil {
			b.repoOverride = repo
		}
		if recorder != nil {
			b.recorderOverride = recorder
		}
	}
}
