package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fundflow/fundflow/internal/adapter"
	"github.com/fundflow/fundflow/internal/discovery"
	"github.com/fundflow/fundflow/internal/fanout"
	"github.com/fundflow/fundflow/internal/grader"
	"github.com/fundflow/fundflow/internal/index"
	"github.com/fundflow/fundflow/internal/monitoring"
	"github.com/fundflow/fundflow/internal/reconcile"
	"github.com/fundflow/fundflow/internal/resilience"
)

// env bundles the wired engine for command handlers.
type env struct {
	Store        index.Store
	Registry     *adapter.Registry
	Breakers     *resilience.SourceBreakers
	Orchestrator *discovery.Orchestrator
	Collector    *monitoring.Collector
}

func (e *env) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}

func initStore(ctx context.Context) (index.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.SQLitePath
		if path == "" {
			path = "fundflow.db"
		}
		return index.NewSQLite(path)
	case "postgres":
		return index.NewPostgres(ctx, cfg.Store.DatabaseURL, &index.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initRegistry registers every enabled source adapter.
func initRegistry() *adapter.Registry {
	reg := adapter.NewRegistry()
	if !cfg.CryptoRank.Disabled && cfg.CryptoRank.Key != "" {
		reg.Register(adapter.NewCryptoRank(cfg.CryptoRank.BaseURL, cfg.CryptoRank.Key, cfg.CryptoRank.TrustWeight))
	}
	if !cfg.DefiLlama.Disabled {
		reg.Register(adapter.NewDefiLlama(cfg.DefiLlama.BaseURL, cfg.DefiLlama.TrustWeight))
	}
	if !cfg.CoinGecko.Disabled {
		reg.Register(adapter.NewCoinGecko(cfg.CoinGecko.BaseURL, cfg.CoinGecko.Key, cfg.CoinGecko.TrustWeight))
	}
	if !cfg.GitHub.Disabled {
		reg.Register(adapter.NewGitHub(cfg.GitHub.BaseURL, cfg.GitHub.Key, cfg.GitHub.TrustWeight))
	}
	if !cfg.Newsfeed.Disabled && cfg.Newsfeed.Key != "" {
		reg.Register(adapter.NewNewsfeed(cfg.Newsfeed.BaseURL, cfg.Newsfeed.Key, cfg.Newsfeed.TrustWeight))
	}
	return reg
}

// initEnv wires the full discovery engine and migrates the store.
func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	reg := initRegistry()
	if reg.Len() == 0 {
		st.Close()
		return nil, eris.New("no source adapters enabled, set at least one API key")
	}
	zap.L().Info("adapters registered", zap.Strings("sources", reg.Names()))

	policy := reconcile.DefaultPolicy()
	if cfg.Reconcile.PolicyPath != "" {
		policy, err = reconcile.LoadPolicy(cfg.Reconcile.PolicyPath)
		if err != nil {
			st.Close()
			return nil, eris.Wrap(err, "load reconcile policy")
		}
	}

	gradeCfg := grader.DefaultConfig()
	gradeCfg.CapitalWeight = cfg.Grader.CapitalWeight
	gradeCfg.TechnicalWeight = cfg.Grader.TechnicalWeight
	gradeCfg.UsageWeight = cfg.Grader.UsageWeight
	gradeCfg.TeamWeight = cfg.Grader.TeamWeight
	if err := gradeCfg.Validate(); err != nil {
		st.Close()
		return nil, err
	}

	breakers := resilience.NewSourceBreakers(resilience.BreakerConfig{})
	coordinator := fanout.New(reg, breakers, fanout.Config{
		PerAdapterTimeout: time.Duration(cfg.Fanout.PerAdapterTimeoutSecs) * time.Second,
		OverallDeadline:   time.Duration(cfg.Fanout.OverallDeadlineSecs) * time.Second,
	})
	engine := reconcile.New(policy, reg)
	orch := discovery.New(st, coordinator, engine, grader.New(gradeCfg))

	return &env{
		Store:        st,
		Registry:     reg,
		Breakers:     breakers,
		Orchestrator: orch,
		Collector:    monitoring.NewCollector(st),
	}, nil
}
