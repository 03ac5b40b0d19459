package main

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/address-resolver/internal/config"
	"github.com/sells-group/address-resolver/internal/fetcher"
	"github.com/sells-group/address-resolver/internal/oracle"
	"github.com/sells-group/address-resolver/internal/pipeline"
	"github.com/sells-group/address-resolver/internal/property"
	"github.com/sells-group/address-resolver/internal/resilience"
	"github.com/sells-group/address-resolver/internal/store"
	"github.com/sells-group/address-resolver/pkg/anthropic"
	"github.com/sells-group/address-resolver/pkg/apify"
	"github.com/sells-group/address-resolver/pkg/autocomplete"
)

// pipelineEnv holds the store and the pipeline needed by the resolve,
// batch and serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Breakers *resilience.Breakers
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured store and applies its migration.
func initStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
}

// initPipeline sets up the store, all clients and the Pipeline. tune may
// adjust the options derived from config. Callers should defer env.Close().
func initPipeline(ctx context.Context, tune ...func(*pipeline.Options)) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}

	breakers := resilience.NewBreakers(resilience.FromCircuitConfig(
		cfg.Pipeline.Breaker.FailureThreshold, config.Secs(cfg.Pipeline.Breaker.ResetSecs)))

	match, err := initOracle(breakers)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	pages := fetcher.NewPool(cfg.Pools.Search+cfg.Pools.Detail,
		fetcher.NewPacer(cfg.Fetcher.MinDelay(), cfg.Fetcher.MaxDelay()),
		fetcher.Options{
			Cooldown:         config.Secs(cfg.Fetcher.CooldownSecs),
			RotateBackoffMin: config.Ms(cfg.Fetcher.RotateBackoffMinMs),
			RotateBackoffMax: config.Ms(cfg.Fetcher.RotateBackoffMaxMs),
			RequestTimeout:   config.Secs(cfg.Fetcher.TimeoutSecs),
		})

	geo := autocomplete.NewClient(
		autocomplete.WithBaseURL(cfg.Autocomplete.BaseURL),
		autocomplete.WithClientID(cfg.Autocomplete.ClientID),
		autocomplete.WithRateLimit(cfg.Autocomplete.RatePerSec),
		autocomplete.WithCacheTTL(config.Secs(cfg.Autocomplete.CacheTTLMins*60)),
		autocomplete.WithHTTPClient(&http.Client{Timeout: config.Secs(cfg.Autocomplete.TimeoutSecs)}),
	)

	if cfg.Apify.Token == "" {
		zap.L().Warn("RESOLVER_APIFY_TOKEN not set, property jobs will fail and records will stay in detail_fetching")
	}
	props := property.NewFetcher(
		apify.NewClient(cfg.Apify.Token, apify.WithBaseURL(cfg.Apify.BaseURL)),
		breakers.Get("property"),
		property.Config{
			Actor:        cfg.Apify.Actor,
			ListingBase:  cfg.Apify.ListingBase,
			PollInterval: config.Secs(cfg.Apify.PollIntervalSecs),
			MaxPolls:     cfg.Apify.MaxPolls,
		},
	)

	opts := pipelineOptions(cfg)
	for _, fn := range tune {
		fn(&opts)
	}
	p := pipeline.New(st, pages, match, geo, props, opts)
	return &pipelineEnv{Store: st, Pipeline: p, Breakers: breakers}, nil
}

// initOracle builds the configured match oracle.
func initOracle(breakers *resilience.Breakers) (oracle.MatchOracle, error) {
	switch cfg.Oracle.Kind {
	case config.OracleModel:
		zap.L().Info("using model oracle", zap.String("model", cfg.Oracle.Model))
		return oracle.NewModelOracle(
			anthropic.NewClient(cfg.Anthropic.Key),
			breakers.Get("oracle"),
			oracle.ModelConfig{Model: cfg.Oracle.Model, MaxTokens: int64(cfg.Oracle.MaxTokens)},
		), nil
	default:
		w := oracle.DefaultWeights()
		if cfg.Oracle.WeightsPath != "" {
			loaded, err := oracle.LoadWeights(cfg.Oracle.WeightsPath)
			if err != nil {
				return nil, eris.Wrap(err, "load oracle weights")
			}
			w = loaded
		}
		return oracle.NewRuleOracle(w), nil
	}
}

// pipelineOptions maps configuration onto pipeline.Options.
func pipelineOptions(c *config.Config) pipeline.Options {
	r := c.Pipeline.Retry
	return pipeline.Options{
		SearchBase: c.Fetcher.BaseURL,
		MaxResults: c.Search.MaxResults,
		DetailTopN: c.Search.DetailTopN,
		Threshold:  c.Pipeline.Threshold(),
		BatchSize:  c.Apify.BatchSize,
		Pools: pipeline.Pools{
			Search:   c.Pools.Search,
			Detail:   c.Pools.Detail,
			Verify:   c.Pools.Verify,
			Geocode:  c.Pools.Geocode,
			Property: c.Pools.Property,

			VerifyRate:   c.Pools.VerifyRatePerSec,
			PropertyRate: c.Pools.PropertyRatePerSec,
		},
		Retry: resilience.FromRetryConfig(r.MaxAttempts, config.Ms(r.InitialBackoffMs), config.Ms(r.MaxBackoffMs), r.MaxFreeRetries),
	}
}
