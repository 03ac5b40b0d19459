//go:build !integration

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/address-resolver/internal/config"
	"github.com/sells-group/address-resolver/internal/model"
	"github.com/sells-group/address-resolver/internal/oracle"
	"github.com/sells-group/address-resolver/internal/pipeline"
	"github.com/sells-group/address-resolver/internal/resilience"
)

// loadTestConfig loads defaults from an empty directory and points the
// store at a temp SQLite file. It replaces the package cfg for the test.
func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	c, err := config.Load()
	require.NoError(t, err)
	c.Store.DatabaseURL = filepath.Join(dir, "resolver.db")

	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
	return c
}

func TestPipelineOptions(t *testing.T) {
	c := loadTestConfig(t)
	c.Pipeline.MinConfidence = "high"
	c.Pools.Verify = 7
	c.Pools.VerifyRatePerSec = 4
	c.Apify.BatchSize = 15

	opts := pipelineOptions(c)

	assert.Equal(t, "https://www.fastpeoplesearch.com", opts.SearchBase)
	assert.Equal(t, 10, opts.MaxResults)
	assert.Equal(t, 3, opts.DetailTopN)
	assert.Equal(t, model.ConfidenceHigh, opts.Threshold)
	assert.Equal(t, 15, opts.BatchSize)
	assert.Equal(t, pipeline.Pools{
		Search: 3, Detail: 3, Verify: 7, Geocode: 4, Property: 2,
		VerifyRate: 4, PropertyRate: 1,
	}, opts.Pools)
	assert.Equal(t, 3, opts.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, opts.Retry.InitialBackoff)
	assert.Equal(t, 30*time.Second, opts.Retry.MaxBackoff)
	assert.Equal(t, 5, opts.Retry.MaxFreeRetries)
	assert.False(t, opts.RetryRejected)
}

func TestInitOracle_RuleDefault(t *testing.T) {
	loadTestConfig(t)

	o, err := initOracle(resilience.NewBreakers(resilience.DefaultCircuitBreakerConfig()))
	require.NoError(t, err)
	assert.IsType(t, &oracle.RuleOracle{}, o)
}

func TestInitOracle_RuleWeightsFile(t *testing.T) {
	c := loadTestConfig(t)
	path := filepath.Join(t.TempDir(), "weights.yaml")
	require.NoError(t, os.WriteFile(path, []byte("weights:\n  city_match: 4\n  high: 8\n"), 0o644))
	c.Oracle.WeightsPath = path

	o, err := initOracle(resilience.NewBreakers(resilience.DefaultCircuitBreakerConfig()))
	require.NoError(t, err)
	assert.IsType(t, &oracle.RuleOracle{}, o)
}

func TestInitOracle_BadWeightsFile(t *testing.T) {
	c := loadTestConfig(t)
	path := filepath.Join(t.TempDir(), "weights.yaml")
	require.NoError(t, os.WriteFile(path, []byte("weights:\n  medium: 9\n  high: 2\n"), 0o644))
	c.Oracle.WeightsPath = path

	_, err := initOracle(resilience.NewBreakers(resilience.DefaultCircuitBreakerConfig()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load oracle weights")
}

func TestInitOracle_Model(t *testing.T) {
	c := loadTestConfig(t)
	c.Oracle.Kind = config.OracleModel
	c.Anthropic.Key = "sk-ant-test"

	o, err := initOracle(resilience.NewBreakers(resilience.DefaultCircuitBreakerConfig()))
	require.NoError(t, err)
	assert.IsType(t, &oracle.ModelOracle{}, o)
}

func TestInitPipeline_SQLite(t *testing.T) {
	c := loadTestConfig(t)

	env, err := initPipeline(context.Background(), func(o *pipeline.Options) { o.RetryRejected = true })
	require.NoError(t, err)
	defer env.Close()

	require.NotNil(t, env.Pipeline)
	require.NotNil(t, env.Store)
	assert.Contains(t, env.Breakers.States(), "property")
	_, err = os.Stat(c.Store.DatabaseURL)
	assert.NoError(t, err)

	counts, err := env.Store.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestInitPipeline_BadDriver(t *testing.T) {
	c := loadTestConfig(t)
	c.Store.Driver = "mongo"

	_, err := initPipeline(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open store")
}
