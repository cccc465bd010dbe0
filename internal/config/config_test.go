package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "harvester.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
postgres:
  dsn: postgres://localhost/harvester
redis:
  addr: localhost:6379
`

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, int64(5<<20), cfg.Fetch.MaxPageBytes)
	assert.Equal(t, HardPageCeiling, cfg.Fetch.MaxPages)
	assert.Equal(t, 100, cfg.Write.BatchSize)
	assert.Equal(t, 30.0, cfg.Write.VarianceThresholdPct)
	assert.Equal(t, 1, cfg.Alert.RateCapShort)
	assert.Equal(t, 3, cfg.Alert.RateCapLong)
	assert.Equal(t, 6*time.Hour, cfg.Alert.RateWindowShort)
	assert.Equal(t, 24*time.Hour, cfg.Alert.RateWindowLong)
	assert.Equal(t, "memory", cfg.Queue.Backend)
	assert.Equal(t, 3, cfg.Queue.Retry.MaxAttempts)
	assert.Equal(t, 2, cfg.Workers.WriteConcurrency)
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
fetch:
  maxItems: 500
  requestTimeout: 10s
write:
  batchSize: 25
alert:
  basicTierDelay: 5m
`))
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Fetch.MaxItems)
	assert.Equal(t, 10*time.Second, cfg.Fetch.RequestTimeout)
	assert.Equal(t, 25, cfg.Write.BatchSize)
	assert.Equal(t, 5*time.Minute, cfg.Alert.BasicTierDelay)
}

func TestLoad_BadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
fetch:
  requestTimeout: fast
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoad_PageCeilingClamped(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
fetch:
  maxPages: 10000
`))
	require.NoError(t, err)
	assert.Equal(t, HardPageCeiling, cfg.Fetch.MaxPages)
}

func TestLoad_MissingDSN(t *testing.T) {
	_, err := Load(writeConfig(t, `
redis:
  addr: localhost:6379
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres.dsn")
}

func TestLoad_SQSRequiresQueueURLs(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
queue:
  backend: sqs
  region: us-east-1
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queueUrls")
}

func TestLoad_BadBackend(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
queue:
  backend: rabbit
`))
	require.Error(t, err)
}
