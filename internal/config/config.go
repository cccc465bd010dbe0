// Package config handles loading and validation of harvester.yaml.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ammobase/harvester/pkg/types"
)

// Hard ceilings applied regardless of configuration. A source may configure
// fewer pages than the ceiling, never more.
const (
	HardPageCeiling = 500
	hardMaxAttempts = 10
)

// Default returns the built-in configuration defaults. Every tunable in the
// file overrides the matching field.
func Default() types.Config {
	return types.Config{
		Fetch: types.FetchConfig{
			MaxPageBytes:    5 << 20,  // 5 MiB per page
			MaxTotalBytes:   50 << 20, // 50 MiB per run
			MaxPages:        HardPageCeiling,
			MaxItems:        10000,
			RequestTimeout:  30 * time.Second,
			UserAgent:       "harvester/1.0",
			BreakerFailures: 5,
			BreakerCooldown: 60 * time.Second,
		},
		Write: types.WriteConfig{
			BatchSize:            100,
			VarianceThresholdPct: 30,
			ErrorSampleSize:      10,
		},
		Alert: types.AlertConfig{
			RateWindowShort: 6 * time.Hour,
			RateCapShort:    1,
			RateWindowLong:  24 * time.Hour,
			RateCapLong:     3,
			BasicTierDelay:  15 * time.Minute,
			DefaultCooldown: 12 * time.Hour,
		},
		Scheduler: types.SchedulerConfig{
			PollInterval: 30 * time.Second,
			LockTTL:      30 * time.Minute,
		},
		Workers: types.WorkerConfig{
			FetchConcurrency: 8,
			WriteConcurrency: 2,
			AlertConcurrency: 8,
			OtherConcurrency: 4,
		},
		Queue: types.QueueConfig{
			Backend: "memory",
			Retry: types.RetryPolicy{
				MaxAttempts:       3,
				BackoffSeconds:    30,
				BackoffMultiplier: 2.0,
				RetryableFailures: []types.FailureCategory{
					types.FailureTransient,
					types.FailureTimeout,
				},
			},
		},
		Server: types.ServerConfig{Addr: ":8085"},
		Notify: types.NotifyConfig{Sink: "console"},
	}
}

// Load reads and parses a harvester.yaml file, applying defaults and
// validating the result.
func Load(path string) (*types.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	fc := fileFrom(Default())
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg := fc.config()

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func validate(cfg *types.Config) error {
	if cfg.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if cfg.Queue.Backend != "sqs" && cfg.Queue.Backend != "memory" {
		return fmt.Errorf("queue.backend must be %q or %q", "sqs", "memory")
	}
	if cfg.Queue.Backend == "sqs" {
		if cfg.Queue.Region == "" {
			return fmt.Errorf("queue.region is required when backend is sqs")
		}
		for _, stage := range []types.Stage{
			types.StageFetch, types.StageExtract, types.StageNormalize,
			types.StageWrite, types.StageAlert, types.StageDeliver,
			types.StageResolve,
		} {
			if cfg.Queue.QueueURLs[stage] == "" {
				return fmt.Errorf("queue.queueUrls.%s is required when backend is sqs", stage)
			}
		}
	}
	if cfg.Fetch.MaxPageBytes <= 0 || cfg.Fetch.MaxTotalBytes <= 0 {
		return fmt.Errorf("fetch size caps must be positive")
	}
	// Clamp rather than reject: operators raising the page cap past the
	// ceiling still get a working pipeline.
	if cfg.Fetch.MaxPages <= 0 || cfg.Fetch.MaxPages > HardPageCeiling {
		cfg.Fetch.MaxPages = HardPageCeiling
	}
	if cfg.Write.BatchSize <= 0 {
		return fmt.Errorf("write.batchSize must be positive")
	}
	if cfg.Write.VarianceThresholdPct <= 0 {
		return fmt.Errorf("write.varianceThresholdPct must be positive")
	}
	if cfg.Alert.RateCapShort <= 0 || cfg.Alert.RateCapLong <= 0 {
		return fmt.Errorf("alert rate caps must be positive")
	}
	if cfg.Queue.Retry.MaxAttempts <= 0 || cfg.Queue.Retry.MaxAttempts > hardMaxAttempts {
		return fmt.Errorf("queue.retry.maxAttempts must be between 1 and %d", hardMaxAttempts)
	}
	if cfg.Notify.Sink == "sns" && cfg.Notify.SNSTopicARN == "" {
		return fmt.Errorf("notify.snsTopicArn is required when sink is sns")
	}
	return nil
}
