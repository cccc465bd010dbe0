package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ammobase/harvester/pkg/types"
)

// duration decodes human-readable YAML values such as "30s" or "6h".
// gopkg.in/yaml.v3 has no native time.Duration support.
type duration time.Duration

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = duration(v)
	return nil
}

func (d duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// fileConfig mirrors types.Config for YAML decoding. Sections that carry
// durations get a mirror struct; the rest decode straight into the shared
// types. Decoding happens over a struct pre-seeded with defaults, so absent
// keys keep their default values.
type fileConfig struct {
	Postgres  types.PostgresConfig `yaml:"postgres"`
	Redis     types.RedisConfig    `yaml:"redis"`
	Queue     types.QueueConfig    `yaml:"queue"`
	Fetch     fetchFile            `yaml:"fetch"`
	Write     types.WriteConfig    `yaml:"write"`
	Alert     alertFile            `yaml:"alert"`
	Scheduler schedulerFile        `yaml:"scheduler"`
	Workers   types.WorkerConfig   `yaml:"workers"`
	Server    types.ServerConfig   `yaml:"server"`
	Notify    types.NotifyConfig   `yaml:"notify"`
	Metrics   types.MetricsConfig  `yaml:"metrics"`
}

type fetchFile struct {
	MaxPageBytes    int64    `yaml:"maxPageBytes"`
	MaxTotalBytes   int64    `yaml:"maxTotalBytes"`
	MaxPages        int      `yaml:"maxPages"`
	MaxItems        int      `yaml:"maxItems"`
	RequestTimeout  duration `yaml:"requestTimeout"`
	UserAgent       string   `yaml:"userAgent"`
	BreakerFailures uint32   `yaml:"breakerFailures"`
	BreakerCooldown duration `yaml:"breakerCooldown"`
}

type alertFile struct {
	RateWindowShort duration `yaml:"rateWindowShort"`
	RateCapShort    int      `yaml:"rateCapShort"`
	RateWindowLong  duration `yaml:"rateWindowLong"`
	RateCapLong     int      `yaml:"rateCapLong"`
	BasicTierDelay  duration `yaml:"basicTierDelay"`
	DefaultCooldown duration `yaml:"defaultCooldown"`
}

type schedulerFile struct {
	PollInterval duration `yaml:"pollInterval"`
	LockTTL      duration `yaml:"lockTTL"`
}

func fileFrom(cfg types.Config) fileConfig {
	return fileConfig{
		Postgres: cfg.Postgres,
		Redis:    cfg.Redis,
		Queue:    cfg.Queue,
		Fetch: fetchFile{
			MaxPageBytes:    cfg.Fetch.MaxPageBytes,
			MaxTotalBytes:   cfg.Fetch.MaxTotalBytes,
			MaxPages:        cfg.Fetch.MaxPages,
			MaxItems:        cfg.Fetch.MaxItems,
			RequestTimeout:  duration(cfg.Fetch.RequestTimeout),
			UserAgent:       cfg.Fetch.UserAgent,
			BreakerFailures: cfg.Fetch.BreakerFailures,
			BreakerCooldown: duration(cfg.Fetch.BreakerCooldown),
		},
		Write: cfg.Write,
		Alert: alertFile{
			RateWindowShort: duration(cfg.Alert.RateWindowShort),
			RateCapShort:    cfg.Alert.RateCapShort,
			RateWindowLong:  duration(cfg.Alert.RateWindowLong),
			RateCapLong:     cfg.Alert.RateCapLong,
			BasicTierDelay:  duration(cfg.Alert.BasicTierDelay),
			DefaultCooldown: duration(cfg.Alert.DefaultCooldown),
		},
		Scheduler: schedulerFile{
			PollInterval: duration(cfg.Scheduler.PollInterval),
			LockTTL:      duration(cfg.Scheduler.LockTTL),
		},
		Workers: cfg.Workers,
		Server:  cfg.Server,
		Notify:  cfg.Notify,
		Metrics: cfg.Metrics,
	}
}

func (f fileConfig) config() types.Config {
	return types.Config{
		Postgres: f.Postgres,
		Redis:    f.Redis,
		Queue:    f.Queue,
		Fetch: types.FetchConfig{
			MaxPageBytes:    f.Fetch.MaxPageBytes,
			MaxTotalBytes:   f.Fetch.MaxTotalBytes,
			MaxPages:        f.Fetch.MaxPages,
			MaxItems:        f.Fetch.MaxItems,
			RequestTimeout:  time.Duration(f.Fetch.RequestTimeout),
			UserAgent:       f.Fetch.UserAgent,
			BreakerFailures: f.Fetch.BreakerFailures,
			BreakerCooldown: time.Duration(f.Fetch.BreakerCooldown),
		},
		Write: f.Write,
		Alert: types.AlertConfig{
			RateWindowShort: time.Duration(f.Alert.RateWindowShort),
			RateCapShort:    f.Alert.RateCapShort,
			RateWindowLong:  time.Duration(f.Alert.RateWindowLong),
			RateCapLong:     f.Alert.RateCapLong,
			BasicTierDelay:  time.Duration(f.Alert.BasicTierDelay),
			DefaultCooldown: time.Duration(f.Alert.DefaultCooldown),
		},
		Scheduler: types.SchedulerConfig{
			PollInterval: time.Duration(f.Scheduler.PollInterval),
			LockTTL:      time.Duration(f.Scheduler.LockTTL),
		},
		Workers: f.Workers,
		Server:  f.Server,
		Notify:  f.Notify,
		Metrics: f.Metrics,
	}
}
