package types

import "time"

// FetchConfig bounds the Fetcher's resource use. MaxPages is a hard ceiling
// applied regardless of per-source pagination config. Duration fields are
// decoded from YAML by the config package, which accepts "30s" style strings.
type FetchConfig struct {
	MaxPageBytes    int64         `json:"maxPageBytes"`
	MaxTotalBytes   int64         `json:"maxTotalBytes"`
	MaxPages        int           `json:"maxPages"`
	MaxItems        int           `json:"maxItems"`
	RequestTimeout  time.Duration `json:"requestTimeout"`
	UserAgent       string        `json:"userAgent,omitempty"`
	BreakerFailures uint32        `json:"breakerFailures,omitempty"`
	BreakerCooldown time.Duration `json:"breakerCooldown,omitempty"`
}

// WriteConfig bounds the Writer's batching and variance alerting.
type WriteConfig struct {
	BatchSize            int     `yaml:"batchSize" json:"batchSize"`
	VarianceThresholdPct float64 `yaml:"varianceThresholdPct" json:"varianceThresholdPct"`
	ErrorSampleSize      int     `yaml:"errorSampleSize" json:"errorSampleSize"`
}

// AlertConfig configures rule evaluation, rate limiting, and tier delays.
type AlertConfig struct {
	RateWindowShort time.Duration `json:"rateWindowShort"`
	RateCapShort    int           `json:"rateCapShort"`
	RateWindowLong  time.Duration `json:"rateWindowLong"`
	RateCapLong     int           `json:"rateCapLong"`
	BasicTierDelay  time.Duration `json:"basicTierDelay"`
	DefaultCooldown time.Duration `json:"defaultCooldown"`
}

// SchedulerConfig configures the due-source polling loop.
type SchedulerConfig struct {
	PollInterval time.Duration `json:"pollInterval"`
	LockTTL      time.Duration `json:"lockTTL"`
}

// WorkerConfig sets per-stage concurrency ceilings.
type WorkerConfig struct {
	FetchConcurrency int `yaml:"fetchConcurrency" json:"fetchConcurrency"`
	WriteConcurrency int `yaml:"writeConcurrency" json:"writeConcurrency"`
	AlertConcurrency int `yaml:"alertConcurrency" json:"alertConcurrency"`
	OtherConcurrency int `yaml:"otherConcurrency" json:"otherConcurrency"`
}

// RetryPolicy configures queue-level retry behavior for failed jobs.
type RetryPolicy struct {
	MaxAttempts       int               `yaml:"maxAttempts" json:"maxAttempts"`
	BackoffSeconds    int               `yaml:"backoffSeconds" json:"backoffSeconds"`
	BackoffMultiplier float64           `yaml:"backoffMultiplier,omitempty" json:"backoffMultiplier,omitempty"`
	RetryableFailures []FailureCategory `yaml:"retryableFailures,omitempty" json:"retryableFailures,omitempty"`
}

// PostgresConfig configures the canonical store.
type PostgresConfig struct {
	DSN string `yaml:"dsn" json:"dsn"`
}

// RedisConfig configures rate-limit counters and scheduler locks.
type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password,omitempty" json:"password,omitempty"`
	DB        int    `yaml:"db,omitempty" json:"db,omitempty"`
	KeyPrefix string `yaml:"keyPrefix,omitempty" json:"keyPrefix,omitempty"`
}

// QueueConfig configures the durable stage queues.
type QueueConfig struct {
	Backend   string           `yaml:"backend" json:"backend"` // "sqs" or "memory"
	Region    string           `yaml:"region,omitempty" json:"region,omitempty"`
	QueueURLs map[Stage]string `yaml:"queueUrls,omitempty" json:"queueUrls,omitempty"`
	Retry     RetryPolicy      `yaml:"retry" json:"retry"`
}

// ServerConfig configures the ops HTTP server.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// NotifyConfig configures outbound notification sinks.
type NotifyConfig struct {
	Sink        string `yaml:"sink" json:"sink"` // "console" or "sns"
	SNSTopicARN string `yaml:"snsTopicArn,omitempty" json:"snsTopicArn,omitempty"`
	Region      string `yaml:"region,omitempty" json:"region,omitempty"`
}

// MetricsConfig configures OTLP metric export. Empty endpoint disables export.
type MetricsConfig struct {
	OTLPEndpoint string `yaml:"otlpEndpoint,omitempty" json:"otlpEndpoint,omitempty"`
}

// Config is the root harvester.yaml document.
type Config struct {
	Postgres  PostgresConfig  `yaml:"postgres" json:"postgres"`
	Redis     RedisConfig     `yaml:"redis" json:"redis"`
	Queue     QueueConfig     `yaml:"queue" json:"queue"`
	Fetch     FetchConfig     `yaml:"fetch" json:"fetch"`
	Write     WriteConfig     `yaml:"write" json:"write"`
	Alert     AlertConfig     `yaml:"alert" json:"alert"`
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler"`
	Workers   WorkerConfig    `yaml:"workers" json:"workers"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Notify    NotifyConfig    `yaml:"notify" json:"notify"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
}
