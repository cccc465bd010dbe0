// Package types defines the public domain types for the harvest pipeline.
package types

// ExecutionStatus represents the lifecycle state of a pipeline execution.
type ExecutionStatus string

// ExecutionStatus values. PENDING is the only non-terminal state; an
// execution transitions to exactly one of SUCCESS or FAILED.
const (
	ExecutionPending ExecutionStatus = "PENDING"
	ExecutionSuccess ExecutionStatus = "SUCCESS"
	ExecutionFailed  ExecutionStatus = "FAILED"
)

// PaginationKind defines how a source advances through pages.
type PaginationKind string

const (
	PaginationNone  PaginationKind = "none"
	PaginationQuery PaginationKind = "query" // ?page=N style
	PaginationPath  PaginationKind = "path"  // /page/N style
)

// AffiliateNetwork identifies a feed format with a dedicated parser.
// Sources without a network go through the generic extractor instead.
type AffiliateNetwork string

const (
	NetworkNone      AffiliateNetwork = ""
	NetworkAvantLink AffiliateNetwork = "avantlink"
	NetworkImpact    AffiliateNetwork = "impact"
)

// SourceKind labels a source for metrics and routing.
type SourceKind string

const (
	SourceFeed   SourceKind = "feed"
	SourceScrape SourceKind = "scrape"
)

// LogLevel is the severity of an execution log event.
type LogLevel string

const (
	LogInfo  LogLevel = "INFO"
	LogWarn  LogLevel = "WARN"
	LogError LogLevel = "ERROR"
)

// EventCode identifies the pipeline event an execution log entry records.
type EventCode string

const (
	EventFetchStarted     EventCode = "FETCH_STARTED"
	EventPageFetched      EventCode = "PAGE_FETCHED"
	EventCapReached       EventCode = "CAP_REACHED"
	EventFeedUnchanged    EventCode = "FEED_UNCHANGED"
	EventFetchRouted      EventCode = "FETCH_ROUTED"
	EventItemsExtracted   EventCode = "ITEMS_EXTRACTED"
	EventItemDropped      EventCode = "ITEM_DROPPED"
	EventItemsNormalized  EventCode = "ITEMS_NORMALIZED"
	EventBatchWritten     EventCode = "BATCH_WRITTEN"
	EventBatchFellBack    EventCode = "BATCH_FELL_BACK"
	EventItemWriteFailed  EventCode = "ITEM_WRITE_FAILED"
	EventPriceChanged     EventCode = "PRICE_CHANGED"
	EventVarianceExceeded EventCode = "VARIANCE_EXCEEDED"
	EventJobEnqueued      EventCode = "JOB_ENQUEUED"
	EventExecutionDone    EventCode = "EXECUTION_DONE"
	EventExecutionFailed  EventCode = "EXECUTION_FAILED"
	EventAlertEvaluated   EventCode = "ALERT_EVALUATED"
	EventAlertSuppressed  EventCode = "ALERT_SUPPRESSED"
	EventAlertDeferred    EventCode = "ALERT_DEFERRED"
	EventAlertDispatched  EventCode = "ALERT_DISPATCHED"
)

// AlertKind is the rule type of a user alert.
type AlertKind string

const (
	AlertPriceDrop   AlertKind = "PRICE_DROP"
	AlertBackInStock AlertKind = "BACK_IN_STOCK"
)

// SubscriptionStatus is a dealer's billing state. Prices from suspended or
// cancelled dealers are not visible to users or to alerting.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionExpired   SubscriptionStatus = "EXPIRED" // grace period, still visible
	SubscriptionSuspended SubscriptionStatus = "SUSPENDED"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
)

// Visible reports whether prices owned by a dealer in this state may be
// shown or alerted on.
func (s SubscriptionStatus) Visible() bool {
	return s == SubscriptionActive || s == SubscriptionExpired
}

// UserTier determines notification delivery latency.
type UserTier string

const (
	TierBasic   UserTier = "basic"
	TierPremium UserTier = "premium"
)

// FailureCategory classifies why a stage job failed, for retry decisions.
type FailureCategory string

const (
	FailureTransient FailureCategory = "TRANSIENT"
	FailureTimeout   FailureCategory = "TIMEOUT"
	FailurePermanent FailureCategory = "PERMANENT"
)

// Stage names the pipeline stages; used for queue routing and job identity.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageExtract   Stage = "extract"
	StageNormalize Stage = "normalize"
	StageWrite     Stage = "write"
	StageAlert     Stage = "alert"
	StageDeliver   Stage = "deliver"
	StageResolve   Stage = "resolve"
)

// VarianceDisposition labels how a large price swing was handled.
type VarianceDisposition string

const (
	VarianceAccepted    VarianceDisposition = "accepted"
	VarianceQuarantined VarianceDisposition = "quarantined"
	VarianceClamped     VarianceDisposition = "clamped"
)
