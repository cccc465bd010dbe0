package types

// Queue job payloads. Every payload carries the execution id so each stage
// can append to the same audit trail and derive its deterministic job
// identity (one job per execution per stage).

// FetchJob asks the Fetcher to crawl one source.
type FetchJob struct {
	SourceID    string `json:"sourceId"`
	ExecutionID string `json:"executionId"`
	URL         string `json:"url"`
	ContentType string `json:"contentType,omitempty"`
}

// ExtractJob carries assembled raw content to the generic extractor.
type ExtractJob struct {
	ExecutionID string     `json:"executionId"`
	SourceID    string     `json:"sourceId"`
	Content     []byte     `json:"content"`
	SourceKind  SourceKind `json:"sourceKind"`
	ContentHash string     `json:"contentHash"`
}

// NormalizeJob carries raw items to the Normalizer.
type NormalizeJob struct {
	ExecutionID string    `json:"executionId"`
	SourceID    string    `json:"sourceId"`
	RawItems    []RawItem `json:"rawItems"`
	ContentHash string    `json:"contentHash"`
}

// WriteJob carries normalized items to the Writer.
type WriteJob struct {
	ExecutionID string              `json:"executionId"`
	SourceID    string              `json:"sourceId"`
	Items       []NormalizedProduct `json:"items"`
	ContentHash string              `json:"contentHash"`
}

// AlertJob carries one price/stock change to the Alerter.
type AlertJob struct {
	Change PriceChange `json:"change"`
}

// DeliverJob re-validates and delivers a deferred notification after its
// tier delay has elapsed.
type DeliverJob struct {
	AlertID     string `json:"alertId"`
	UserID      string `json:"userId"`
	Reason      string `json:"triggerReason"`
	ExecutionID string `json:"executionId"`
}

// ResolveJob enqueues cross-source resolution work for one source product.
// The resolver itself is an external collaborator; it deduplicates.
type ResolveJob struct {
	SourceProductID string `json:"sourceProductId"`
	SourceID        string `json:"sourceId"`
}
