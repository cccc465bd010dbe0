package types

import "time"

// PaginationConfig describes how a source's pages are addressed.
type PaginationConfig struct {
	Kind      PaginationKind `yaml:"kind" json:"kind"`
	Param     string         `yaml:"param,omitempty" json:"param,omitempty"` // query param or path segment prefix
	StartPage int            `yaml:"startPage,omitempty" json:"startPage,omitempty"`
	MaxPages  int            `yaml:"maxPages,omitempty" json:"maxPages,omitempty"`
}

// Source is one crawlable endpoint: a URL plus pagination and format config.
// FeedHash is the fingerprint of the last successfully written crawl and is
// updated by the Writer only after a successful write.
type Source struct {
	ID         string           `json:"id"`
	RetailerID string           `json:"retailerId"`
	DealerID   string           `json:"dealerId"`
	URL        string           `json:"url"`
	Kind       SourceKind       `json:"kind"`
	Network    AffiliateNetwork `json:"network,omitempty"`
	Pagination PaginationConfig `json:"pagination"`
	FeedHash   string           `json:"feedHash,omitempty"`
	Interval   time.Duration    `json:"interval"`
	NextDueAt  time.Time        `json:"nextDueAt"`
	Enabled    bool             `json:"enabled"`
}

// Execution is one pipeline run for one source.
type Execution struct {
	ID             string          `json:"id"`
	SourceID       string          `json:"sourceId"`
	Status         ExecutionStatus `json:"status"`
	ItemsFound     int             `json:"itemsFound"`
	ItemsUpserted  int             `json:"itemsUpserted"`
	FailureMessage string          `json:"failureMessage,omitempty"`
	StartedAt      time.Time       `json:"startedAt"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
}

// ExecutionLog is one append-only structured event for an execution.
// Entries are never mutated or deleted.
type ExecutionLog struct {
	ExecutionID string         `json:"executionId"`
	Level       LogLevel       `json:"level"`
	Event       EventCode      `json:"event"`
	Message     string         `json:"message"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// RawItem is an untrusted item record of unknown shape, produced by an
// extractor or feed parser. It is validated at the Normalizer boundary.
type RawItem map[string]any

// AmmoAttributes are the domain attributes extracted during normalization.
type AmmoAttributes struct {
	Caliber      string  `json:"caliber,omitempty"`
	GrainWeight  int     `json:"grainWeight,omitempty"`
	RoundCount   int     `json:"roundCount,omitempty"`
	CaseMaterial string  `json:"caseMaterial,omitempty"`
	CostPerRound float64 `json:"costPerRound,omitempty"`
}

// NormalizedProduct is the canonical shape handed from the Normalizer to the
// Writer. It exists only inside a write job payload.
type NormalizedProduct struct {
	ProductID string         `json:"productId"` // UPC or content hash
	Name      string         `json:"name"`
	Brand     string         `json:"brand,omitempty"`
	UPC       string         `json:"upc,omitempty"`
	Price     float64        `json:"price"`
	Currency  string         `json:"currency"`
	URL       string         `json:"url"`
	ImageURL  string         `json:"imageUrl,omitempty"`
	InStock   bool           `json:"inStock"`
	Ammo      AmmoAttributes `json:"ammo"`
}

// Product is a canonical, deduplicated catalog entry. Never deleted.
type Product struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Brand     string         `json:"brand,omitempty"`
	UPC       string         `json:"upc,omitempty"`
	ImageURL  string         `json:"imageUrl,omitempty"`
	Ammo      AmmoAttributes `json:"ammo"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// SourceProduct is one source's observation of a listing, identified by
// (sourceID, URL), prior to cross-source resolution.
type SourceProduct struct {
	ID        string    `json:"id"`
	SourceID  string    `json:"sourceId"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Brand     string    `json:"brand,omitempty"`
	ProductID string    `json:"productId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Price is one immutable price observation. A row is inserted only when it
// differs from the most recent row for the same (productID, retailerID).
type Price struct {
	ID          int64     `json:"id"`
	ProductID   string    `json:"productId"`
	RetailerID  string    `json:"retailerId"`
	SourceID    string    `json:"sourceId"`
	Price       float64   `json:"price"`
	Currency    string    `json:"currency"`
	InStock     bool      `json:"inStock"`
	ObservedAt  time.Time `json:"observedAt"`
	ExecutionID string    `json:"executionId"`
}

// Dealer owns retail listings; its subscription state controls visibility.
type Dealer struct {
	ID     string             `json:"id"`
	Name   string             `json:"name"`
	Status SubscriptionStatus `json:"status"`
}

// User is the owner of alerts and watchlist entries.
type User struct {
	ID                   string   `json:"id"`
	Email                string   `json:"email"`
	Tier                 UserTier `json:"tier"`
	NotificationsEnabled bool     `json:"notificationsEnabled"`
}

// Alert is a user-defined notification rule. Thresholds apply to PRICE_DROP:
// the rule fires when the drop meets either the percentage or the absolute
// amount. Cooldown state lives on the WatchlistItem, not here.
type Alert struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	ProductID    string    `json:"productId"`
	Kind         AlertKind `json:"kind"`
	ThresholdPct float64   `json:"thresholdPct,omitempty"`
	ThresholdAmt float64   `json:"thresholdAmt,omitempty"`
	Enabled      bool      `json:"enabled"`
}

// WatchlistItem carries a user's per-product preference and cooldown state.
// LastNotifiedAt is mutated after every send; the Alert rule itself is not.
type WatchlistItem struct {
	ID             string        `json:"id"`
	UserID         string        `json:"userId"`
	ProductID      string        `json:"productId"`
	Cooldown       time.Duration `json:"cooldown"`
	LastNotifiedAt *time.Time    `json:"lastNotifiedAt,omitempty"`
}

// PriceChange is the delta evaluated by the Alerter.
type PriceChange struct {
	ExecutionID string   `json:"executionId"`
	ProductID   string   `json:"productId"`
	RetailerID  string   `json:"retailerId"`
	OldPrice    *float64 `json:"oldPrice,omitempty"`
	NewPrice    float64  `json:"newPrice"`
	OldInStock  *bool    `json:"oldInStock,omitempty"`
	InStock     bool     `json:"inStock"`
}

// Notification is a decided send: a rendered message for one recipient.
type Notification struct {
	ID          string    `json:"id"`
	AlertID     string    `json:"alertId"`
	UserID      string    `json:"userId"`
	Recipient   string    `json:"recipient"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	Reason      string    `json:"reason"` // e.g. "PRICE_DROP 29.99->24.99"
	ExecutionID string    `json:"executionId"`
	CreatedAt   time.Time `json:"createdAt"`
}
