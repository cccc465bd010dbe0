// Package metrics exposes runtime counters via expvar plus OTel instruments
// for the labeled price-variance observations.
package metrics

import "expvar"

var (
	ExecutionsStarted   = expvar.NewInt("executions_started")
	ExecutionsSucceeded = expvar.NewInt("executions_succeeded")
	ExecutionsFailed    = expvar.NewInt("executions_failed")
	FeedsUnchanged      = expvar.NewInt("feeds_unchanged")
	PagesFetched        = expvar.NewInt("pages_fetched")
	CapsReached         = expvar.NewInt("caps_reached")
	ItemsDropped        = expvar.NewInt("items_dropped")
	ItemsNormalized     = expvar.NewInt("items_normalized")
	ProductsUpserted    = expvar.NewInt("products_upserted")
	PricesInserted      = expvar.NewInt("prices_inserted")
	BatchFallbacks      = expvar.NewInt("batch_fallbacks")
	AlertsDispatched    = expvar.NewInt("alerts_dispatched")
	AlertsSuppressed    = expvar.NewInt("alerts_suppressed")
	AlertsDeferred      = expvar.NewInt("alerts_deferred")
	RetriesScheduled    = expvar.NewInt("retries_scheduled")
)
