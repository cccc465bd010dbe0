// Package alerter evaluates user alert rules against price and stock
// changes and dispatches or defers the resulting notifications.
package alerter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ammobase/harvester/internal/metrics"
	"github.com/ammobase/harvester/internal/notify"
	"github.com/ammobase/harvester/internal/queue"
	"github.com/ammobase/harvester/internal/store"
	"github.com/ammobase/harvester/pkg/types"
)

// Alerter executes alert-evaluation jobs.
type Alerter struct {
	store      store.Store
	queue      queue.Queue
	limiter    Limiter
	dispatcher *notify.Dispatcher
	cfg        types.AlertConfig
	logger     *slog.Logger
	now        func() time.Time
}

// New creates an Alerter.
func New(st store.Store, q queue.Queue, limiter Limiter, dispatcher *notify.Dispatcher, cfg types.AlertConfig, logger *slog.Logger) *Alerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Alerter{
		store:      st,
		queue:      q,
		limiter:    limiter,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock overrides the time source (for tests).
func (a *Alerter) SetClock(now func() time.Time) { a.now = now }

// Handle evaluates every enabled alert for the changed product. Evaluation
// errors on one alert do not stop the rest.
func (a *Alerter) Handle(ctx context.Context, job types.AlertJob) error {
	ch := job.Change

	visible, err := a.store.VisiblePriceExists(ctx, ch.ProductID)
	if err != nil {
		return fmt.Errorf("visibility check for %s: %w", ch.ProductID, err)
	}
	if !visible {
		a.appendLog(ctx, ch.ExecutionID, types.LogInfo, types.EventAlertSuppressed,
			"no visible price for product", map[string]any{"product": ch.ProductID, "reason": "dealer_not_visible"})
		return nil
	}

	alerts, err := a.store.AlertsForProduct(ctx, ch.ProductID)
	if err != nil {
		return fmt.Errorf("loading alerts for %s: %w", ch.ProductID, err)
	}

	for _, alert := range alerts {
		a.evaluate(ctx, alert, ch)
	}
	return nil
}

// evaluate runs one alert rule end to end: rule match, cooldown, user
// preference, rate limit, then tiered dispatch.
func (a *Alerter) evaluate(ctx context.Context, alert types.Alert, ch types.PriceChange) {
	reason, fires := RuleFires(alert, ch)
	if !fires {
		return
	}
	a.appendLog(ctx, ch.ExecutionID, types.LogInfo, types.EventAlertEvaluated,
		"alert rule fired", map[string]any{"alert": alert.ID, "user": alert.UserID, "reason": reason})

	now := a.now()
	item, err := a.store.GetWatchlistItem(ctx, alert.UserID, alert.ProductID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		a.logger.Error("watchlist lookup failed", "alert", alert.ID, "error", err)
		return
	}
	if item != nil && item.LastNotifiedAt != nil {
		cooldown := item.Cooldown
		if cooldown <= 0 {
			cooldown = a.cfg.DefaultCooldown
		}
		if now.Sub(*item.LastNotifiedAt) < cooldown {
			a.suppress(ctx, alert, ch, "cooldown")
			return
		}
	}

	user, err := a.store.GetUser(ctx, alert.UserID)
	if err != nil {
		a.logger.Error("user lookup failed", "alert", alert.ID, "user", alert.UserID, "error", err)
		return
	}
	if !user.NotificationsEnabled {
		a.suppress(ctx, alert, ch, "notifications_disabled")
		return
	}

	allowed, err := a.limiter.Allow(ctx, user.ID)
	if err != nil {
		// Fail closed: a broken limiter must not open the floodgates.
		a.logger.Error("rate limiter unavailable, suppressing", "user", user.ID, "error", err)
		a.suppress(ctx, alert, ch, "rate_limiter_error")
		return
	}
	if !allowed {
		a.suppress(ctx, alert, ch, "rate_limited")
		return
	}

	if item != nil {
		if err := a.store.TouchWatchlistItem(ctx, item.ID, now); err != nil {
			a.logger.Error("failed to record cooldown", "item", item.ID, "error", err)
		}
	}

	if user.Tier == types.TierPremium {
		a.deliver(ctx, alert, *user, reason, ch.ExecutionID)
		return
	}

	// Basic tier waits out the delay on the queue; delivery re-validates.
	job := types.DeliverJob{AlertID: alert.ID, UserID: user.ID, Reason: reason, ExecutionID: ch.ExecutionID}
	err = queue.Publish(ctx, a.queue, types.StageDeliver, job, queue.Options{
		Delay:   a.cfg.BasicTierDelay,
		DedupID: queue.JobID(ch.ExecutionID, types.StageDeliver, alert.ID),
	})
	if err != nil {
		a.logger.Error("failed to defer notification", "alert", alert.ID, "error", err)
		return
	}
	metrics.AlertsDeferred.Add(1)
	a.appendLog(ctx, ch.ExecutionID, types.LogInfo, types.EventAlertDeferred,
		"notification deferred for basic tier", map[string]any{
			"alert": alert.ID, "user": user.ID, "delay": a.cfg.BasicTierDelay.String(),
		})
}

// RuleFires reports whether the alert's rule matches the change, and the
// trigger reason when it does.
func RuleFires(alert types.Alert, ch types.PriceChange) (string, bool) {
	switch alert.Kind {
	case types.AlertPriceDrop:
		if ch.OldPrice == nil || ch.NewPrice >= *ch.OldPrice {
			return "", false
		}
		drop := *ch.OldPrice - ch.NewPrice
		dropPct := drop / *ch.OldPrice * 100
		byPct := alert.ThresholdPct > 0 && dropPct >= alert.ThresholdPct
		byAmt := alert.ThresholdAmt > 0 && drop >= alert.ThresholdAmt
		anyDrop := alert.ThresholdPct <= 0 && alert.ThresholdAmt <= 0
		if byPct || byAmt || anyDrop {
			return fmt.Sprintf("PRICE_DROP %.2f->%.2f", *ch.OldPrice, ch.NewPrice), true
		}
		return "", false
	case types.AlertBackInStock:
		if ch.InStock && ch.OldInStock != nil && !*ch.OldInStock {
			return "BACK_IN_STOCK", true
		}
		return "", false
	default:
		return "", false
	}
}

func (a *Alerter) suppress(ctx context.Context, alert types.Alert, ch types.PriceChange, reason string) {
	metrics.AlertsSuppressed.Add(1)
	a.appendLog(ctx, ch.ExecutionID, types.LogInfo, types.EventAlertSuppressed,
		"notification suppressed", map[string]any{"alert": alert.ID, "user": alert.UserID, "reason": reason})
}

// deliver renders, records, and sends one notification.
func (a *Alerter) deliver(ctx context.Context, alert types.Alert, user types.User, reason, executionID string) {
	n := types.Notification{
		ID:          ulid.Make().String(),
		AlertID:     alert.ID,
		UserID:      user.ID,
		Recipient:   user.Email,
		Subject:     renderSubject(alert, reason),
		Body:        renderBody(alert, reason),
		Reason:      reason,
		ExecutionID: executionID,
		CreatedAt:   a.now(),
	}
	if err := a.store.AppendNotification(ctx, n); err != nil {
		a.logger.Error("failed to record notification", "alert", alert.ID, "error", err)
		return
	}
	a.dispatcher.Dispatch(ctx, n)
	metrics.AlertsDispatched.Add(1)
	a.appendLog(ctx, executionID, types.LogInfo, types.EventAlertDispatched,
		"notification dispatched", map[string]any{"alert": alert.ID, "user": user.ID, "notification": n.ID})
}

func renderSubject(alert types.Alert, reason string) string {
	if alert.Kind == types.AlertBackInStock {
		return fmt.Sprintf("Back in stock: %s", alert.ProductID)
	}
	return fmt.Sprintf("Price drop: %s", alert.ProductID)
}

func renderBody(alert types.Alert, reason string) string {
	return fmt.Sprintf("Your alert on product %s triggered: %s", alert.ProductID, reason)
}

func (a *Alerter) appendLog(ctx context.Context, executionID string, level types.LogLevel, event types.EventCode, msg string, meta map[string]any) {
	err := a.store.AppendLog(ctx, types.ExecutionLog{
		ExecutionID: executionID,
		Level:       level,
		Event:       event,
		Message:     msg,
		Metadata:    meta,
	})
	if err != nil {
		a.logger.Error("failed to append execution log", "execution", executionID, "error", err)
	}
}
