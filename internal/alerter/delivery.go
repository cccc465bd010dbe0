package alerter

import (
	"context"
	"errors"
	"fmt"

	"github.com/ammobase/harvester/internal/metrics"
	"github.com/ammobase/harvester/internal/queue"
	"github.com/ammobase/harvester/internal/store"
	"github.com/ammobase/harvester/pkg/types"
)

// HandleDelivery completes a deferred basic-tier notification once its
// delay has elapsed. State may have moved during the delay window, so the
// alert and the user's preferences are re-validated before sending.
func (a *Alerter) HandleDelivery(ctx context.Context, job types.DeliverJob) error {
	alert, err := a.store.GetAlert(ctx, job.AlertID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return queue.Permanent(fmt.Errorf("alert %s: %w", job.AlertID, err))
		}
		return err
	}
	if !alert.Enabled {
		a.suppressDelivery(ctx, job, "alert_disabled")
		return nil
	}

	user, err := a.store.GetUser(ctx, job.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return queue.Permanent(fmt.Errorf("user %s: %w", job.UserID, err))
		}
		return err
	}
	if !user.NotificationsEnabled {
		a.suppressDelivery(ctx, job, "notifications_disabled")
		return nil
	}

	a.deliver(ctx, *alert, *user, job.Reason, job.ExecutionID)
	return nil
}

func (a *Alerter) suppressDelivery(ctx context.Context, job types.DeliverJob, reason string) {
	metrics.AlertsSuppressed.Add(1)
	a.appendLog(ctx, job.ExecutionID, types.LogInfo, types.EventAlertSuppressed,
		"deferred notification dropped at delivery", map[string]any{
			"alert": job.AlertID, "user": job.UserID, "reason": reason,
		})
}
