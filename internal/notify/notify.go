// Package notify implements notification delivery sinks.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ammobase/harvester/pkg/types"
)

// Sink is a notification destination. Implementations receive a fully
// rendered message and recipient; they never evaluate rules.
type Sink interface {
	Send(ctx context.Context, n types.Notification) error
	Name() string
}

// Dispatcher sends notifications fire-and-forget: a sink failure is logged
// and never fails the pipeline run that produced the notification.
type Dispatcher struct {
	sink   Sink
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher over one sink.
func NewDispatcher(sink Sink, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sink: sink, logger: logger}
}

// Dispatch sends the notification, swallowing sink errors.
func (d *Dispatcher) Dispatch(ctx context.Context, n types.Notification) {
	if err := d.sink.Send(ctx, n); err != nil {
		d.logger.Error("notification send failed",
			"sink", d.sink.Name(), "notification", n.ID, "user", n.UserID, "error", err)
	}
}

// NewSink constructs the sink named by the config.
func NewSink(cfg types.NotifyConfig) (Sink, error) {
	switch cfg.Sink {
	case "", "console":
		return NewConsoleSink(), nil
	case "sns":
		return NewSNSSink(cfg.SNSTopicARN)
	default:
		return nil, fmt.Errorf("unknown notify sink %q", cfg.Sink)
	}
}
