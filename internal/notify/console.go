package notify

import (
	"context"
	"fmt"

	"github.com/fatih/color"

	"github.com/ammobase/harvester/pkg/types"
)

// ConsoleSink writes notifications to the terminal. Used in development
// and as the default when no email provider is configured.
type ConsoleSink struct{}

// NewConsoleSink creates a console notification sink.
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{}
}

// Name returns the sink identifier.
func (s *ConsoleSink) Name() string { return "console" }

// Send prints the rendered notification.
func (s *ConsoleSink) Send(_ context.Context, n types.Notification) error {
	prefix := color.GreenString("[NOTIFY]")
	fmt.Printf("%s %s -> %s: %s\n", prefix, n.Reason, n.Recipient, n.Subject)
	return nil
}
