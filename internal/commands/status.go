package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ammobase/harvester/internal/config"
	"github.com/ammobase/harvester/internal/store/postgres"
	"github.com/ammobase/harvester/pkg/types"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var configPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(configPath, limit)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "harvester.yaml", "path to config file")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of executions to show")
	return cmd
}

func runStatus(configPath string, limit int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := postgres.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer st.Close()

	execs, err := st.RecentExecutions(ctx, limit)
	if err != nil {
		return fmt.Errorf("listing executions: %w", err)
	}
	if len(execs) == 0 {
		fmt.Println("No executions yet.")
		return nil
	}

	bold := color.New(color.Bold)
	_, _ = bold.Println("Recent Executions:")
	fmt.Println()

	for _, e := range execs {
		var statusStr string
		switch e.Status {
		case types.ExecutionSuccess:
			statusStr = color.GreenString("SUCCESS")
		case types.ExecutionFailed:
			statusStr = color.RedString("FAILED ")
		default:
			statusStr = color.YellowString("PENDING")
		}

		fmt.Printf("  %-28s %s source=%-16s found=%-5d upserted=%-5d %s\n",
			e.ID, statusStr, e.SourceID, e.ItemsFound, e.ItemsUpserted,
			e.StartedAt.Format(time.RFC3339))
		if e.FailureMessage != "" {
			color.Red("    %s", e.FailureMessage)
		}
	}
	fmt.Println()
	return nil
}
