package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ammobase/harvester/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "harvester",
		Short: "Continuous product and pricing harvester",
		Long: `Harvester pulls product listings from untrusted retailer sources,
normalizes them into a canonical ammunition catalog, persists price history
idempotently, and drives price-drop and back-in-stock alerting.`,
		Version: version,
	}

	root.AddCommand(
		commands.NewRunCmd(),
		commands.NewMigrateCmd(),
		commands.NewStatusCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
