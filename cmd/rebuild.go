package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Retrain the classifier from the stored gallery and recommit it",
	Long: `Retrain the classifier from the persisted gallery and write the durable state
again. Use it after the classifier artifact was lost or CLASSIFIER changed.
Gallery membership does not change.`,
	RunE: runRebuild,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)

	rebuildCmd.Flags().Bool("json", false, "Output as JSON")
}

func runRebuild(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	ctx := context.Background()
	a, err := openApp(ctx, appOptions{noSensor: true})
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	stats, err := a.engine.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}

	if jsonOutput {
		return outputJSON(stats)
	}
	fmt.Printf("Rebuilt %s classifier over %d identities in %s\n", stats.ClassifierKind, stats.Records, formatDuration(time.Since(start)))
	fmt.Printf("  State:    %s\n", stats.ClassifierState)
	fmt.Printf("  Features: %s (%d)\n", stats.Strategy, stats.Dim)
	return nil
}
