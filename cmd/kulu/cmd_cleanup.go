package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var cleanupOlderThan time.Duration

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete samples past the retention window",
	Long: `Remove time-series samples older than the retention cutoff.
Inventory, runs and findings are never touched. The daemon performs
this sweep automatically on each cycle; this command exists for
one-off maintenance.`,
	Example: `  kulu cleanup                    # Use the configured retention
  kulu cleanup --older-than 168h  # Explicit cutoff (7 days)`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().DurationVar(&cleanupOlderThan, "older-than", 0, "Delete samples older than this (defaults to configured retention)")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	retention := cleanupOlderThan
	if retention <= 0 {
		retention = time.Duration(cfg.Retention.Days) * 24 * time.Hour
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	cutoff := time.Now().Add(-retention)
	deleted, err := store.DeleteSamplesBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("retention sweep failed: %w", err)
	}

	fmt.Printf("Deleted %d samples older than %s\n", deleted, cutoff.Format(time.RFC3339))

	if last, err := store.LastRetentionSweep(ctx); err == nil && !last.IsZero() {
		fmt.Printf("Last sweep recorded at %s\n", last.Format(time.RFC3339))
	}
	return nil
}
