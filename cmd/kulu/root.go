package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	configPath string

	rootCmd = &cobra.Command{
		Use:   "kulu",
		Short: "Cloud resource telemetry and optimization",
		Long: `Kulu - Cloud Resource Telemetry and Optimization

Kulu discovers cloud resources, collects their utilization metrics
into an embedded time-series store, and evaluates them against
optimization checks to surface idle, oversized and forgotten
resources with estimated monthly savings.`,
		Version: version,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "kulu.yaml", "Path to config file")
	rootCmd.SetVersionTemplate(`Kulu {{.Version}} - Cloud Resource Telemetry and Optimization
`)
}
