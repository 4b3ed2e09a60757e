package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kulu-io/kulu/checks"
	"github.com/kulu-io/kulu/telemetry"
)

var analyzeOutput string

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Evaluate optimization checks over the stored inventory",
	Long: `Run every registered check against the current inventory and
its collected metrics. Findings are ranked by severity and estimated
monthly savings, and replace the previously stored set.`,
	Example: `  kulu analyze                # Ranked findings table
  kulu analyze --output json  # Full report as JSON`,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "table", "Output format: table, json")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	engine := checks.NewEngine(store, store, checks.NewDefaultRegistry(), cfg.Thresholds())
	report, err := engine.Evaluate(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	if err := store.ReplaceFindings(ctx, report.Findings); err != nil {
		return fmt.Errorf("failed to persist findings: %w", err)
	}
	if telemetry.FindingsActive != nil {
		telemetry.FindingsActive.Record(ctx, int64(len(report.Findings)))
	}

	switch analyzeOutput {
	case "json":
		return outputReportJSON(report)
	case "table":
		return outputReportTable(report)
	default:
		return fmt.Errorf("invalid output format: %s (must be table or json)", analyzeOutput)
	}
}

func outputReportJSON(report checks.Report) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func outputReportTable(report checks.Report) error {
	fmt.Printf("Evaluated %d resources\n\n", report.ResourcesEvaluated)

	if len(report.Findings) == 0 {
		fmt.Println("No findings. Everything looks right-sized.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SEVERITY\tCHECK\tRESOURCE\tSAVINGS/MO\tDESCRIPTION")

	for _, f := range report.Findings {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t$%.2f\t%s\n",
			f.Severity, f.CheckName, f.ResourceID, f.MonthlySavings,
			truncate(f.Description, 60))
	}
	_ = w.Flush()

	fmt.Printf("\nEstimated total savings: $%.2f/month across %d findings\n",
		report.TotalMonthlySavings, len(report.Findings))

	if len(report.Failures) > 0 {
		fmt.Printf("\n%d checks failed to evaluate:\n", len(report.Failures))
		for _, fail := range report.Failures {
			fmt.Printf("   %s on %s: %s\n", fail.CheckName, fail.ResourceID, fail.Message)
		}
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
