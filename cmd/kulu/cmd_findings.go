package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var findingsCmd = &cobra.Command{
	Use:     "findings",
	Short:   "Show the findings from the latest analysis",
	Example: `  kulu findings   # Ranked findings from the last analyze/daemon cycle`,
	RunE:    runFindings,
}

func init() {
	rootCmd.AddCommand(findingsCmd)
}

func runFindings(cmd *cobra.Command, args []string) error {
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

	findings, err := store.ListFindings(ctx)
	if err != nil {
		return fmt.Errorf("failed to list findings: %w", err)
	}

	if len(findings) == 0 {
		fmt.Println("No stored findings. Run 'kulu analyze' first.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SEVERITY\tCHECK\tRESOURCE\tSAVINGS/MO\tDESCRIPTION")

	var total float64
	for _, f := range findings {
		total += f.MonthlySavings
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t$%.2f\t%s\n",
			f.Severity, f.CheckName, f.ResourceID, f.MonthlySavings,
			truncate(f.Description, 60))
	}
	_ = w.Flush()

	fmt.Printf("\nEstimated total savings: $%.2f/month\n", total)
	return nil
}
