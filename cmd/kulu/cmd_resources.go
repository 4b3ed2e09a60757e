package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kulu-io/kulu/cost"
	"github.com/kulu-io/kulu/types"
)

var (
	resourcesKind    string
	resourcesAccount string
)

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "List resources in the stored inventory",
	Example: `  kulu resources                    # All resources
  kulu resources --kind volume      # Volumes only
  kulu resources --account 111111   # One account`,
	RunE: runResources,
}

func init() {
	rootCmd.AddCommand(resourcesCmd)

	resourcesCmd.Flags().StringVarP(&resourcesKind, "kind", "k", "", "Filter by kind (instance, volume, snapshot, database)")
	resourcesCmd.Flags().StringVarP(&resourcesAccount, "account", "a", "", "Filter by account ID")
}

func runResources(cmd *cobra.Command, args []string) error {
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

	filter := types.ResourceFilter{
		Kind:      resourcesKind,
		AccountID: resourcesAccount,
	}
	resources, err := store.ListResources(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list resources: %w", err)
	}

	if len(resources) == 0 {
		fmt.Println("No resources in inventory. Run 'kulu collect' first.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tKIND\tACCOUNT\tLOCATION\tSTATUS\tEST COST/MO\tLAST SEEN")

	var totalCost float64
	for _, r := range resources {
		monthly := cost.MonthlyCost(r)
		totalCost += monthly
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t$%.2f\t%s\n",
			r.ID, r.Kind, r.AccountID, r.Location, r.Status, monthly,
			r.LastSeenAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()

	fmt.Printf("\n%d resources, estimated $%.2f/month\n", len(resources), totalCost)
	return nil
}
