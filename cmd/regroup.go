package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/person-matcher/internal/config"
	"github.com/kozaktomas/person-matcher/internal/constants"
	"github.com/kozaktomas/person-matcher/internal/worker"
)

var regroupCmd = &cobra.Command{
	Use:   "regroup",
	Short: "Re-evaluate every stored sighting against all groups",
	Long: `Re-evaluate every stored sighting against all groups.

Useful after tuning the engine configuration: each sighting is re-scored
and moved to the group it now matches best. Groups left empty are removed
and the search index is rebuilt.

Examples:
  # Preview the moves without applying them
  person-matcher regroup --dry-run

  # Apply with more workers
  person-matcher regroup --workers 10`,
	Args: cobra.NoArgs,
	RunE: runRegroup,
}

func init() {
	rootCmd.AddCommand(regroupCmd)

	regroupCmd.Flags().Int("workers", constants.DefaultConcurrency, "Number of parallel scoring workers")
	regroupCmd.Flags().Bool("dry-run", false, "Preview moves without applying them")
}

func runRegroup(cmd *cobra.Command, args []string) error {
	workers := mustGetInt(cmd, "workers")
	dryRun := mustGetBool(cmd, "dry-run")

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal...")
		cancel()
	}()

	groupRepo, sightingRepo, err := initStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	if dryRun {
		fmt.Println("Mode: DRY RUN (no changes will be applied)")
	}

	regrouper := worker.NewRegrouper(groupRepo, sightingRepo, engineFromConfig(cfg), groupRepo)
	result, err := regrouper.Run(ctx, worker.RegroupOptions{
		DryRun:      dryRun,
		Concurrency: workers,
	})
	if err != nil {
		return fmt.Errorf("regroup failed: %w", err)
	}

	fmt.Printf("\nSightings evaluated: %d\n", result.SightingCount)
	fmt.Printf("Groups: %d\n", result.GroupCount)
	fmt.Printf("Moves proposed: %d\n", len(result.Moves))
	if !result.DryRun {
		fmt.Printf("Moves applied: %d\n", result.AppliedCount)
		if result.RemovedGroups > 0 {
			fmt.Printf("Empty groups removed: %d\n", result.RemovedGroups)
		}
	}

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors: %d\n", len(result.Errors))
		for _, msg := range result.Errors {
			fmt.Printf("  - %s\n", msg)
		}
	}

	if result.DryRun && len(result.Moves) > 0 {
		fmt.Println("\nProposed moves:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SIGHTING\tFROM\tTO\tPROBABILITY\tWHY")
		fmt.Fprintln(w, "--------\t----\t--\t-----------\t---")
		for _, move := range result.Moves {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d%%\t%s\n",
				move.SightingID, move.FromGroupID, move.ToGroupID, move.Probability, move.Explanation)
		}
		w.Flush()
	}

	return nil
}
