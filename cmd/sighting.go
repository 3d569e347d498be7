package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/person-matcher/internal/config"
	"github.com/kozaktomas/person-matcher/internal/embedding"
	"github.com/kozaktomas/person-matcher/internal/worker"
	"github.com/spf13/cobra"
)

var sightingCmd = &cobra.Command{
	Use:   "sighting [image]",
	Short: "Run one person crop through the grouping pipeline",
	Long: `Run one person crop through the grouping pipeline.

The image is described by the vision provider, scored against the stored
person groups, and the verdict is printed. By default nothing is written;
pass --apply to persist the sighting into its group.

Examples:
  # Dry run: see where a crop would land
  person-matcher sighting crop.jpg

  # Persist the sighting
  person-matcher sighting crop.jpg --apply --image-ref s3://captures/crop.jpg

  # Machine-readable output
  person-matcher sighting crop.jpg --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSighting,
}

func init() {
	rootCmd.AddCommand(sightingCmd)

	sightingCmd.Flags().Bool("apply", false, "Persist the sighting instead of a dry run")
	sightingCmd.Flags().String("image-ref", "", "External reference stored with the sighting (URL or path)")
	sightingCmd.Flags().String("provider", "", "Vision provider: openai, gemini, ollama (default from AI_PROVIDER)")
	sightingCmd.Flags().Bool("json", false, "Output as JSON")
}

func runSighting(cmd *cobra.Command, args []string) error {
	imagePath := args[0]
	apply := mustGetBool(cmd, "apply")
	imageRef := mustGetString(cmd, "image-ref")
	providerName := mustGetString(cmd, "provider")
	jsonOutput := mustGetBool(cmd, "json")

	cfg := config.Load()
	ctx := context.Background()

	provider, err := newVisionProvider(ctx, cfg, providerName)
	if err != nil {
		return err
	}

	groupRepo, sightingRepo, err := initStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	var embedder worker.Embedder
	if cfg.Search.EmbeddingURL != "" {
		embedder = embedding.NewClient(cfg.Search.EmbeddingURL)
	}

	image, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	ingestor := worker.NewIngestor(provider, groupRepo, sightingRepo, engineFromConfig(cfg), embedder, cfg.Search.CandidateLimit)
	result, err := ingestor.ProcessSighting(ctx, worker.IngestInput{
		Image:    image,
		ImageRef: imageRef,
		DryRun:   !apply,
	})
	if err != nil {
		return fmt.Errorf("failed to process sighting: %w", err)
	}

	if jsonOutput {
		return outputJSON(result)
	}

	fmt.Printf("Action: %s", result.Action)
	if result.DryRun {
		fmt.Print(" (dry run, nothing persisted)")
	}
	fmt.Println()
	if result.GroupID != "" {
		fmt.Printf("Group: %s\n", result.GroupID)
	}
	if result.Duplicate != nil {
		fmt.Printf("Duplicate of sighting %d in group %s (hamming distance %d)\n",
			result.Duplicate.SightingID, result.Duplicate.GroupID, result.Duplicate.Distance)
	}
	fmt.Printf("Probability: %d%%\n", result.Probability)
	fmt.Printf("Clarity: %d/100\n", result.Clarity)
	fmt.Println(result.Explanation)

	if len(result.Shortlist) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "GROUP\tPROBABILITY\tPRO\tCONTRA\tMEMBERS\tNOTE")
		fmt.Fprintln(w, "-----\t-----------\t---\t------\t-------\t----")
		for _, entry := range result.Shortlist {
			note := entry.Note
			if entry.Vetoed && note == "" {
				note = "vetoed"
			}
			fmt.Fprintf(w, "%s\t%d%%\t%.0f\t%.0f\t%d\t%s\n",
				entry.GroupID, entry.Probability, entry.NormPro, entry.NormContra, entry.MemberCount, note)
		}
		w.Flush()
	}

	return nil
}
