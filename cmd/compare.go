package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/person-matcher/internal/ai"
	"github.com/kozaktomas/person-matcher/internal/config"
	"github.com/kozaktomas/person-matcher/internal/person"
	"github.com/kozaktomas/person-matcher/internal/worker"
	"github.com/spf13/cobra"
)

var compareCmd = &cobra.Command{
	Use:   "compare [image-a] [image-b]",
	Short: "Compare two sightings and print the match verdict",
	Long: `Compare two sightings and print the match verdict.

Each side can be an image (described by the vision provider) or a saved
description JSON file passed via --desc-a / --desc-b. Mixing is fine:
compare a fresh crop against a description exported earlier.

Examples:
  # Compare two image crops
  person-matcher compare cam1.jpg cam2.jpg

  # Compare a crop against a saved description
  person-matcher compare cam1.jpg --desc-b suspect.json

  # Compare two saved descriptions, no provider needed
  person-matcher compare --desc-a first.json --desc-b second.json --json`,
	Args: cobra.MaximumNArgs(2),
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)

	compareCmd.Flags().String("desc-a", "", "Path to a description JSON file for side A")
	compareCmd.Flags().String("desc-b", "", "Path to a description JSON file for side B")
	compareCmd.Flags().String("provider", "", "Vision provider: openai, gemini, ollama (default from AI_PROVIDER)")
	compareCmd.Flags().Bool("json", false, "Output as JSON")
}

func runCompare(cmd *cobra.Command, args []string) error {
	descAPath := mustGetString(cmd, "desc-a")
	descBPath := mustGetString(cmd, "desc-b")
	providerName := mustGetString(cmd, "provider")
	jsonOutput := mustGetBool(cmd, "json")

	imageA, imageB := "", ""
	switch len(args) {
	case 2:
		imageA, imageB = args[0], args[1]
	case 1:
		// The single positional image fills whichever side has no
		// description file.
		if descAPath == "" {
			imageA = args[0]
		} else {
			imageB = args[0]
		}
	}

	if (imageA == "") == (descAPath == "") {
		return fmt.Errorf("side A needs exactly one of an image argument or --desc-a")
	}
	if (imageB == "") == (descBPath == "") {
		return fmt.Errorf("side B needs exactly one of an image argument or --desc-b")
	}

	cfg := config.Load()
	ctx := context.Background()

	var provider ai.Provider
	if imageA != "" || imageB != "" {
		var err error
		provider, err = newVisionProvider(ctx, cfg, providerName)
		if err != nil {
			return err
		}
	}

	descA, err := loadDescription(ctx, provider, imageA, descAPath)
	if err != nil {
		return fmt.Errorf("side A: %w", err)
	}
	descB, err := loadDescription(ctx, provider, imageB, descBPath)
	if err != nil {
		return fmt.Errorf("side B: %w", err)
	}

	result := engineFromConfig(cfg).Compare(descA, descB)

	if jsonOutput {
		return outputJSON(result)
	}

	verdict := "NO MATCH"
	if result.Match {
		verdict = "MATCH"
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERDICT\tPROBABILITY\tPRO\tCONTRA")
	fmt.Fprintln(w, "-------\t-----------\t---\t------")
	fmt.Fprintf(w, "%s\t%d%%\t%.0f\t%.0f\n", verdict, result.Probability, result.NormPro, result.NormContra)
	w.Flush()

	fmt.Printf("\n%s\n", result.Explanation)
	if result.Fatal != nil {
		fmt.Printf("Fatal mismatch: %s\n", result.Fatal)
	}

	return nil
}

// loadDescription resolves one comparison side from either an image file or
// a saved description JSON file.
func loadDescription(ctx context.Context, provider ai.Provider, imagePath, descPath string) (*person.Description, error) {
	if descPath != "" {
		data, err := os.ReadFile(descPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read description file: %w", err)
		}
		var raw any
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse description file: %w", err)
		}
		desc, err := person.Normalize(raw)
		if err != nil {
			return nil, fmt.Errorf("description not usable: %w", err)
		}
		return desc, nil
	}

	image, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	desc, err := worker.DescribeImage(ctx, provider, image)
	if err != nil {
		return nil, fmt.Errorf("failed to describe image: %w", err)
	}
	return desc, nil
}
