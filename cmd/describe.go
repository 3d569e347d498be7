package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/person-matcher/internal/config"
	"github.com/kozaktomas/person-matcher/internal/person"
	"github.com/kozaktomas/person-matcher/internal/worker"
	"github.com/spf13/cobra"
)

var describeCmd = &cobra.Command{
	Use:   "describe [image]",
	Short: "Describe a person crop using a vision model",
	Long: `Describe a person crop using a vision model.

The image is sent to the configured vision provider and the reply is
normalized into the structured appearance description the engine scores.

Examples:
  # Describe a crop with the configured provider
  person-matcher describe crop.jpg

  # Use a specific provider
  person-matcher describe crop.jpg --provider ollama

  # Machine-readable output
  person-matcher describe crop.jpg --json`,
	Args: cobra.ExactArgs(1),
	RunE: runDescribe,
}

func init() {
	rootCmd.AddCommand(describeCmd)

	describeCmd.Flags().String("provider", "", "Vision provider: openai, gemini, ollama (default from AI_PROVIDER)")
	describeCmd.Flags().Bool("json", false, "Output as JSON")
}

func runDescribe(cmd *cobra.Command, args []string) error {
	imagePath := args[0]
	providerName := mustGetString(cmd, "provider")
	jsonOutput := mustGetBool(cmd, "json")

	cfg := config.Load()
	ctx := context.Background()

	provider, err := newVisionProvider(ctx, cfg, providerName)
	if err != nil {
		return err
	}

	image, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	desc, err := worker.DescribeImage(ctx, provider, image)
	if err != nil {
		return fmt.Errorf("failed to describe image: %w", err)
	}

	if jsonOutput {
		return outputJSON(desc)
	}

	printDescription(desc)
	return nil
}

// printDescription renders a description for terminal reading.
func printDescription(desc *person.Description) {
	if desc.NaturalSummary != "" {
		fmt.Println(desc.NaturalSummary)
		fmt.Println()
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TRAIT\tVALUE\tCONFIDENCE")
	fmt.Fprintln(w, "-----\t-----\t----------")
	printTrait(w, "gender", desc.Gender)
	printTrait(w, "age band", desc.AgeBand)
	printTrait(w, "build", desc.Build)
	printTrait(w, "height", desc.Height)
	printTrait(w, "skin tone", desc.SkinTone)
	printTrait(w, "hair color", desc.Hair.Color)
	printTrait(w, "hair length", desc.Hair.Length)
	printTrait(w, "hair style", desc.Hair.Style)
	printTrait(w, "facial hair", desc.Hair.FacialHair)
	w.Flush()

	if len(desc.Clothing) > 0 {
		fmt.Println("\nClothing:")
		for _, slot := range person.Slots {
			item, ok := desc.Clothing[slot]
			if !ok {
				continue
			}
			line := fmt.Sprintf("  %-9s %s", slot, item.Description)
			if person.Known(item.Color) {
				line += fmt.Sprintf(" (%s)", item.Color)
			}
			if item.Rare {
				line += " [rare]"
			}
			fmt.Println(line)
		}
	}

	if len(desc.Marks) > 0 {
		fmt.Println("\nDistinctive marks:")
		for _, mark := range desc.Marks {
			if mark.Absent {
				fmt.Printf("  no %s visible\n", mark.Type)
				continue
			}
			fmt.Printf("  %s: %s (%s, rarity %d)\n", mark.Type, mark.Description, mark.Location, mark.Rarity)
		}
	}

	fmt.Printf("\nClarity: %d/100\n", person.Clarity(desc))
}

func printTrait(w *tabwriter.Writer, name string, t person.Trait) {
	value := t.Value
	if !person.Known(value) {
		value = "-"
	}
	fmt.Fprintf(w, "%s\t%s\t%d\n", name, value, t.Confidence)
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
