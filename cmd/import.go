package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/person-matcher/internal/ai"
	"github.com/kozaktomas/person-matcher/internal/config"
	"github.com/kozaktomas/person-matcher/internal/constants"
	"github.com/kozaktomas/person-matcher/internal/database/mariadb"
	"github.com/kozaktomas/person-matcher/internal/embedding"
	"github.com/kozaktomas/person-matcher/internal/worker"
)

// batchPollInterval is how often a submitted batch job is checked.
const batchPollInterval = 30 * time.Second

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import the legacy MariaDB sighting archive",
	Long: `Import the legacy MariaDB sighting archive into the group store.

Rows that carry a stored description JSON are ingested directly. Rows with
only an image path are described by the vision provider, either inline or
via the provider's batch API with --batch (cheaper for large archives, only
supported by OpenAI).

Rows are read in ID order, so an interrupted import can be resumed with
--offset.

Examples:
  # Import everything using LEGACY_MYSQL_DSN
  person-matcher import

  # Import from an explicit DSN
  person-matcher import --dsn "matcher:secret@tcp(mariadb:3306)/archive"

  # Describe missing rows through the OpenAI batch API
  person-matcher import --batch

  # Resume after an interrupt
  person-matcher import --offset 12000`,
	Args: cobra.NoArgs,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().String("dsn", "", "Legacy archive DSN (default from LEGACY_MYSQL_DSN)")
	importCmd.Flags().Bool("batch", false, "Describe rows without descriptions via the provider batch API")
	importCmd.Flags().Int("limit", 0, "Maximum number of rows to import (0 = all)")
	importCmd.Flags().Int("offset", 0, "Row offset to resume from")
	importCmd.Flags().String("provider", "", "Vision provider: openai, gemini, ollama (default from AI_PROVIDER)")
	importCmd.Flags().Bool("json", false, "Output as JSON instead of progress bar")
}

// ImportResult represents the outcome of an archive import run.
type ImportResult struct {
	Success       bool   `json:"success"`
	RowsScanned   int    `json:"rows_scanned"`
	Attached      int    `json:"attached"`
	Created       int    `json:"created"`
	Duplicates    int    `json:"duplicates"`
	Unclear       int    `json:"unclear"`
	Skipped       int    `json:"skipped"`
	Errors        int    `json:"errors"`
	BatchID       string `json:"batch_id,omitempty"`
	DurationMs    int64  `json:"duration_ms"`
	DurationHuman string `json:"duration_human,omitempty"`
}

func runImport(cmd *cobra.Command, args []string) error {
	dsn := mustGetString(cmd, "dsn")
	useBatch := mustGetBool(cmd, "batch")
	limit := mustGetInt(cmd, "limit")
	offset := mustGetInt(cmd, "offset")
	providerName := mustGetString(cmd, "provider")
	jsonOutput := mustGetBool(cmd, "json")

	cfg := config.Load()
	startTime := time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal...")
		cancel()
	}()

	if dsn == "" {
		dsn = cfg.Legacy.MySQLDSN
	}
	if dsn == "" {
		return errors.New("legacy archive DSN is required (--dsn or LEGACY_MYSQL_DSN)")
	}

	archive, err := mariadb.NewPool(dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to legacy archive: %w", err)
	}
	defer archive.Close()

	groupRepo, sightingRepo, err := initStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Rows with stored descriptions need no provider; image-only rows do.
	provider, providerErr := newVisionProvider(ctx, cfg, providerName)
	if providerErr != nil {
		if useBatch {
			return providerErr
		}
		if !jsonOutput {
			fmt.Printf("Warning: %v\n", providerErr)
			fmt.Println("Rows without stored descriptions will be skipped.")
		}
		provider = nil
	}
	if useBatch {
		provider.SetBatchMode(true)
	}

	var embedder worker.Embedder
	if cfg.Search.EmbeddingURL != "" {
		embedder = embedding.NewClient(cfg.Search.EmbeddingURL)
	}
	ingestor := worker.NewIngestor(provider, groupRepo, sightingRepo, engineFromConfig(cfg), embedder, cfg.Search.CandidateLimit)

	total, err := archive.CountSightings(ctx)
	if err != nil {
		return fmt.Errorf("failed to count legacy sightings: %w", err)
	}
	remaining := total - offset
	if remaining < 0 {
		remaining = 0
	}
	if limit > 0 && limit < remaining {
		remaining = limit
	}

	if remaining == 0 {
		result := ImportResult{Success: true, DurationMs: time.Since(startTime).Milliseconds()}
		if jsonOutput {
			return outputJSON(result)
		}
		fmt.Println("Nothing to import.")
		return nil
	}

	if !jsonOutput {
		fmt.Printf("Importing %d of %d archived sightings\n\n", remaining, total)
	}

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(remaining,
			progressbar.OptionSetDescription("Importing archive"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("rows"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	// Import runs serially: group creation depends on what earlier rows
	// created, so parallel ingest would split the same person into
	// several groups.
	result := ImportResult{Success: true}
	var pending []ai.BatchDescribeRequest
	imageRefs := make(map[string]string)

scan:
	for done := 0; done < remaining; {
		pageSize := constants.DefaultPageSize
		if left := remaining - done; left < pageSize {
			pageSize = left
		}
		rows, err := archive.FetchSightings(ctx, offset+done, pageSize)
		if err != nil {
			if ctx.Err() != nil {
				break scan
			}
			return fmt.Errorf("failed to fetch legacy sightings: %w", err)
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			if ctx.Err() != nil {
				break scan
			}
			done++
			result.RowsScanned++

			switch {
			case len(row.Description) > 0:
				var raw any
				if err := json.Unmarshal(row.Description, &raw); err != nil {
					result.Errors++
				} else {
					ingestArchiveRow(ctx, ingestor, worker.IngestInput{Raw: raw, ImageRef: row.ImagePath}, &result)
				}

			case row.ImagePath != "" && useBatch:
				image, err := os.ReadFile(row.ImagePath)
				if err != nil {
					result.Errors++
					break
				}
				id := strconv.FormatInt(row.ID, 10)
				pending = append(pending, ai.BatchDescribeRequest{SightingID: id, ImageData: image})
				imageRefs[id] = row.ImagePath

			case row.ImagePath != "" && provider != nil:
				image, err := os.ReadFile(row.ImagePath)
				if err != nil {
					result.Errors++
					break
				}
				ingestArchiveRow(ctx, ingestor, worker.IngestInput{Image: image, ImageRef: row.ImagePath}, &result)

			default:
				result.Skipped++
			}

			if bar != nil {
				bar.Add(1)
			}
		}
	}

	if bar != nil {
		fmt.Println()
	}

	if len(pending) > 0 && ctx.Err() == nil {
		if err := runDescribeBatch(ctx, provider, ingestor, pending, imageRefs, &result, jsonOutput); err != nil {
			return err
		}
	}

	duration := time.Since(startTime)
	result.DurationMs = duration.Milliseconds()
	result.DurationHuman = formatDuration(duration)
	if ctx.Err() != nil {
		result.Success = false
	}

	if jsonOutput {
		result.DurationHuman = ""
		return outputJSON(result)
	}

	fmt.Println("\nImport complete!")
	fmt.Printf("  Rows scanned: %d\n", result.RowsScanned)
	fmt.Printf("  Attached:     %d\n", result.Attached)
	fmt.Printf("  Created:      %d\n", result.Created)
	fmt.Printf("  Duplicates:   %d\n", result.Duplicates)
	if result.Unclear > 0 {
		fmt.Printf("  Unclear:      %d\n", result.Unclear)
	}
	if result.Skipped > 0 {
		fmt.Printf("  Skipped:      %d\n", result.Skipped)
	}
	if result.Errors > 0 {
		fmt.Printf("  Errors:       %d\n", result.Errors)
	}
	fmt.Printf("  Duration:     %s\n", result.DurationHuman)

	return nil
}

// ingestArchiveRow feeds one archive row through the pipeline and tallies the
// outcome. Pipeline errors count as row errors instead of aborting the run.
func ingestArchiveRow(ctx context.Context, ingestor *worker.Ingestor, input worker.IngestInput, result *ImportResult) {
	res, err := ingestor.ProcessSighting(ctx, input)
	if err != nil {
		result.Errors++
		return
	}
	switch res.Action {
	case worker.ActionAttached:
		result.Attached++
	case worker.ActionCreated:
		result.Created++
	case worker.ActionDuplicate:
		result.Duplicates++
	case worker.ActionUnclear:
		result.Unclear++
	}
}

// runDescribeBatch submits the collected image rows to the provider batch
// API, waits for completion, and ingests the described results.
func runDescribeBatch(
	ctx context.Context,
	provider ai.Provider,
	ingestor *worker.Ingestor,
	pending []ai.BatchDescribeRequest,
	imageRefs map[string]string,
	result *ImportResult,
	jsonOutput bool,
) error {
	if !jsonOutput {
		fmt.Printf("\nSubmitting %d images to the batch API...\n", len(pending))
	}

	batchID, err := provider.DescribePersonBatch(ctx, pending)
	if err != nil {
		return fmt.Errorf("failed to submit batch: %w", err)
	}
	result.BatchID = batchID

	for {
		select {
		case <-ctx.Done():
			// Best effort: the job would otherwise keep billing.
			_ = provider.CancelBatch(context.Background(), batchID)
			return fmt.Errorf("import interrupted, batch %s cancelled", batchID)
		case <-time.After(batchPollInterval):
		}

		status, err := provider.CheckBatch(ctx, batchID)
		if err != nil {
			return fmt.Errorf("failed to check batch %s: %w", batchID, err)
		}
		if !jsonOutput {
			fmt.Printf("Batch %s: %s (%d/%d done, %d failed)\n",
				status.ID, status.Status, status.CompletedCount, status.TotalRequests, status.FailedCount)
		}

		switch status.Status {
		case "completed":
			results, err := provider.FetchBatchResults(ctx, batchID)
			if err != nil {
				return fmt.Errorf("failed to fetch batch results: %w", err)
			}
			for _, r := range results {
				if r.Error != "" {
					result.Errors++
					continue
				}
				ingestArchiveRow(ctx, ingestor, worker.IngestInput{
					Raw:      r.Raw,
					ImageRef: imageRefs[r.SightingID],
				}, result)
			}
			return nil
		case "failed", "expired", "cancelled":
			return fmt.Errorf("batch %s ended with status %s", batchID, status.Status)
		}
	}
}

// formatDuration formats a duration as a human-readable string
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
