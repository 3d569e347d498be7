package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/person-matcher/internal/config"
	"github.com/kozaktomas/person-matcher/internal/database"
	"github.com/kozaktomas/person-matcher/internal/database/postgres"
	"github.com/kozaktomas/person-matcher/internal/embedding"
	"github.com/kozaktomas/person-matcher/internal/web"
	"github.com/kozaktomas/person-matcher/internal/worker"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Person Matcher web server.
The server exposes the REST API for pairwise comparison, sighting ingest,
group browsing and background regroup jobs.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
}

// initGroupHNSW builds or loads the in-memory group index for fast similarity search.
func initGroupHNSW(ctx context.Context, groupRepo *postgres.GroupRepository, indexPath string) {
	if indexPath != "" {
		fmt.Printf("Loading group HNSW index from %s...\n", indexPath)
	} else {
		fmt.Printf("Building in-memory HNSW index for group search...\n")
	}
	if err := groupRepo.EnableHNSW(ctx, indexPath); err != nil {
		fmt.Printf("Warning: Failed to build group HNSW index: %v\n", err)
		fmt.Printf("Candidate search will use pgvector queries (slower)\n")
	} else if indexPath != "" {
		fmt.Printf("Group HNSW index ready with %d groups (persisted to %s)\n", groupRepo.HNSWCount(), indexPath)
	} else {
		fmt.Printf("Group HNSW index built with %d groups (in-memory only)\n", groupRepo.HNSWCount())
	}
}

// initStorage connects to PostgreSQL, runs migrations and registers the
// repositories with the database package.
func initStorage(ctx context.Context, cfg *config.Config) (*postgres.GroupRepository, *postgres.SightingRepository, error) {
	fmt.Printf("Connecting to PostgreSQL...\n")
	if err := postgres.Initialize(&cfg.Database); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	pool := postgres.GetGlobalPool()
	groupRepo := postgres.NewGroupRepository(pool)
	sightingRepo := postgres.NewSightingRepository(pool)

	if cfg.Search.HNSWEnabled {
		initGroupHNSW(ctx, groupRepo, cfg.Search.HNSWIndexPath)
	}

	database.RegisterPostgresBackend(
		func() database.GroupReader { return groupRepo },
		func() database.GroupWriter { return groupRepo },
		func() database.SightingReader { return sightingRepo },
		func() database.SightingWriter { return sightingRepo },
	)
	database.RegisterGroupHNSWRebuilder(groupRepo)
	fmt.Printf("PostgreSQL backend ready\n")

	return groupRepo, sightingRepo, nil
}

// saveHNSWIndex persists the group index during shutdown.
func saveHNSWIndex() {
	rebuilder := database.GetGroupHNSWRebuilder()
	if rebuilder == nil || !rebuilder.IsHNSWEnabled() {
		return
	}
	if err := rebuilder.SaveHNSWIndex(); err != nil {
		fmt.Printf("Warning: failed to save group HNSW index: %v\n", err)
	} else {
		fmt.Println("Group HNSW index saved to disk")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Server.Port = port
	}

	ctx := context.Background()
	groupRepo, sightingRepo, err := initStorage(ctx, cfg)
	if err != nil {
		return err
	}

	engine := engineFromConfig(cfg)

	// The provider is optional: without one, image endpoints report a
	// degraded upstream and raw-description requests still work.
	provider, err := newVisionProvider(ctx, cfg, "")
	if err != nil {
		fmt.Printf("Warning: no vision provider: %v\n", err)
		provider = nil
	} else {
		fmt.Printf("Vision provider: %s\n", provider.Name())
	}

	var embedder worker.Embedder
	if cfg.Search.EmbeddingURL != "" {
		embedder = embedding.NewClient(cfg.Search.EmbeddingURL)
		fmt.Printf("Embedding sidecar: %s\n", cfg.Search.EmbeddingURL)
	}

	deps := web.Deps{
		Engine:    engine,
		Provider:  provider,
		Ingestor:  worker.NewIngestor(provider, groupRepo, sightingRepo, engine, embedder, cfg.Search.CandidateLimit),
		Regrouper: worker.NewRegrouper(groupRepo, sightingRepo, engine, groupRepo),
		Groups:    groupRepo,
		Sightings: sightingRepo,
		Rebuilder: groupRepo,
	}

	server := web.NewServer(cfg, deps)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nSignal received, draining connections...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Person Matcher API on http://0.0.0.0:%d\n", cfg.Server.Port)
	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	// Start returned cleanly, so the last requests have drained and the
	// index is quiescent. Persist it now, not before.
	saveHNSWIndex()
	return nil
}
