package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/kozaktomas/person-matcher/internal/constants"
	"github.com/kozaktomas/person-matcher/internal/database"
	"github.com/kozaktomas/person-matcher/internal/reid"
)

// Regrouper re-evaluates every stored sighting against the current group
// set, typically after the engine thresholds changed. Decisions run
// concurrently; moves are applied sequentially because each move rewrites
// the canonical state of two groups.
type Regrouper struct {
	groups    database.GroupWriter
	sightings database.SightingWriter
	engine    *reid.Engine
	rebuilder database.HNSWRebuilder
}

// NewRegrouper creates a regroup runner. The rebuilder may be nil when no
// in-memory search index is configured.
func NewRegrouper(
	groups database.GroupWriter,
	sightings database.SightingWriter,
	engine *reid.Engine,
	rebuilder database.HNSWRebuilder,
) *Regrouper {
	return &Regrouper{
		groups:    groups,
		sightings: sightings,
		engine:    engine,
		rebuilder: rebuilder,
	}
}

// ProgressInfo contains progress information for callbacks
type ProgressInfo struct {
	Phase      string // "deciding", "applying"
	Current    int
	Total      int
	SightingID int64
	Message    string
}

// RegroupOptions controls a regroup run.
type RegroupOptions struct {
	DryRun      bool
	Concurrency int                // Number of parallel decisions in the deciding phase
	OnProgress  func(ProgressInfo) // Optional progress callback for the web API
}

// Move is one proposed sighting reassignment.
type Move struct {
	SightingID  int64  `json:"sighting_id"`
	FromGroupID string `json:"from_group_id"`
	ToGroupID   string `json:"to_group_id"`
	Probability int    `json:"probability"`
	Explanation string `json:"explanation"`
}

// RegroupResult summarizes a regroup run.
type RegroupResult struct {
	SightingCount int      `json:"sighting_count"`
	GroupCount    int      `json:"group_count"`
	Moves         []Move   `json:"moves"`
	AppliedCount  int      `json:"applied_count"`
	RemovedGroups int64    `json:"removed_groups"`
	DryRun        bool     `json:"dry_run"`
	Errors        []string `json:"errors,omitempty"`
}

// sightingResult holds the decision for a single sighting
type sightingResult struct {
	index int
	move  *Move
	err   error
}

// Run re-scores all stored sightings and returns the moves that would
// reassign them, applying the moves unless DryRun is set. Apply mode also
// drops groups left empty and rebuilds the search index.
func (r *Regrouper) Run(ctx context.Context, opts RegroupOptions) (*RegroupResult, error) {
	result := &RegroupResult{DryRun: opts.DryRun}

	groups, err := r.groups.List(ctx, constants.MaxGroupsPerFetch, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch groups: %w", err)
	}
	result.GroupCount = len(groups)

	sightings, err := r.sightings.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sightings: %w", err)
	}
	result.SightingCount = len(sightings)

	if len(sightings) == 0 || len(groups) == 0 {
		return result, nil
	}

	candidates := groupCandidates(groups)

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = constants.DefaultConcurrency
	}

	bar := progressbar.NewOptions(len(sightings),
		progressbar.OptionSetDescription(fmt.Sprintf("Re-evaluating sightings (%d workers)", concurrency)),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("sightings"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	// Create channels for work distribution and results
	resultsChan := make(chan sightingResult, len(sightings))
	semaphore := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var processedCount int
	var progressMu sync.Mutex

	// Helper to report progress
	reportProgress := func(sightingID int64) {
		progressMu.Lock()
		processedCount++
		current := processedCount
		progressMu.Unlock()
		bar.Add(1)
		if opts.OnProgress != nil {
			opts.OnProgress(ProgressInfo{
				Phase:      "deciding",
				Current:    current,
				Total:      len(sightings),
				SightingID: sightingID,
			})
		}
	}

	// Decide sightings concurrently
	for i := range sightings {
		wg.Add(1)
		go func(idx int, s database.StoredSighting) {
			defer wg.Done()

			// Acquire semaphore
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			// Check if context is cancelled
			if ctx.Err() != nil {
				resultsChan <- sightingResult{index: idx, err: ctx.Err()}
				reportProgress(s.ID)
				return
			}

			decision := r.engine.Decide(&s.Description, candidates)
			if decision.Matched() && decision.BestGroupID != s.GroupID {
				resultsChan <- sightingResult{index: idx, move: &Move{
					SightingID:  s.ID,
					FromGroupID: s.GroupID,
					ToGroupID:   decision.BestGroupID,
					Probability: decision.Probability,
					Explanation: decision.Explanation,
				}}
			} else {
				resultsChan <- sightingResult{index: idx}
			}
			reportProgress(s.ID)
		}(i, sightings[i])
	}

	// Wait for all goroutines to complete and close results channel
	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	// Collect results maintaining order
	results := make([]*sightingResult, len(sightings))
	for res := range resultsChan {
		results[res.index] = &res
	}
	fmt.Println() // New line after progress bar

	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	// Process results in order
	for i, res := range results {
		if res == nil {
			result.Errors = append(result.Errors, fmt.Sprintf("no decision for sighting at index %d", i))
			continue
		}
		if res.err != nil {
			result.Errors = append(result.Errors, res.err.Error())
			continue
		}
		if res.move != nil {
			result.Moves = append(result.Moves, *res.move)
		}
	}

	if opts.DryRun || len(result.Moves) == 0 {
		return result, nil
	}

	// Apply moves sequentially
	applyBar := progressbar.NewOptions(len(result.Moves),
		progressbar.OptionSetDescription("Applying moves"),
		progressbar.OptionShowCount(),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	for i, move := range result.Moves {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if err := r.sightings.Move(ctx, move.SightingID, move.ToGroupID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to move sighting %d: %v", move.SightingID, err))
			applyBar.Add(1)
			continue
		}
		result.AppliedCount++
		applyBar.Add(1)
		if opts.OnProgress != nil {
			opts.OnProgress(ProgressInfo{
				Phase:      "applying",
				Current:    i + 1,
				Total:      len(result.Moves),
				SightingID: move.SightingID,
			})
		}
	}
	fmt.Println()

	removed, err := r.groups.DeleteEmpty(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to remove empty groups: %v", err))
	}
	result.RemovedGroups = removed

	if r.rebuilder != nil && r.rebuilder.IsHNSWEnabled() {
		if err := r.rebuilder.RebuildHNSW(ctx); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to rebuild search index: %v", err))
		} else if err := r.rebuilder.SaveHNSWIndex(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to save search index: %v", err))
		}
	}

	return result, nil
}
