// Package worker runs the sighting pipelines around the decision engine:
// ingesting new sightings into person groups and replaying the stored
// archive after the engine configuration changes.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/kozaktomas/person-matcher/internal/ai"
	"github.com/kozaktomas/person-matcher/internal/constants"
	"github.com/kozaktomas/person-matcher/internal/database"
	"github.com/kozaktomas/person-matcher/internal/fingerprint"
	"github.com/kozaktomas/person-matcher/internal/person"
	"github.com/kozaktomas/person-matcher/internal/reid"
)

// ErrProviderUnavailable wraps vision provider failures so transports can
// report a degraded upstream instead of an internal error.
var ErrProviderUnavailable = errors.New("vision provider unavailable")

// Embedder computes appearance embeddings for person crops. The embedding
// sidecar client implements it; a nil Embedder disables candidate
// preselection and every stored group is scored.
type Embedder interface {
	ComputeEmbedding(ctx context.Context, imageData []byte) ([]float32, error)
}

// IngestAction names the outcome of processing one sighting.
type IngestAction string

// Ingest outcomes.
const (
	ActionAttached  IngestAction = "attached"
	ActionCreated   IngestAction = "created"
	ActionDuplicate IngestAction = "duplicate"
	ActionUnclear   IngestAction = "unclear"
)

// IngestInput is one submitted sighting: either a person crop to run through
// the vision provider, or an already described sighting as the raw provider
// JSON value. A Raw value that is not a JSON object is an unclear sighting,
// not a transport error.
type IngestInput struct {
	Image    []byte
	Raw      any
	ImageRef string
	DryRun   bool
}

// DuplicateInfo identifies the stored sighting a duplicate submission
// collided with.
type DuplicateInfo struct {
	SightingID int64  `json:"sighting_id"`
	GroupID    string `json:"group_id"`
	Distance   int    `json:"hamming_distance"`
}

// IngestResult reports what happened to a submitted sighting.
type IngestResult struct {
	Action          IngestAction          `json:"action"`
	GroupID         string                `json:"group_id,omitempty"`
	SightingID      int64                 `json:"sighting_id,omitempty"`
	Probability     int                   `json:"probability"`
	Explanation     string                `json:"explanation"`
	Shortlist       []reid.ShortlistEntry `json:"shortlist,omitempty"`
	FallbackApplied bool                  `json:"fallback_applied,omitempty"`
	Description     *person.Description   `json:"description,omitempty"`
	Clarity         int                   `json:"clarity"`
	DryRun          bool                  `json:"dry_run,omitempty"`
	Duplicate       *DuplicateInfo        `json:"duplicate,omitempty"`
}

// Ingestor decides where submitted sightings belong and persists the outcome.
type Ingestor struct {
	provider       ai.Provider
	groups         database.GroupWriter
	sightings      database.SightingWriter
	engine         *reid.Engine
	embedder       Embedder
	candidateLimit int
}

// NewIngestor creates an ingest pipeline. The provider may be nil when every
// caller supplies raw descriptions, and the embedder may be nil to score all
// stored groups instead of a preselected candidate set.
func NewIngestor(
	provider ai.Provider,
	groups database.GroupWriter,
	sightings database.SightingWriter,
	engine *reid.Engine,
	embedder Embedder,
	candidateLimit int,
) *Ingestor {
	if candidateLimit <= 0 {
		candidateLimit = constants.DefaultCandidateLimit
	}
	return &Ingestor{
		provider:       provider,
		groups:         groups,
		sightings:      sightings,
		engine:         engine,
		embedder:       embedder,
		candidateLimit: candidateLimit,
	}
}

// DescribeImage runs one person crop through the vision provider and the
// normalizer. Provider transport failures come back wrapped in
// ErrProviderUnavailable; a model reply without a person is ai.ErrNoPerson
// and unusable model output is person.ErrUnusable.
func DescribeImage(ctx context.Context, provider ai.Provider, image []byte) (*person.Description, error) {
	raw, err := provider.DescribePerson(ctx, image)
	if err != nil {
		if errors.Is(err, ai.ErrNoPerson) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return person.Normalize(raw)
}

// ProcessSighting runs the full ingest pipeline for one sighting: duplicate
// guard, description, normalization, candidate selection, the grouping
// decision, and finally persistence unless DryRun is set. Unusable input is
// an ActionUnclear result, not an error; errors mean the pipeline itself
// failed.
func (ing *Ingestor) ProcessSighting(ctx context.Context, input IngestInput) (*IngestResult, error) {
	var (
		raw    any
		hashes *fingerprint.HashResult
	)

	switch {
	case len(input.Image) > 0:
		h, err := fingerprint.ComputeHashes(input.Image)
		if err != nil {
			return nil, fmt.Errorf("fingerprint image: %w", err)
		}
		hashes = h

		dup, dist, err := ing.findDuplicate(ctx, hashes)
		if err != nil {
			return nil, err
		}
		if dup != nil {
			expl := fmt.Sprintf("image already stored as sighting %d in group %s (hamming distance %d)",
				dup.ID, dup.GroupID, dist)
			return &IngestResult{
				Action:      ActionDuplicate,
				GroupID:     dup.GroupID,
				SightingID:  dup.ID,
				Explanation: expl,
				Duplicate:   &DuplicateInfo{SightingID: dup.ID, GroupID: dup.GroupID, Distance: dist},
				DryRun:      input.DryRun,
			}, nil
		}

		if ing.provider == nil {
			return nil, errors.New("no vision provider configured")
		}
		r, err := ing.provider.DescribePerson(ctx, input.Image)
		if err != nil {
			if errors.Is(err, ai.ErrNoPerson) {
				return &IngestResult{
					Action:      ActionUnclear,
					Explanation: "no person visible in image",
					DryRun:      input.DryRun,
				}, nil
			}
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		raw = r

	case input.Raw != nil:
		raw = input.Raw

	default:
		return nil, errors.New("either an image or a raw description is required")
	}

	desc, err := person.Normalize(raw)
	if err != nil {
		return &IngestResult{
			Action:      ActionUnclear,
			Explanation: "description not usable",
			DryRun:      input.DryRun,
		}, nil
	}
	clarity := person.Clarity(desc)

	embeddingVec, candidates, err := ing.collectCandidates(ctx, input.Image)
	if err != nil {
		return nil, err
	}

	decision := ing.engine.Decide(desc, candidates)

	result := &IngestResult{
		Probability:     decision.Probability,
		Explanation:     decision.Explanation,
		Shortlist:       decision.Shortlist,
		FallbackApplied: decision.FallbackApplied,
		Description:     desc,
		Clarity:         clarity,
		DryRun:          input.DryRun,
	}

	sighting := &database.StoredSighting{
		Description: *desc,
		Clarity:     clarity,
		ImageRef:    input.ImageRef,
	}
	if hashes != nil {
		sighting.ImageHash = hashes.Encoded()
	}

	if decision.Matched() {
		result.Action = ActionAttached
		result.GroupID = decision.BestGroupID
		if input.DryRun {
			return result, nil
		}

		if err := ing.groups.AttachSighting(ctx, decision.BestGroupID, sighting); err != nil {
			return nil, fmt.Errorf("attach sighting: %w", err)
		}
		result.SightingID = sighting.ID

		// AttachSighting swapped the canonical description to this sharper
		// sighting, so the group's appearance embedding follows it.
		if len(embeddingVec) > 0 && clarity > canonicalClarityOf(candidates, decision.BestGroupID) {
			if err := ing.groups.UpdateEmbedding(ctx, decision.BestGroupID, embeddingVec); err != nil {
				log.Printf("update embedding for group %s: %v", decision.BestGroupID, err)
			}
		}
		return result, nil
	}

	result.Action = ActionCreated
	if result.Explanation == "" {
		result.Explanation = "no existing groups to compare against"
	}
	if input.DryRun {
		return result, nil
	}

	group := &database.StoredGroup{
		CanonicalDescription: *desc,
		CanonicalClarity:     clarity,
		Embedding:            embeddingVec,
		RepresentativeImage:  input.ImageRef,
	}
	if err := ing.groups.Create(ctx, group, sighting); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	result.GroupID = group.ID
	result.SightingID = sighting.ID
	return result, nil
}

// findDuplicate checks stored sightings for the same photograph: an exact
// hash lookup first, then a Hamming-distance scan within the threshold.
func (ing *Ingestor) findDuplicate(ctx context.Context, hashes *fingerprint.HashResult) (*database.StoredSighting, int, error) {
	exact, err := ing.sightings.FindByHash(ctx, hashes.Encoded())
	if err != nil {
		return nil, 0, fmt.Errorf("look up image hash: %w", err)
	}
	if len(exact) > 0 {
		return &exact[0], 0, nil
	}

	all, err := ing.sightings.ListAll(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("scan stored sightings: %w", err)
	}
	for i := range all {
		if fingerprint.NearDuplicate(all[i].ImageHash, hashes, constants.DuplicateHashThreshold) {
			return &all[i], hashDistance(all[i].ImageHash, hashes), nil
		}
	}
	return nil, 0, nil
}

// hashDistance is the smaller of the pHash and dHash Hamming distances
// between a stored encoded hash and a freshly computed one.
func hashDistance(stored string, h *fingerprint.HashResult) int {
	pHash, dHash, err := fingerprint.DecodeHashes(stored)
	if err != nil {
		return 0
	}
	return min(
		fingerprint.HammingDistance(pHash, h.PHashBits),
		fingerprint.HammingDistance(dHash, h.DHashBits),
	)
}

// collectCandidates picks the groups the engine will score: the nearest
// groups by appearance embedding within MaxCandidateDistance when the
// sidecar is configured, every stored group otherwise. It returns the
// computed embedding so callers can store it alongside the sighting's group.
func (ing *Ingestor) collectCandidates(ctx context.Context, image []byte) ([]float32, []reid.Candidate, error) {
	var embeddingVec []float32

	if ing.embedder != nil && len(image) > 0 {
		vec, err := ing.embedder.ComputeEmbedding(ctx, image)
		if err != nil {
			// Preselection is an optimization; fall back to scoring every group.
			log.Printf("embedding sidecar unavailable, scoring all groups: %v", err)
		} else {
			embeddingVec = vec
		}
	}

	var (
		stored []database.StoredGroup
		err    error
	)
	if len(embeddingVec) > 0 {
		stored, _, err = ing.groups.FindSimilarWithDistance(
			ctx, embeddingVec, ing.candidateLimit, constants.MaxCandidateDistance)
	} else {
		stored, err = ing.groups.List(ctx, constants.MaxGroupsPerFetch, 0)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load candidate groups: %w", err)
	}

	return embeddingVec, groupCandidates(stored), nil
}

// groupCandidates converts stored groups into the engine's candidate form.
func groupCandidates(groups []database.StoredGroup) []reid.Candidate {
	candidates := make([]reid.Candidate, len(groups))
	for i := range groups {
		g := &groups[i]
		candidates[i] = reid.Candidate{
			GroupID:          g.ID,
			MemberCount:      g.MemberCount,
			Canonical:        &g.CanonicalDescription,
			CanonicalClarity: g.CanonicalClarity,
		}
	}
	return candidates
}

func canonicalClarityOf(candidates []reid.Candidate, groupID string) int {
	for _, c := range candidates {
		if c.GroupID == groupID {
			return c.CanonicalClarity
		}
	}
	return 0
}
