package database

import (
	"context"
)

// GroupReader provides read-only access to person groups
type GroupReader interface {
	// Get retrieves a group by ID, returns nil if not found
	Get(ctx context.Context, id string) (*StoredGroup, error)
	// List returns groups ordered by most recent update, newest first
	List(ctx context.Context, limit, offset int) ([]StoredGroup, error)
	// Count returns the total number of groups stored
	Count(ctx context.Context) (int, error)
	// FindSimilarWithDistance finds groups with similar appearance embeddings
	// using cosine distance, closest first, dropping groups at or beyond
	// maxDistance. Groups without an embedding are never returned.
	FindSimilarWithDistance(ctx context.Context, embedding []float32, limit int, maxDistance float64) ([]StoredGroup, []float64, error)
}

// GroupWriter provides write access to person groups
type GroupWriter interface {
	GroupReader

	// Create stores a new group seeded with its first sighting.
	// The group ID is assigned when empty, and the sighting ID is filled in on return.
	Create(ctx context.Context, group *StoredGroup, first *StoredSighting) error

	// AttachSighting adds a sighting to an existing group in a single transaction:
	// the sighting row is inserted, member_count is incremented, and the canonical
	// description, clarity and representative image are replaced only when the new
	// sighting's clarity is strictly higher than the stored one.
	AttachSighting(ctx context.Context, groupID string, sighting *StoredSighting) error

	// UpdateEmbedding replaces the group's appearance embedding
	UpdateEmbedding(ctx context.Context, groupID string, embedding []float32) error

	// DeleteEmpty removes groups whose member_count has dropped to zero
	// (after regroup moves) and returns how many were removed.
	DeleteEmpty(ctx context.Context) (int64, error)
}

// SightingReader provides read-only access to stored sightings
type SightingReader interface {
	// ListByGroup retrieves sightings attached to a group, oldest first
	ListByGroup(ctx context.Context, groupID string, limit, offset int) ([]StoredSighting, error)
	// CountByGroup returns the number of sightings attached to a group
	CountByGroup(ctx context.Context, groupID string) (int, error)
	// Count returns the total number of sightings stored
	Count(ctx context.Context) (int, error)
	// FindByHash returns sightings whose perceptual image hash matches exactly.
	// Near-duplicate detection (Hamming distance) happens in the caller.
	FindByHash(ctx context.Context, hash string) ([]StoredSighting, error)
	// ListAll returns every stored sighting in insertion order, used by regroup
	ListAll(ctx context.Context) ([]StoredSighting, error)
}

// SightingWriter provides write access to sightings
type SightingWriter interface {
	SightingReader

	// Create stores a sighting attached to an existing group without touching
	// the group's canonical state. Most callers want GroupWriter.AttachSighting.
	Create(ctx context.Context, sighting *StoredSighting) error

	// Move reassigns a sighting to a different group, adjusting member counts
	// and recomputing the canonical description of both groups from their
	// remaining sightings. Used by regroup in apply mode.
	Move(ctx context.Context, sightingID int64, toGroupID string) error
}
