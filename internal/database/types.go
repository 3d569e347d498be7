package database

import (
	"time"

	"github.com/kozaktomas/person-matcher/internal/person"
)

// StoredGroup represents a person group stored in the database.
// The canonical description is the sharpest view of the person collected so far;
// it is the side every new sighting is compared against.
type StoredGroup struct {
	ID                   string
	CanonicalDescription person.Description
	CanonicalClarity     int
	MemberCount          int
	Embedding            []float32 // CLIP appearance embedding (512-dim, empty when no embedding server is configured)
	RepresentativeImage  string    // Reference to the sighting image backing the canonical description (may be empty)
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// StoredSighting represents a single observed sighting attached to a group.
type StoredSighting struct {
	ID          int64
	GroupID     string
	Description person.Description
	Clarity     int
	ImageHash   string // Perceptual hash of the submitted crop (empty for description-only sightings)
	ImageRef    string // Caller-supplied image reference (may be empty)
	CreatedAt   time.Time
}
