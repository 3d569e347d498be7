package constants

// DefaultPageSize is the row count fetched per database page when walking
// a whole table.
const DefaultPageSize = 1000

// Embedding constants
const (
	// EmbeddingDim is the dimension of appearance embeddings produced by the
	// embedding sidecar and stored in the vector column.
	EmbeddingDim = 512

	// DefaultCandidateLimit is the default number of nearest groups pulled
	// from similarity search for scoring.
	DefaultCandidateLimit = 20

	// MaxCandidateDistance is the cosine-distance ceiling for embedding
	// preselection. Groups whose appearance embedding sits farther from the
	// new crop are not plausible candidates and never reach the engine.
	MaxCandidateDistance = 0.6
)

// Image and index maintenance constants
const (
	// IndexSaveInterval is the number of index writes between persisting the
	// HNSW index to disk.
	IndexSaveInterval = 50

	// MaxImageSize is the maximum dimension (width or height) for images sent
	// to vision models.
	MaxImageSize = 800
)

// DuplicateHashThreshold is the maximum Hamming distance between two
// perceptual hashes for sightings to count as the same photograph.
const DuplicateHashThreshold = 10
