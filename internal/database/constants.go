package database

// Tuning for the in-memory HNSW index over 512-dim appearance embeddings.
const (
	// HNSWMaxNeighbors is the M parameter: edges kept per node. More edges
	// raise recall at the cost of memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch sizes the candidate pool walked during a query.
	HNSWEfSearch = 100

	// HNSWEfConstruction sizes the candidate pool while inserting nodes.
	HNSWEfConstruction = 200

	// HNSWSearchMultiplier over-fetches candidates so enough survive the
	// distance threshold filter.
	HNSWSearchMultiplier = 3
)
