package database

import (
	"context"
	"fmt"
)

// HNSWRebuilder is an interface for repositories that support HNSW index rebuilding
type HNSWRebuilder interface {
	// RebuildHNSW rebuilds the in-memory HNSW index
	RebuildHNSW(ctx context.Context) error
	// HNSWCount returns the number of items in the HNSW index
	HNSWCount() int
	// IsHNSWEnabled returns whether HNSW is enabled
	IsHNSWEnabled() bool
	// SaveHNSWIndex saves the current index to disk (if path configured)
	SaveHNSWIndex() error
}

var (
	postgresGroupReader    func() GroupReader
	postgresGroupWriter    func() GroupWriter
	postgresSightingReader func() SightingReader
	postgresSightingWriter func() SightingWriter
	postgresGroupHNSW      HNSWRebuilder // Singleton for group index rebuilding
	postgresInitialized    bool
)

// RegisterPostgresBackend registers PostgreSQL repository constructors.
// This is called by the postgres package to avoid import cycles.
func RegisterPostgresBackend(
	groupReader func() GroupReader,
	groupWriter func() GroupWriter,
	sightingReader func() SightingReader,
	sightingWriter func() SightingWriter,
) {
	postgresGroupReader = groupReader
	postgresGroupWriter = groupWriter
	postgresSightingReader = sightingReader
	postgresSightingWriter = sightingWriter
	postgresInitialized = true
}

// RegisterGroupHNSWRebuilder registers the HNSW rebuilder for the group repository.
// This allows rebuilding the in-memory HNSW index without knowing the concrete type.
func RegisterGroupHNSWRebuilder(rebuilder HNSWRebuilder) {
	postgresGroupHNSW = rebuilder
}

// GetGroupHNSWRebuilder returns the registered group HNSW rebuilder, or nil if not registered.
func GetGroupHNSWRebuilder() HNSWRebuilder {
	return postgresGroupHNSW
}

// IsInitialized returns whether the PostgreSQL backend has been initialized.
func IsInitialized() bool {
	return postgresInitialized
}

// GetGroupReader returns a GroupReader from the PostgreSQL backend
func GetGroupReader(ctx context.Context) (GroupReader, error) {
	if !postgresInitialized {
		return nil, fmt.Errorf("PostgreSQL backend not initialized: POSTGRES_HOST is required")
	}
	if postgresGroupReader == nil {
		return nil, fmt.Errorf("PostgreSQL group reader not registered")
	}
	return postgresGroupReader(), nil
}

// GetGroupWriter returns a GroupWriter from the PostgreSQL backend
func GetGroupWriter(ctx context.Context) (GroupWriter, error) {
	if !postgresInitialized {
		return nil, fmt.Errorf("PostgreSQL backend not initialized: POSTGRES_HOST is required")
	}
	if postgresGroupWriter == nil {
		return nil, fmt.Errorf("PostgreSQL group writer not registered")
	}
	return postgresGroupWriter(), nil
}

// GetSightingReader returns a SightingReader from the PostgreSQL backend
func GetSightingReader(ctx context.Context) (SightingReader, error) {
	if !postgresInitialized {
		return nil, fmt.Errorf("PostgreSQL backend not initialized: POSTGRES_HOST is required")
	}
	if postgresSightingReader == nil {
		return nil, fmt.Errorf("PostgreSQL sighting reader not registered")
	}
	return postgresSightingReader(), nil
}

// GetSightingWriter returns a SightingWriter from the PostgreSQL backend
func GetSightingWriter(ctx context.Context) (SightingWriter, error) {
	if !postgresInitialized {
		return nil, fmt.Errorf("PostgreSQL backend not initialized: POSTGRES_HOST is required")
	}
	if postgresSightingWriter == nil {
		return nil, fmt.Errorf("PostgreSQL sighting writer not registered")
	}
	return postgresSightingWriter(), nil
}
