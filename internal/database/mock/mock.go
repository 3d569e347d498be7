// Package mock holds in-memory repository doubles for handler and worker
// tests. Methods copy values in and out so tests cannot alias stored state.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kozaktomas/person-matcher/internal/database"
)

// MockGroupReader is a mock implementation of database.GroupReader
type MockGroupReader struct {
	mu     sync.RWMutex
	groups map[string]*database.StoredGroup
	order  []string // insertion order, newest last

	// Set to force failures.
	GetError           error
	ListError          error
	CountError         error
	FindSimilarWDError error
}

// NewMockGroupReader creates a new mock group reader
func NewMockGroupReader() *MockGroupReader {
	return &MockGroupReader{
		groups: make(map[string]*database.StoredGroup),
	}
}

// AddGroup adds a group to the mock store
func (m *MockGroupReader) AddGroup(group database.StoredGroup) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.groups[group.ID]; !exists {
		m.order = append(m.order, group.ID)
	}
	m.groups[group.ID] = &group
}

// Get retrieves a group by ID, nil when missing
func (m *MockGroupReader) Get(ctx context.Context, id string) (*database.StoredGroup, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	group, ok := m.groups[id]
	if !ok {
		return nil, nil
	}
	g := *group
	return &g, nil
}

// List returns groups newest first
func (m *MockGroupReader) List(ctx context.Context, limit, offset int) ([]database.StoredGroup, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []database.StoredGroup
	for i := len(m.order) - 1; i >= 0; i-- {
		if group, ok := m.groups[m.order[i]]; ok {
			results = append(results, *group)
		}
	}
	if offset >= len(results) {
		return nil, nil
	}
	results = results[offset:]
	if limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}

// Count returns the total number of groups
func (m *MockGroupReader) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.groups), nil
}

// rankByDistance orders all groups with embeddings by cosine distance to the query.
func (m *MockGroupReader) rankByDistance(embedding []float32) ([]database.StoredGroup, []float64) {
	type ranked struct {
		group    database.StoredGroup
		distance float64
	}
	var all []ranked
	for _, group := range m.groups {
		if len(group.Embedding) == 0 {
			continue
		}
		all = append(all, ranked{*group, database.CosineDistance(embedding, group.Embedding)})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].distance != all[j].distance {
			return all[i].distance < all[j].distance
		}
		return all[i].group.ID < all[j].group.ID
	})

	groups := make([]database.StoredGroup, len(all))
	distances := make([]float64, len(all))
	for i, r := range all {
		groups[i] = r.group
		distances[i] = r.distance
	}
	return groups, distances
}

// FindSimilarWithDistance finds similar groups with distances, dropping
// groups at or beyond maxDistance
func (m *MockGroupReader) FindSimilarWithDistance(
	ctx context.Context, embedding []float32, limit int, maxDistance float64,
) ([]database.StoredGroup, []float64, error) {
	if m.FindSimilarWDError != nil {
		return nil, nil, m.FindSimilarWDError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	groups, distances := m.rankByDistance(embedding)
	var resultGroups []database.StoredGroup
	var resultDistances []float64
	for i := range groups {
		if distances[i] >= maxDistance {
			continue
		}
		resultGroups = append(resultGroups, groups[i])
		resultDistances = append(resultDistances, distances[i])
		if len(resultGroups) >= limit {
			break
		}
	}
	return resultGroups, resultDistances, nil
}

// MockGroupWriter is a mock implementation of database.GroupWriter
type MockGroupWriter struct {
	*MockGroupReader

	groupCounter    int
	sightingCounter int64

	// Recorded calls for assertions.
	CreateCalls          []CreateGroupCall
	AttachCalls          []AttachSightingCall
	UpdateEmbeddingCalls []UpdateEmbeddingCall
	DeleteEmptyCalls     int

	// Set to force failures.
	CreateError          error
	AttachError          error
	UpdateEmbeddingError error
	DeleteEmptyError     error
}

// CreateGroupCall tracks a Create call
type CreateGroupCall struct {
	Group database.StoredGroup
	First database.StoredSighting
}

// AttachSightingCall tracks an AttachSighting call
type AttachSightingCall struct {
	GroupID  string
	Sighting database.StoredSighting
}

// UpdateEmbeddingCall tracks an UpdateEmbedding call
type UpdateEmbeddingCall struct {
	GroupID   string
	Embedding []float32
}

// NewMockGroupWriter creates a new mock group writer
func NewMockGroupWriter() *MockGroupWriter {
	return &MockGroupWriter{
		MockGroupReader: NewMockGroupReader(),
	}
}

// Create stores a new group with its first sighting
func (m *MockGroupWriter) Create(ctx context.Context, group *database.StoredGroup, first *database.StoredSighting) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if group.ID == "" {
		m.groupCounter++
		group.ID = fmt.Sprintf("group-%d", m.groupCounter)
	}
	m.sightingCounter++
	first.ID = m.sightingCounter
	first.GroupID = group.ID
	group.MemberCount = 1

	stored := *group
	if _, exists := m.groups[group.ID]; !exists {
		m.order = append(m.order, group.ID)
	}
	m.groups[group.ID] = &stored
	m.CreateCalls = append(m.CreateCalls, CreateGroupCall{Group: *group, First: *first})
	return nil
}

// AttachSighting adds a sighting to a group, swapping the canonical description
// when the new sighting has strictly higher clarity
func (m *MockGroupWriter) AttachSighting(ctx context.Context, groupID string, sighting *database.StoredSighting) error {
	if m.AttachError != nil {
		return m.AttachError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	group, ok := m.groups[groupID]
	if !ok {
		return fmt.Errorf("group %s not found", groupID)
	}

	m.sightingCounter++
	sighting.ID = m.sightingCounter
	sighting.GroupID = groupID

	group.MemberCount++
	if sighting.Clarity > group.CanonicalClarity {
		group.CanonicalDescription = sighting.Description
		group.CanonicalClarity = sighting.Clarity
		if sighting.ImageRef != "" {
			group.RepresentativeImage = sighting.ImageRef
		}
	}

	m.AttachCalls = append(m.AttachCalls, AttachSightingCall{GroupID: groupID, Sighting: *sighting})
	return nil
}

// UpdateEmbedding replaces a group's embedding
func (m *MockGroupWriter) UpdateEmbedding(ctx context.Context, groupID string, embedding []float32) error {
	if m.UpdateEmbeddingError != nil {
		return m.UpdateEmbeddingError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if group, ok := m.groups[groupID]; ok {
		group.Embedding = embedding
	}
	m.UpdateEmbeddingCalls = append(m.UpdateEmbeddingCalls, UpdateEmbeddingCall{GroupID: groupID, Embedding: embedding})
	return nil
}

// DeleteEmpty removes groups with zero members
func (m *MockGroupWriter) DeleteEmpty(ctx context.Context) (int64, error) {
	if m.DeleteEmptyError != nil {
		return 0, m.DeleteEmptyError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DeleteEmptyCalls++
	var deleted int64
	for id, group := range m.groups {
		if group.MemberCount <= 0 {
			delete(m.groups, id)
			deleted++
		}
	}
	return deleted, nil
}

// MockSightingReader is a mock implementation of database.SightingReader
type MockSightingReader struct {
	mu        sync.RWMutex
	sightings map[int64]*database.StoredSighting
	counter   int64

	// Set to force failures.
	ListByGroupError  error
	CountByGroupError error
	CountError        error
	FindByHashError   error
	ListAllError      error
}

// NewMockSightingReader creates a new mock sighting reader
func NewMockSightingReader() *MockSightingReader {
	return &MockSightingReader{
		sightings: make(map[int64]*database.StoredSighting),
	}
}

// AddSighting adds a sighting to the mock store, assigning an ID when empty
func (m *MockSightingReader) AddSighting(sighting database.StoredSighting) database.StoredSighting {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sighting.ID == 0 {
		m.counter++
		sighting.ID = m.counter
	} else if sighting.ID > m.counter {
		m.counter = sighting.ID
	}
	m.sightings[sighting.ID] = &sighting
	return sighting
}

func (m *MockSightingReader) sorted(filter func(*database.StoredSighting) bool) []database.StoredSighting {
	var results []database.StoredSighting
	for _, s := range m.sightings {
		if filter == nil || filter(s) {
			results = append(results, *s)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results
}

// ListByGroup returns a group's sightings oldest first
func (m *MockSightingReader) ListByGroup(
	ctx context.Context, groupID string, limit, offset int,
) ([]database.StoredSighting, error) {
	if m.ListByGroupError != nil {
		return nil, m.ListByGroupError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := m.sorted(func(s *database.StoredSighting) bool { return s.GroupID == groupID })
	if offset >= len(results) {
		return nil, nil
	}
	results = results[offset:]
	if limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}

// CountByGroup returns the number of sightings in a group
func (m *MockSightingReader) CountByGroup(ctx context.Context, groupID string) (int, error) {
	if m.CountByGroupError != nil {
		return 0, m.CountByGroupError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, s := range m.sightings {
		if s.GroupID == groupID {
			count++
		}
	}
	return count, nil
}

// Count returns the total number of sightings
func (m *MockSightingReader) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sightings), nil
}

// FindByHash returns sightings with an exactly matching image hash
func (m *MockSightingReader) FindByHash(ctx context.Context, hash string) ([]database.StoredSighting, error) {
	if m.FindByHashError != nil {
		return nil, m.FindByHashError
	}
	if hash == "" {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sorted(func(s *database.StoredSighting) bool { return s.ImageHash == hash }), nil
}

// ListAll returns every sighting ordered by ID
func (m *MockSightingReader) ListAll(ctx context.Context) ([]database.StoredSighting, error) {
	if m.ListAllError != nil {
		return nil, m.ListAllError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sorted(nil), nil
}

// MockSightingWriter is a mock implementation of database.SightingWriter
type MockSightingWriter struct {
	*MockSightingReader

	// Recorded calls for assertions.
	CreateCalls []database.StoredSighting
	MoveCalls   []MoveCall

	// Set to force failures.
	CreateError error
	MoveError   error
}

// MoveCall tracks a Move call
type MoveCall struct {
	SightingID int64
	ToGroupID  string
}

// NewMockSightingWriter creates a new mock sighting writer
func NewMockSightingWriter() *MockSightingWriter {
	return &MockSightingWriter{
		MockSightingReader: NewMockSightingReader(),
	}
}

// Create stores a sighting
func (m *MockSightingWriter) Create(ctx context.Context, sighting *database.StoredSighting) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	*sighting = m.AddSighting(*sighting)
	m.CreateCalls = append(m.CreateCalls, *sighting)
	return nil
}

// Move reassigns a sighting to another group
func (m *MockSightingWriter) Move(ctx context.Context, sightingID int64, toGroupID string) error {
	if m.MoveError != nil {
		return m.MoveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	sighting, ok := m.sightings[sightingID]
	if !ok {
		return fmt.Errorf("sighting %d not found", sightingID)
	}
	sighting.GroupID = toGroupID
	m.MoveCalls = append(m.MoveCalls, MoveCall{SightingID: sightingID, ToGroupID: toGroupID})
	return nil
}

// MockHNSWRebuilder is a mock implementation of database.HNSWRebuilder
type MockHNSWRebuilder struct {
	mu sync.Mutex

	Enabled    bool
	IndexCount int

	// Recorded calls for assertions.
	RebuildCalls int
	SaveCalls    int

	// Set to force failures.
	RebuildError error
	SaveError    error
}

// RebuildHNSW rebuilds the index
func (m *MockHNSWRebuilder) RebuildHNSW(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RebuildError != nil {
		return m.RebuildError
	}
	m.RebuildCalls++
	return nil
}

// HNSWCount returns the configured index count
func (m *MockHNSWRebuilder) HNSWCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.IndexCount
}

// IsHNSWEnabled returns the configured enabled flag
func (m *MockHNSWRebuilder) IsHNSWEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Enabled
}

// SaveHNSWIndex records a save call
func (m *MockHNSWRebuilder) SaveHNSWIndex() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveError != nil {
		return m.SaveError
	}
	m.SaveCalls++
	return nil
}

// Compile-time interface checks.
var _ database.GroupReader = (*MockGroupReader)(nil)
var _ database.GroupWriter = (*MockGroupWriter)(nil)
var _ database.SightingReader = (*MockSightingReader)(nil)
var _ database.SightingWriter = (*MockSightingWriter)(nil)
var _ database.HNSWRebuilder = (*MockHNSWRebuilder)(nil)
