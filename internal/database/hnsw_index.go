package database

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// HNSWIndexMetadata is the .meta sidecar used to judge whether a persisted
// index still matches the database before trusting it at startup.
type HNSWIndexMetadata struct {
	GroupCount int64     `json:"group_count"`
	BuildTime  time.Time `json:"build_time"`
	Version    int       `json:"version"` // bumped when the on-disk layout changes
}

const hnswMetadataVersion = 1

// HNSWIndex wraps the HNSW graph for group appearance-embedding search.
// Nodes are keyed by group ID; the idToGroup map carries the row data so
// candidate lookups never touch the database.
type HNSWIndex struct {
	graph      *hnsw.Graph[string]
	savedGraph *hnsw.SavedGraph[string] // Set when the graph was loaded from disk
	idToGroup  map[string]*StoredGroup
	mu         sync.RWMutex
}

// NewHNSWIndex returns an empty index. A graph is created lazily on the
// first Add or BuildFromGroups.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		idToGroup: make(map[string]*StoredGroup),
	}
}

func newGroupGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // level factor recommended by the HNSW paper
	g.Distance = hnsw.CosineDistance
	return g
}

// activeGraph returns whichever graph holds the data, preferring the
// disk-backed one. Callers must hold the lock.
func (h *HNSWIndex) activeGraph() *hnsw.Graph[string] {
	if h.savedGraph != nil {
		return h.savedGraph.Graph
	}
	return h.graph
}

// BuildFromGroups builds the index from a slice of groups.
// Groups without an embedding are skipped.
func (h *HNSWIndex) BuildFromGroups(groups []StoredGroup) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.savedGraph = nil
	if len(groups) == 0 {
		h.graph = nil
		h.idToGroup = make(map[string]*StoredGroup)
		return nil
	}

	g := newGroupGraph()
	h.idToGroup = make(map[string]*StoredGroup, len(groups))

	for i := range groups {
		group := &groups[i]
		if len(group.Embedding) == 0 {
			continue
		}

		g.Add(hnsw.MakeNode(group.ID, group.Embedding))
		h.idToGroup[group.ID] = group
	}

	h.graph = g
	return nil
}

// Search returns the k nearest group IDs and their cosine distances to the
// query embedding, nearest first.
func (h *HNSWIndex) Search(query []float32, k int) ([]string, []float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	graph := h.activeGraph()
	if graph == nil {
		return nil, nil, errors.New("index not initialized")
	}

	neighbors := graph.Search(query, k)

	ids := make([]string, len(neighbors))
	distances := make([]float64, len(neighbors))

	for i, n := range neighbors {
		ids[i] = n.Key
		// Compute the actual cosine distance from the node value directly,
		// the graph only reports approximate ordering.
		if len(n.Value) > 0 {
			distances[i] = CosineDistance(query, n.Value)
		}
	}

	return ids, distances, nil
}

// GetGroup returns the group for a given ID, or nil when the ID
// is not indexed (including IDs deleted after a search).
func (h *HNSWIndex) GetGroup(id string) *StoredGroup {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.idToGroup[id]
}

// Add inserts or replaces a single group in the index.
// Groups without an embedding are ignored.
func (h *HNSWIndex) Add(group *StoredGroup) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(group.Embedding) == 0 {
		return nil
	}

	g := h.activeGraph()
	if g == nil {
		g = newGroupGraph()
		h.graph = g
	}
	g.Add(hnsw.MakeNode(group.ID, group.Embedding))

	h.idToGroup[group.ID] = group
	return nil
}

// UpdateGroup replaces the cached row data for an indexed group without
// touching the graph. Used after canonical swaps, where the embedding is
// unchanged but clarity and member count moved.
// Returns false when the group is not in the index.
func (h *HNSWIndex) UpdateGroup(group *StoredGroup) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.idToGroup[group.ID]; !ok {
		return false
	}
	h.idToGroup[group.ID] = group
	return true
}

// Delete removes a group from the index.
// The graph node remains (HNSW does not support true deletion), but the
// lookup filter in callers drops IDs missing from the map.
func (h *HNSWIndex) Delete(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.idToGroup, id)
}

// Count returns the number of indexed groups.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToGroup)
}

// IsEmpty reports whether no graph has been built or loaded yet.
func (h *HNSWIndex) IsEmpty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.activeGraph() == nil
}

// RebuildFromGroups rebuilds the idToGroup map from groups.
// Called after loading a graph from disk without its sidecar.
func (h *HNSWIndex) RebuildFromGroups(groups []StoredGroup) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.idToGroup = make(map[string]*StoredGroup, len(groups))
	for i := range groups {
		h.idToGroup[groups[i].ID] = &groups[i]
	}
}

// exportGraph writes the active graph to the given file path.
func (h *HNSWIndex) exportGraph(path string) error {
	f, err := os.Create(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	defer f.Close()

	if err := h.activeGraph().Export(f); err != nil {
		return fmt.Errorf("failed to export graph: %w", err)
	}
	return nil
}

// SaveWithGroupMetadata persists the graph, a .meta staleness record and a
// .groups gob sidecar so the index can be restored without a full table scan.
func (h *HNSWIndex) SaveWithGroupMetadata(path string, metadata HNSWIndexMetadata) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.activeGraph() == nil {
		// Nothing to persist. Drop stale files so the next boot rebuilds
		// from the database instead of loading an outdated graph.
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		_ = os.Remove(path + ".groups")
		return nil
	}

	if err := h.exportGraph(path); err != nil {
		return err
	}

	metadata.Version = hnswMetadataVersion
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode index metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write index metadata: %w", err)
	}

	groups := make([]StoredGroup, 0, len(h.idToGroup))
	for _, group := range h.idToGroup {
		groups = append(groups, *group)
	}
	if err := SaveGroupMetadata(path, groups); err != nil {
		return err
	}

	return nil
}

// LoadWithGroupMetadata loads both the HNSW graph and the group sidecar from disk.
func (h *HNSWIndex) LoadWithGroupMetadata(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("no index file at %s", path)
	}

	saved, err := hnsw.LoadSavedGraph[string](path)
	if err != nil {
		return fmt.Errorf("failed to load index graph: %w", err)
	}

	groups, err := LoadGroupMetadata(path)
	if err != nil {
		return fmt.Errorf("failed to load group sidecar: %w", err)
	}

	h.graph = nil
	h.savedGraph = saved
	h.idToGroup = make(map[string]*StoredGroup, len(groups))
	for i := range groups {
		h.idToGroup[groups[i].ID] = &groups[i]
	}

	return nil
}

// LoadHNSWMetadata reads the .meta sidecar for an index path.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path comes from configuration
	if err != nil {
		return metadata, fmt.Errorf("failed to read index metadata: %w", err)
	}

	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to decode index metadata: %w", err)
	}

	return metadata, nil
}

// SaveGroupMetadata saves group rows to a .groups sidecar for fast startup.
func SaveGroupMetadata(path string, groups []StoredGroup) error {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(groups); err != nil {
		return fmt.Errorf("failed to encode groups: %w", err)
	}

	if err := os.WriteFile(path+".groups", buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write groups file: %w", err)
	}

	return nil
}

// LoadGroupMetadata loads group rows from a .groups sidecar.
func LoadGroupMetadata(path string) ([]StoredGroup, error) {
	data, err := os.ReadFile(path + ".groups") //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read groups file: %w", err)
	}

	var groups []StoredGroup
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&groups); err != nil {
		return nil, fmt.Errorf("failed to decode groups: %w", err)
	}

	return groups, nil
}
