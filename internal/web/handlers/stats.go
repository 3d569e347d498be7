package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/kozaktomas/person-matcher/internal/ai"
	"github.com/kozaktomas/person-matcher/internal/database"
)

const statsCacheTTL = time.Minute

// statsCache holds cached stats with expiry
type statsCache struct {
	mu        sync.RWMutex
	data      *StatsResponse
	expiresAt time.Time
}

func (c *statsCache) get() (*StatsResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.data == nil || time.Now().After(c.expiresAt) {
		return nil, false
	}
	return c.data, true
}

func (c *statsCache) set(data *StatsResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = data
	c.expiresAt = time.Now().Add(statsCacheTTL)
}

func (c *statsCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = nil
}

// StatsHandler handles statistics endpoints
type StatsHandler struct {
	groups    database.GroupReader
	sightings database.SightingReader
	provider  ai.Provider
	rebuilder database.HNSWRebuilder
	cache     statsCache
}

// NewStatsHandler creates a new stats handler. Provider and rebuilder may be
// nil when the deployment runs without them.
func NewStatsHandler(groups database.GroupReader, sightings database.SightingReader, provider ai.Provider, rebuilder database.HNSWRebuilder) *StatsHandler {
	return &StatsHandler{
		groups:    groups,
		sightings: sightings,
		provider:  provider,
		rebuilder: rebuilder,
	}
}

// InvalidateCache clears the cached stats so the next request fetches fresh data
func (h *StatsHandler) InvalidateCache() {
	h.cache.invalidate()
}

// StatsResponse represents the statistics response
type StatsResponse struct {
	TotalGroups    int        `json:"total_groups"`
	TotalSightings int        `json:"total_sightings"`
	AvgGroupSize   float64    `json:"avg_group_size"`
	HNSWEnabled    bool       `json:"hnsw_enabled"`
	IndexedGroups  int        `json:"indexed_groups"`
	Provider       string     `json:"provider,omitempty"`
	Usage          *UsageInfo `json:"usage,omitempty"`
}

// UsageInfo represents vision API usage information
type UsageInfo struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalCost    float64 `json:"total_cost"`
}

// fetchCounts retrieves group and sighting statistics from the database
func (h *StatsHandler) fetchCounts(ctx context.Context) (*StatsResponse, error) {
	totalGroups, err := h.groups.Count(ctx)
	if err != nil {
		return nil, err
	}
	totalSightings, err := h.sightings.Count(ctx)
	if err != nil {
		return nil, err
	}

	stats := &StatsResponse{
		TotalGroups:    totalGroups,
		TotalSightings: totalSightings,
	}
	if totalGroups > 0 {
		stats.AvgGroupSize = float64(totalSightings) / float64(totalGroups)
	}
	if h.rebuilder != nil {
		stats.HNSWEnabled = h.rebuilder.IsHNSWEnabled()
		stats.IndexedGroups = h.rebuilder.HNSWCount()
	}
	return stats, nil
}

// Get returns statistics about groups, sightings and provider usage
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	stats, ok := h.cache.get()
	if !ok {
		fresh, err := h.fetchCounts(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to fetch stats")
			return
		}
		h.cache.set(fresh)
		stats = fresh
	}

	// Usage moves with every described image, so it bypasses the cache.
	response := *stats
	if h.provider != nil {
		usage := h.provider.GetUsage()
		response.Provider = h.provider.Name()
		response.Usage = &UsageInfo{
			InputTokens:  usage.InputTokens,
			OutputTokens: usage.OutputTokens,
			TotalCost:    usage.TotalCost,
		}
	}

	respondJSON(w, http.StatusOK, &response)
}
