package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/person-matcher/internal/database"
	"github.com/kozaktomas/person-matcher/internal/database/mock"
)

func TestStatsHandler_Get(t *testing.T) {
	groups := mock.NewMockGroupReader()
	seedGroup(t, groups, "group-a", 2)
	seedGroup(t, groups, "group-b", 1)
	sightings := mock.NewMockSightingReader()
	sightings.AddSighting(database.StoredSighting{GroupID: "group-a"})
	sightings.AddSighting(database.StoredSighting{GroupID: "group-a"})
	sightings.AddSighting(database.StoredSighting{GroupID: "group-b"})
	handler := NewStatsHandler(groups, sightings, nil, nil)

	req := httptest.NewRequest("GET", "/api/v1/stats", nil)
	recorder := httptest.NewRecorder()

	handler.Get(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	assertContentType(t, recorder, "application/json")

	var stats StatsResponse
	parseJSONResponse(t, recorder, &stats)

	if stats.TotalGroups != 2 {
		t.Errorf("expected 2 groups, got %d", stats.TotalGroups)
	}
	if stats.TotalSightings != 3 {
		t.Errorf("expected 3 sightings, got %d", stats.TotalSightings)
	}
	if stats.AvgGroupSize != 1.5 {
		t.Errorf("expected avg group size 1.5, got %v", stats.AvgGroupSize)
	}
	if stats.Provider != "" || stats.Usage != nil {
		t.Error("expected no provider info without a configured provider")
	}
}

func TestStatsHandler_ProviderUsage(t *testing.T) {
	provider := &stubProvider{}
	handler := NewStatsHandler(mock.NewMockGroupReader(), mock.NewMockSightingReader(), provider, nil)

	req := httptest.NewRequest("GET", "/api/v1/stats", nil)
	recorder := httptest.NewRecorder()

	handler.Get(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var stats StatsResponse
	parseJSONResponse(t, recorder, &stats)

	if stats.Provider != "stub" {
		t.Errorf("expected provider 'stub', got %q", stats.Provider)
	}
	if stats.Usage == nil {
		t.Fatal("expected usage info")
	}
	if stats.Usage.InputTokens != 1200 || stats.Usage.OutputTokens != 340 {
		t.Errorf("unexpected token counts: %+v", stats.Usage)
	}
	if stats.Usage.TotalCost != 0.0042 {
		t.Errorf("expected total cost 0.0042, got %v", stats.Usage.TotalCost)
	}
}

func TestStatsHandler_HNSW(t *testing.T) {
	rebuilder := &mock.MockHNSWRebuilder{Enabled: true, IndexCount: 7}
	handler := NewStatsHandler(mock.NewMockGroupReader(), mock.NewMockSightingReader(), nil, rebuilder)

	req := httptest.NewRequest("GET", "/api/v1/stats", nil)
	recorder := httptest.NewRecorder()

	handler.Get(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var stats StatsResponse
	parseJSONResponse(t, recorder, &stats)

	if !stats.HNSWEnabled {
		t.Error("expected hnsw_enabled=true")
	}
	if stats.IndexedGroups != 7 {
		t.Errorf("expected 7 indexed groups, got %d", stats.IndexedGroups)
	}
}

func TestStatsHandler_CountError(t *testing.T) {
	groups := mock.NewMockGroupReader()
	groups.CountError = errors.New("connection lost")
	handler := NewStatsHandler(groups, mock.NewMockSightingReader(), nil, nil)

	req := httptest.NewRequest("GET", "/api/v1/stats", nil)
	recorder := httptest.NewRecorder()

	handler.Get(recorder, req)

	assertStatusCode(t, recorder, http.StatusInternalServerError)
	assertJSONError(t, recorder, "failed to fetch stats")
}

func TestStatsHandler_CacheServesStaleCounts(t *testing.T) {
	groups := mock.NewMockGroupReader()
	seedGroup(t, groups, "group-a", 1)
	sightings := mock.NewMockSightingReader()
	handler := NewStatsHandler(groups, sightings, nil, nil)

	req := httptest.NewRequest("GET", "/api/v1/stats", nil)
	recorder := httptest.NewRecorder()
	handler.Get(recorder, req)
	assertStatusCode(t, recorder, http.StatusOK)

	// A second group appears, but the cached counts still answer.
	seedGroup(t, groups, "group-b", 1)

	recorder = httptest.NewRecorder()
	handler.Get(recorder, httptest.NewRequest("GET", "/api/v1/stats", nil))

	var stats StatsResponse
	parseJSONResponse(t, recorder, &stats)
	if stats.TotalGroups != 1 {
		t.Errorf("expected cached count 1, got %d", stats.TotalGroups)
	}

	handler.InvalidateCache()

	recorder = httptest.NewRecorder()
	handler.Get(recorder, httptest.NewRequest("GET", "/api/v1/stats", nil))

	parseJSONResponse(t, recorder, &stats)
	if stats.TotalGroups != 2 {
		t.Errorf("expected fresh count 2 after invalidation, got %d", stats.TotalGroups)
	}
}
