package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/person-matcher/internal/database"
	"github.com/kozaktomas/person-matcher/internal/database/mock"
	"github.com/kozaktomas/person-matcher/internal/person"
)

func seedGroup(t *testing.T, groups *mock.MockGroupReader, id string, memberCount int) {
	t.Helper()
	canonical := mustNormalize(t, rawDescription())
	groups.AddGroup(database.StoredGroup{
		ID:                   id,
		CanonicalDescription: *canonical,
		CanonicalClarity:     person.Clarity(canonical),
		MemberCount:          memberCount,
	})
}

func TestGroupHandler_List(t *testing.T) {
	groups := mock.NewMockGroupReader()
	seedGroup(t, groups, "group-a", 1)
	seedGroup(t, groups, "group-b", 3)
	handler := NewGroupHandler(groups, mock.NewMockSightingReader())

	req := httptest.NewRequest("GET", "/api/v1/groups", nil)
	recorder := httptest.NewRecorder()

	handler.List(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	assertContentType(t, recorder, "application/json")

	var result []GroupResponse
	parseJSONResponse(t, recorder, &result)

	if len(result) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(result))
	}
	// Newest first.
	if result[0].ID != "group-b" {
		t.Errorf("expected group-b first, got %s", result[0].ID)
	}
	if result[0].MemberCount != 3 {
		t.Errorf("expected member_count 3, got %d", result[0].MemberCount)
	}
}

func TestGroupHandler_ListPagination(t *testing.T) {
	groups := mock.NewMockGroupReader()
	seedGroup(t, groups, "group-a", 1)
	seedGroup(t, groups, "group-b", 1)
	seedGroup(t, groups, "group-c", 1)
	handler := NewGroupHandler(groups, mock.NewMockSightingReader())

	req := httptest.NewRequest("GET", "/api/v1/groups?count=1&offset=1", nil)
	recorder := httptest.NewRecorder()

	handler.List(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var result []GroupResponse
	parseJSONResponse(t, recorder, &result)

	if len(result) != 1 {
		t.Fatalf("expected 1 group, got %d", len(result))
	}
	if result[0].ID != "group-b" {
		t.Errorf("expected group-b, got %s", result[0].ID)
	}
}

func TestGroupHandler_ListError(t *testing.T) {
	groups := mock.NewMockGroupReader()
	groups.ListError = errors.New("connection lost")
	handler := NewGroupHandler(groups, mock.NewMockSightingReader())

	req := httptest.NewRequest("GET", "/api/v1/groups", nil)
	recorder := httptest.NewRecorder()

	handler.List(recorder, req)

	assertStatusCode(t, recorder, http.StatusInternalServerError)
	assertJSONError(t, recorder, "failed to list groups")
}

func TestGroupHandler_Get(t *testing.T) {
	groups := mock.NewMockGroupReader()
	canonical := mustNormalize(t, rawDescription())
	groups.AddGroup(database.StoredGroup{
		ID:                   "group-a",
		CanonicalDescription: *canonical,
		CanonicalClarity:     person.Clarity(canonical),
		MemberCount:          2,
		Embedding:            []float32{0.1, 0.2, 0.3},
	})
	handler := NewGroupHandler(groups, mock.NewMockSightingReader())

	req := httptest.NewRequest("GET", "/api/v1/groups/group-a", nil)
	req = requestWithChiParams(req, map[string]string{"id": "group-a"})
	recorder := httptest.NewRecorder()

	handler.Get(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var result GroupResponse
	parseJSONResponse(t, recorder, &result)

	if result.ID != "group-a" {
		t.Errorf("expected id 'group-a', got %s", result.ID)
	}
	if result.MemberCount != 2 {
		t.Errorf("expected member_count 2, got %d", result.MemberCount)
	}
	if !result.HasEmbedding {
		t.Error("expected has_embedding=true")
	}
}

func TestGroupHandler_GetNotFound(t *testing.T) {
	handler := NewGroupHandler(mock.NewMockGroupReader(), mock.NewMockSightingReader())

	req := httptest.NewRequest("GET", "/api/v1/groups/nonexistent", nil)
	req = requestWithChiParams(req, map[string]string{"id": "nonexistent"})
	recorder := httptest.NewRecorder()

	handler.Get(recorder, req)

	assertStatusCode(t, recorder, http.StatusNotFound)
	assertJSONError(t, recorder, "group not found")
}

func TestGroupHandler_GetMissingID(t *testing.T) {
	handler := NewGroupHandler(mock.NewMockGroupReader(), mock.NewMockSightingReader())

	req := httptest.NewRequest("GET", "/api/v1/groups/", nil)
	req = requestWithChiParams(req, map[string]string{})
	recorder := httptest.NewRecorder()

	handler.Get(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "id is required")
}

func TestGroupHandler_GetSightings(t *testing.T) {
	groups := mock.NewMockGroupReader()
	seedGroup(t, groups, "group-a", 2)
	sightings := mock.NewMockSightingReader()
	desc := mustNormalize(t, rawDescription())
	sightings.AddSighting(database.StoredSighting{GroupID: "group-a", Description: *desc, Clarity: 80})
	sightings.AddSighting(database.StoredSighting{GroupID: "group-a", Description: *desc, Clarity: 90})
	sightings.AddSighting(database.StoredSighting{GroupID: "group-other", Description: *desc, Clarity: 70})
	handler := NewGroupHandler(groups, sightings)

	req := httptest.NewRequest("GET", "/api/v1/groups/group-a/sightings", nil)
	req = requestWithChiParams(req, map[string]string{"id": "group-a"})
	recorder := httptest.NewRecorder()

	handler.GetSightings(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)

	var result []SightingResponse
	parseJSONResponse(t, recorder, &result)

	if len(result) != 2 {
		t.Fatalf("expected 2 sightings, got %d", len(result))
	}
	for _, s := range result {
		if s.GroupID != "group-a" {
			t.Errorf("expected group_id 'group-a', got %s", s.GroupID)
		}
	}
	// Oldest first.
	if result[0].ID >= result[1].ID {
		t.Errorf("expected ascending sighting IDs, got %d then %d", result[0].ID, result[1].ID)
	}
}

func TestGroupHandler_GetSightingsGroupNotFound(t *testing.T) {
	handler := NewGroupHandler(mock.NewMockGroupReader(), mock.NewMockSightingReader())

	req := httptest.NewRequest("GET", "/api/v1/groups/nonexistent/sightings", nil)
	req = requestWithChiParams(req, map[string]string{"id": "nonexistent"})
	recorder := httptest.NewRecorder()

	handler.GetSightings(recorder, req)

	assertStatusCode(t, recorder, http.StatusNotFound)
	assertJSONError(t, recorder, "group not found")
}
