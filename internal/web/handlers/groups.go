package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/person-matcher/internal/constants"
	"github.com/kozaktomas/person-matcher/internal/database"
	"github.com/kozaktomas/person-matcher/internal/person"
)

// GroupHandler handles person group endpoints
type GroupHandler struct {
	groups    database.GroupReader
	sightings database.SightingReader
}

// NewGroupHandler creates a new group handler
func NewGroupHandler(groups database.GroupReader, sightings database.SightingReader) *GroupHandler {
	return &GroupHandler{
		groups:    groups,
		sightings: sightings,
	}
}

// GroupResponse represents a person group in API responses
type GroupResponse struct {
	ID                  string             `json:"id"`
	MemberCount         int                `json:"member_count"`
	Canonical           person.Description `json:"canonical"`
	CanonicalClarity    int                `json:"canonical_clarity"`
	RepresentativeImage string             `json:"representative_image,omitempty"`
	HasEmbedding        bool               `json:"has_embedding"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

func groupToResponse(g database.StoredGroup) GroupResponse {
	return GroupResponse{
		ID:                  g.ID,
		MemberCount:         g.MemberCount,
		Canonical:           g.CanonicalDescription,
		CanonicalClarity:    g.CanonicalClarity,
		RepresentativeImage: g.RepresentativeImage,
		HasEmbedding:        len(g.Embedding) > 0,
		CreatedAt:           g.CreatedAt,
		UpdatedAt:           g.UpdatedAt,
	}
}

// SightingResponse represents a stored sighting in API responses
type SightingResponse struct {
	ID          int64              `json:"id"`
	GroupID     string             `json:"group_id"`
	Description person.Description `json:"description"`
	Clarity     int                `json:"clarity"`
	ImageRef    string             `json:"image_ref,omitempty"`
	ImageHash   string             `json:"image_hash,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

func sightingToResponse(s database.StoredSighting) SightingResponse {
	return SightingResponse{
		ID:          s.ID,
		GroupID:     s.GroupID,
		Description: s.Description,
		Clarity:     s.Clarity,
		ImageRef:    s.ImageRef,
		ImageHash:   s.ImageHash,
		CreatedAt:   s.CreatedAt,
	}
}

// List returns stored person groups, most recently updated first
func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	// Parse query parameters
	count, _ := strconv.Atoi(r.URL.Query().Get("count"))
	if count <= 0 {
		count = constants.DefaultHandlerPageSize
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	groups, err := h.groups.List(r.Context(), count, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list groups")
		return
	}

	response := make([]GroupResponse, len(groups))
	for i := range groups {
		response[i] = groupToResponse(groups[i])
	}

	respondJSON(w, http.StatusOK, response)
}

// Get returns a single group by ID
func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	group, err := h.groups.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get group")
		return
	}
	if group == nil {
		respondError(w, http.StatusNotFound, "group not found")
		return
	}

	respondJSON(w, http.StatusOK, groupToResponse(*group))
}

// GetSightings returns the sightings attached to a group
func (h *GroupHandler) GetSightings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	group, err := h.groups.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get group")
		return
	}
	if group == nil {
		respondError(w, http.StatusNotFound, "group not found")
		return
	}

	count, _ := strconv.Atoi(r.URL.Query().Get("count"))
	if count <= 0 {
		count = constants.DefaultHandlerPageSize
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	sightings, err := h.sightings.ListByGroup(r.Context(), id, count, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list sightings")
		return
	}

	response := make([]SightingResponse, len(sightings))
	for i := range sightings {
		response[i] = sightingToResponse(sightings[i])
	}

	respondJSON(w, http.StatusOK, response)
}
