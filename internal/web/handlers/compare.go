package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kozaktomas/person-matcher/internal/ai"
	"github.com/kozaktomas/person-matcher/internal/constants"
	"github.com/kozaktomas/person-matcher/internal/person"
	"github.com/kozaktomas/person-matcher/internal/reid"
	"github.com/kozaktomas/person-matcher/internal/worker"
)

// CompareHandler handles direct pairwise comparisons
type CompareHandler struct {
	engine   *reid.Engine
	provider ai.Provider
}

// NewCompareHandler creates a new compare handler. The provider may be nil
// when no vision provider is configured; raw descriptions still work.
func NewCompareHandler(engine *reid.Engine, provider ai.Provider) *CompareHandler {
	return &CompareHandler{
		engine:   engine,
		provider: provider,
	}
}

// CompareRequest represents a pairwise comparison request. Each side is
// either a base64-encoded image or a raw description object.
type CompareRequest struct {
	ImageA       string `json:"image_a,omitempty"`
	ImageB       string `json:"image_b,omitempty"`
	DescriptionA any    `json:"description_a,omitempty"`
	DescriptionB any    `json:"description_b,omitempty"`
}

// Compare evaluates whether two sightings show the same person
func (h *CompareHandler) Compare(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)

	var req CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	descA, err := h.resolveSide(r.Context(), req.ImageA, req.DescriptionA, "a")
	if err != nil {
		respondError(w, describeStatus(err), err.Error())
		return
	}

	descB, err := h.resolveSide(r.Context(), req.ImageB, req.DescriptionB, "b")
	if err != nil {
		respondError(w, describeStatus(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, h.engine.Compare(descA, descB))
}

// resolveSide turns one side of the request into a normalized description.
func (h *CompareHandler) resolveSide(ctx context.Context, image string, raw any, side string) (*person.Description, error) {
	switch {
	case image != "":
		data, err := base64.StdEncoding.DecodeString(image)
		if err != nil {
			return nil, fmt.Errorf("image_%s is not valid base64", side)
		}
		if h.provider == nil {
			return nil, fmt.Errorf("image_%s: %w: no vision provider configured", side, worker.ErrProviderUnavailable)
		}
		desc, err := worker.DescribeImage(ctx, h.provider, data)
		if err != nil {
			return nil, fmt.Errorf("image_%s: %w", side, err)
		}
		return desc, nil
	case raw != nil:
		desc, err := person.Normalize(raw)
		if err != nil {
			return nil, fmt.Errorf("description_%s: %w", side, err)
		}
		return desc, nil
	default:
		return nil, fmt.Errorf("side %s requires image_%s or description_%s", side, side, side)
	}
}

// describeStatus maps description resolution failures to HTTP status codes.
// Unusable input is the client's problem, an unreachable provider is not.
func describeStatus(err error) int {
	switch {
	case errors.Is(err, ai.ErrNoPerson), errors.Is(err, person.ErrUnusable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, worker.ErrProviderUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}
