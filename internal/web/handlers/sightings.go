package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kozaktomas/person-matcher/internal/constants"
	"github.com/kozaktomas/person-matcher/internal/worker"
)

// SightingHandler handles sighting ingestion
type SightingHandler struct {
	ingestor *worker.Ingestor
}

// NewSightingHandler creates a new sighting handler
func NewSightingHandler(ingestor *worker.Ingestor) *SightingHandler {
	return &SightingHandler{
		ingestor: ingestor,
	}
}

// SightingRequest represents a sighting ingest request. Either a
// base64-encoded image or a raw description object must be present.
type SightingRequest struct {
	Image       string `json:"image,omitempty"`
	Description any    `json:"description,omitempty"`
	ImageRef    string `json:"image_ref,omitempty"`
	DryRun      bool   `json:"dry_run"`
}

// Create ingests a new sighting and attaches it to a person group
func (h *SightingHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)

	var req SightingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if req.Image == "" && req.Description == nil {
		respondError(w, http.StatusBadRequest, "either image or description is required")
		return
	}

	var imageData []byte
	if req.Image != "" {
		data, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil {
			respondError(w, http.StatusBadRequest, "image is not valid base64")
			return
		}
		imageData = data
	}

	result, err := h.ingestor.ProcessSighting(r.Context(), worker.IngestInput{
		Image:    imageData,
		Raw:      req.Description,
		ImageRef: req.ImageRef,
		DryRun:   req.DryRun,
	})
	if err != nil {
		if errors.Is(err, worker.ErrProviderUnavailable) {
			respondError(w, http.StatusBadGateway, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, ingestStatus(result.Action), result)
}

// ingestStatus maps the pipeline outcome to an HTTP status code.
func ingestStatus(action worker.IngestAction) int {
	switch action {
	case worker.ActionCreated:
		return http.StatusCreated
	case worker.ActionUnclear:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusOK
	}
}
