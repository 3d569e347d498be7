package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kozaktomas/person-matcher/internal/constants"
	"github.com/kozaktomas/person-matcher/internal/worker"
)

// RegroupHandler handles regroup job endpoints
type RegroupHandler struct {
	regrouper  *worker.Regrouper
	jobManager *JobManager
}

// NewRegroupHandler creates a new regroup handler
func NewRegroupHandler(regrouper *worker.Regrouper, jm *JobManager) *RegroupHandler {
	return &RegroupHandler{
		regrouper:  regrouper,
		jobManager: jm,
	}
}

// StartRequest represents a regroup start request
type StartRequest struct {
	DryRun      bool `json:"dry_run"`
	Concurrency int  `json:"concurrency"`
}

// Start starts a new regroup job
func (h *RegroupHandler) Start(w http.ResponseWriter, r *http.Request) {
	// All fields have defaults, so an empty body is a valid request.
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if req.Concurrency <= 0 {
		req.Concurrency = constants.DefaultConcurrency
	}

	// Two concurrent regroups would fight over group assignments.
	if active := h.jobManager.ActiveJob(); active != nil {
		respondError(w, http.StatusConflict, fmt.Sprintf("regroup job %s is already running", active.ID))
		return
	}

	jobID := uuid.New().String()
	job := h.jobManager.CreateJob(jobID, RegroupJobOptions{
		DryRun:      req.DryRun,
		Concurrency: req.Concurrency,
	})

	go h.runRegroupJob(job)

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": string(JobStatusPending),
	})
}

// List returns all jobs the manager still knows about, newest first.
func (h *RegroupHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobManager.ListJobs()
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartedAt.After(jobs[j].StartedAt)
	})

	respondJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// Status returns the status of a regroup job
func (h *RegroupHandler) Status(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing job ID")
		return
	}

	job := h.jobManager.GetJob(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// Events streams job progress as server-sent events until the job reaches
// a terminal state or the client disconnects.
func (h *RegroupHandler) Events(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing job ID")
		return
	}

	job := h.jobManager.GetJob(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := job.AddListener()
	defer job.RemoveListener(events)

	// Snapshot first so a client connecting mid-run sees the current state.
	sendSSEEvent(w, flusher, "status", job)

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			sendSSEEvent(w, flusher, event.Type, event)
			if job.GetStatus().Terminal() {
				return
			}
		}
	}
}

// Cancel cancels a regroup job
func (h *RegroupHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing job ID")
		return
	}

	job := h.jobManager.GetJob(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	job.Cancel()
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// runRegroupJob runs the regroup job in the background
func (h *RegroupHandler) runRegroupJob(job *RegroupJob) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job.mu.Lock()
	job.cancel = cancel
	job.Status = JobStatusRunning
	job.mu.Unlock()
	job.SendEvent(JobEvent{Type: "started", Message: "Regroup job started"})

	// Run the regroup with progress callback
	result, err := h.regrouper.Run(ctx, worker.RegroupOptions{
		DryRun:      job.Options.DryRun,
		Concurrency: job.Options.Concurrency,
		OnProgress: func(info worker.ProgressInfo) {
			job.mu.Lock()
			job.TotalSightings = info.Total
			job.ProcessedSightings = info.Current
			if info.Total > 0 {
				job.Progress = int(float64(info.Current) / float64(info.Total) * 100)
			}
			job.mu.Unlock()
			job.SendEvent(JobEvent{
				Type: "progress",
				Data: map[string]any{
					"phase":       info.Phase,
					"current":     info.Current,
					"total":       info.Total,
					"sighting_id": info.SightingID,
				},
			})
		},
	})

	if err != nil {
		if ctx.Err() != nil {
			job.mu.Lock()
			job.Status = JobStatusCancelled
			job.mu.Unlock()
			job.SendEvent(JobEvent{Type: "cancelled", Message: "Job was cancelled"})
			return
		}
		h.failJob(job, fmt.Sprintf("regroup failed: %v", err))
		return
	}

	now := time.Now()
	job.mu.Lock()
	job.Status = JobStatusCompleted
	job.CompletedAt = &now
	job.ProcessedSightings = result.SightingCount
	job.Progress = 100
	job.Result = result
	job.mu.Unlock()

	job.SendEvent(JobEvent{Type: "completed", Data: result})
}

func (h *RegroupHandler) failJob(job *RegroupJob, message string) {
	now := time.Now()
	job.mu.Lock()
	job.Status = JobStatusFailed
	job.Error = message
	job.CompletedAt = &now
	job.mu.Unlock()
	job.SendEvent(JobEvent{Type: "job_error", Message: message})
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	_, _ = io.WriteString(w, "event: "+eventType+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = io.Copy(w, bytes.NewReader(jsonData))
	_, _ = io.WriteString(w, "\n\n")
	flusher.Flush()
}
