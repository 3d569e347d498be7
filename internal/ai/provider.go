package ai

import (
	"context"
	"errors"
)

// ErrNoPerson is returned when the vision model reports that no person is
// visible in the submitted image.
var ErrNoPerson = errors.New("no person visible in image")

// ErrBatchUnsupported is returned by providers without a batch API.
var ErrBatchUnsupported = errors.New("provider does not support batch operations")

// Provider defines the interface for vision description backends. Providers
// return the raw JSON object emitted by the model; normalization into a
// person.Description happens downstream so every backend is held to the same
// schema rules.
type Provider interface {
	Name() string
	DescribePerson(ctx context.Context, imageData []byte) (map[string]any, error)

	// Batch API methods. Only OpenAI implements these; the rest return
	// ErrBatchUnsupported.
	DescribePersonBatch(ctx context.Context, requests []BatchDescribeRequest) (batchID string, err error)
	CheckBatch(ctx context.Context, batchID string) (*BatchStatus, error)
	FetchBatchResults(ctx context.Context, batchID string) ([]BatchDescribeResult, error)
	CancelBatch(ctx context.Context, batchID string) error

	// Usage tracking.
	GetUsage() *Usage
	ResetUsage()
	SetBatchMode(enabled bool)
}

// Usage tracks token usage and calculates cost.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalCost    float64 // in USD
}

// BatchDescribeRequest represents a single description request in a batch.
type BatchDescribeRequest struct {
	SightingID string
	ImageData  []byte
}

// BatchStatus represents the current status of a batch job.
type BatchStatus struct {
	ID             string
	Status         string // "validating", "in_progress", "completed", "failed", "expired", "cancelled"
	TotalRequests  int
	CompletedCount int
	FailedCount    int
}

// BatchDescribeResult represents the result of a single description in a
// batch. Raw is nil when Error is set.
type BatchDescribeResult struct {
	SightingID string
	Raw        map[string]any
	Error      string
}
