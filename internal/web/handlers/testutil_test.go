package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/person-matcher/internal/ai"
	"github.com/kozaktomas/person-matcher/internal/person"
	"github.com/kozaktomas/person-matcher/internal/reid"
)

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}

// testEngine creates a decision engine with default tuning
func testEngine() *reid.Engine {
	return reid.NewEngine(reid.DefaultConfig())
}

// stubProvider is an ai.Provider returning a canned description
type stubProvider struct {
	raw   map[string]any
	err   error
	calls int
}

var _ ai.Provider = (*stubProvider)(nil)

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) DescribePerson(ctx context.Context, imageData []byte) (map[string]any, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.raw, nil
}

func (s *stubProvider) DescribePersonBatch(ctx context.Context, requests []ai.BatchDescribeRequest) (string, error) {
	return "", ai.ErrBatchUnsupported
}

func (s *stubProvider) CheckBatch(ctx context.Context, batchID string) (*ai.BatchStatus, error) {
	return nil, ai.ErrBatchUnsupported
}

func (s *stubProvider) FetchBatchResults(ctx context.Context, batchID string) ([]ai.BatchDescribeResult, error) {
	return nil, ai.ErrBatchUnsupported
}

func (s *stubProvider) CancelBatch(ctx context.Context, batchID string) error {
	return ai.ErrBatchUnsupported
}

func (s *stubProvider) GetUsage() *ai.Usage {
	return &ai.Usage{InputTokens: 1200, OutputTokens: 340, TotalCost: 0.0042}
}

func (s *stubProvider) ResetUsage() {}

func (s *stubProvider) SetBatchMode(enabled bool) {}

// rawDescription builds a raw provider payload for a reliably matchable
// person: confident physical traits plus a rare tattoo.
func rawDescription() map[string]any {
	return map[string]any{
		"gender_presentation": map[string]any{"value": "male", "confidence": 100},
		"age_band":            map[string]any{"value": "young_adult", "confidence": 100},
		"build":               map[string]any{"value": "slim", "confidence": 95},
		"height_impression":   map[string]any{"value": "tall", "confidence": 95},
		"skin_tone":           map[string]any{"value": "light", "confidence": 95},
		"hair": map[string]any{
			"color":       map[string]any{"value": "brown", "confidence": 100},
			"length":      map[string]any{"value": "short", "confidence": 95},
			"style":       map[string]any{"value": "curly", "confidence": 90},
			"facial_hair": map[string]any{"value": "clean_shaven", "confidence": 95},
		},
		"clothing": map[string]any{
			"top":      map[string]any{"description": "plain t-shirt", "color": "red", "permanence": "stable", "confidence": 100},
			"trousers": map[string]any{"description": "blue jeans", "color": "blue", "permanence": "stable", "confidence": 100},
			"shoes":    map[string]any{"description": "running sneakers", "color": "white", "permanence": "stable", "confidence": 100},
		},
		"distinctive_marks": []any{
			map[string]any{
				"type":         "tattoo",
				"description":  "dragon tattoo",
				"location":     "left forearm",
				"rarity_score": 90,
				"confidence":   95,
			},
		},
		"visible_confidence":   100,
		"lighting_uncertainty": 10,
		"image_clarity":        95,
	}
}

// rawOtherPerson is a payload that fatally mismatches rawDescription on
// gender, so comparisons and grouping decisions keep the two apart.
func rawOtherPerson() map[string]any {
	return map[string]any{
		"gender_presentation": map[string]any{"value": "female", "confidence": 95},
		"age_band":            map[string]any{"value": "middle_aged", "confidence": 90},
		"build":               map[string]any{"value": "average", "confidence": 85},
		"height_impression":   map[string]any{"value": "short", "confidence": 85},
		"skin_tone":           map[string]any{"value": "medium", "confidence": 90},
		"hair": map[string]any{
			"color":       map[string]any{"value": "blonde", "confidence": 95},
			"length":      map[string]any{"value": "long", "confidence": 95},
			"style":       map[string]any{"value": "straight", "confidence": 90},
			"facial_hair": map[string]any{"value": "none", "confidence": 90},
		},
		"clothing": map[string]any{
			"top":   map[string]any{"description": "floral blouse", "color": "yellow", "permanence": "stable", "confidence": 95},
			"shoes": map[string]any{"description": "leather sandals", "color": "brown", "permanence": "stable", "confidence": 90},
		},
		"distinctive_marks":    []any{},
		"visible_confidence":   95,
		"lighting_uncertainty": 15,
		"image_clarity":        90,
	}
}

// mustNormalize converts a raw payload into a description, failing the test on error
func mustNormalize(t *testing.T, raw map[string]any) *person.Description {
	t.Helper()
	desc, err := person.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	return desc
}

// testJPEG renders a small gradient JPEG for image-based requests
func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}
