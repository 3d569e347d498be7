package ai

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
)

// gradientImage returns a w x h gray gradient. Uniform fills confuse nothing
// here, but a gradient is closer to a real crop and compresses predictably.
func gradientImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.Gray{Y: uint8((x*3 + y*5) % 256)})
		}
	}
	return img
}

func asJPEG(tb testing.TB, img image.Image) []byte {
	tb.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		tb.Fatalf("encoding test jpeg: %v", err)
	}
	return buf.Bytes()
}

func asPNG(tb testing.TB, img image.Image) []byte {
	tb.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		tb.Fatalf("encoding test png: %v", err)
	}
	return buf.Bytes()
}

// --- ResizeImage tests ---

func TestResizeImage(t *testing.T) {
	tests := []struct {
		name         string
		srcW, srcH   int
		maxSize      int
		wantW, wantH int
	}{
		{"under limit keeps dimensions", 100, 100, 200, 100, 100},
		{"landscape pinned to max width", 2000, 1000, 500, 500, 250},
		{"portrait pinned to max height", 1000, 2000, 500, 250, 500},
		{"3:4 person crop keeps ratio", 1200, 1600, 400, 300, 400},
		{"exactly at limit", 500, 500, 500, 500, 500},
		{"one side at limit", 500, 300, 500, 500, 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := asJPEG(t, gradientImage(tt.srcW, tt.srcH))

			out, err := ResizeImage(data, tt.maxSize)
			if err != nil {
				t.Fatalf("ResizeImage: %v", err)
			}

			img, format, err := image.Decode(bytes.NewReader(out))
			if err != nil {
				t.Fatalf("decoding output: %v", err)
			}
			if format != "jpeg" {
				t.Errorf("output format = %s, want jpeg", format)
			}
			if b := img.Bounds(); b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("output size = %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestResizeImage_ConvertsPNG(t *testing.T) {
	data := asPNG(t, gradientImage(100, 100))

	out, err := ResizeImage(data, 200)
	if err != nil {
		t.Fatalf("ResizeImage: %v", err)
	}

	// Output format is always JPEG regardless of input.
	_, format, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("output format = %s, want jpeg", format)
	}
}

func TestResizeImage_BadInput(t *testing.T) {
	for name, data := range map[string][]byte{
		"garbage": []byte("not an image"),
		"empty":   {},
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := ResizeImage(data, 500); err == nil {
				t.Error("expected decode error")
			}
		})
	}
}

// --- parsePersonJSON tests ---

func TestParsePersonJSON_ValidDescription(t *testing.T) {
	content := `{
		"person_visible": true,
		"gender_presentation": {"value": "male", "confidence": 90},
		"age_band": {"value": "young_adult", "confidence": 75},
		"clothing": {
			"top": {"description": "plain t-shirt", "color": "red", "permanence": "stable", "confidence": 95, "rare_flag": false}
		},
		"visible_confidence": 95
	}`

	raw, err := parsePersonJSON(content)
	if err != nil {
		t.Fatalf("parsePersonJSON failed: %v", err)
	}

	if raw == nil {
		t.Fatal("expected non-nil map")
	}

	gender, ok := raw["gender_presentation"].(map[string]any)
	if !ok {
		t.Fatal("expected gender_presentation to be an object")
	}

	if gender["value"] != "male" {
		t.Errorf("expected gender value 'male', got '%v'", gender["value"])
	}

	if raw["visible_confidence"].(float64) != 95 {
		t.Errorf("expected visible_confidence 95, got %v", raw["visible_confidence"])
	}
}

func TestParsePersonJSON_NoPersonVisible(t *testing.T) {
	_, err := parsePersonJSON(`{"person_visible": false}`)

	if !errors.Is(err, ErrNoPerson) {
		t.Errorf("expected ErrNoPerson, got %v", err)
	}
}

func TestParsePersonJSON_MissingVisibleFlag(t *testing.T) {
	// Older-style replies without the flag are still usable
	raw, err := parsePersonJSON(`{"age_band": {"value": "senior", "confidence": 60}}`)
	if err != nil {
		t.Fatalf("parsePersonJSON failed: %v", err)
	}

	if _, ok := raw["age_band"]; !ok {
		t.Error("expected age_band key to survive parsing")
	}
}

func TestParsePersonJSON_InvalidJSON(t *testing.T) {
	_, err := parsePersonJSON(`{"age_band": {"value": "senior"`)

	if err == nil {
		t.Error("expected error for truncated JSON")
	}

	if errors.Is(err, ErrNoPerson) {
		t.Error("syntax error must not be reported as ErrNoPerson")
	}
}

// --- extractJSON tests ---

func TestExtractJSON_PlainObject(t *testing.T) {
	content := `{"person_visible": true}`

	if got := extractJSON(content); got != content {
		t.Errorf("expected unchanged content, got '%s'", got)
	}
}

func TestExtractJSON_SurroundingText(t *testing.T) {
	content := "Here is the description:\n{\"age_band\": {\"value\": \"child\"}}\nHope this helps!"
	expected := `{"age_band": {"value": "child"}}`

	if got := extractJSON(content); got != expected {
		t.Errorf("expected '%s', got '%s'", expected, got)
	}
}

func TestExtractJSON_NestedBraces(t *testing.T) {
	content := "```json\n{\"hair\": {\"color\": {\"value\": \"brown\"}}}\n```"
	expected := `{"hair": {"color": {"value": "brown"}}}`

	if got := extractJSON(content); got != expected {
		t.Errorf("expected '%s', got '%s'", expected, got)
	}
}

func TestExtractJSON_NoBraces(t *testing.T) {
	content := "I cannot see any person in this image."

	if got := extractJSON(content); got != content {
		t.Errorf("expected unchanged content, got '%s'", got)
	}
}

func TestExtractJSON_UnclosedBrace(t *testing.T) {
	content := `prefix {"age_band": "child"`
	expected := `{"age_band": "child"`

	if got := extractJSON(content); got != expected {
		t.Errorf("expected '%s', got '%s'", expected, got)
	}
}

// --- usage metering tests ---

func approxEqual(a, b float64) bool {
	diff := a - b
	return diff > -1e-9 && diff < 1e-9
}

func TestUsageMeter_CostCalculation(t *testing.T) {
	m := usageMeter{single: RequestPricing{Input: 0.40, Output: 1.60}}

	m.record(1_000_000, 500_000)

	if m.usage.InputTokens != 1_000_000 {
		t.Errorf("input tokens = %d, want 1000000", m.usage.InputTokens)
	}
	if m.usage.OutputTokens != 500_000 {
		t.Errorf("output tokens = %d, want 500000", m.usage.OutputTokens)
	}

	// 1M input at $0.40 + 0.5M output at $1.60 = 0.40 + 0.80
	if !approxEqual(m.usage.TotalCost, 1.20) {
		t.Errorf("total cost = %f, want 1.20", m.usage.TotalCost)
	}
}

func TestUsageMeter_Accumulates(t *testing.T) {
	m := usageMeter{single: RequestPricing{Input: 0.40, Output: 1.60}}

	m.record(100, 50)
	m.record(200, 100)

	if m.usage.InputTokens != 300 || m.usage.OutputTokens != 150 {
		t.Errorf("tokens = %d/%d, want 300/150", m.usage.InputTokens, m.usage.OutputTokens)
	}
}

func TestUsageMeter_BatchRate(t *testing.T) {
	m := usageMeter{
		single: RequestPricing{Input: 0.40, Output: 1.60},
		batch:  RequestPricing{Input: 0.20, Output: 0.80},
	}

	m.batchMode = true
	m.record(1_000_000, 1_000_000)

	// 1M at $0.20 + 1M at $0.80 = 1.00
	if !approxEqual(m.usage.TotalCost, 1.00) {
		t.Errorf("batch cost = %f, want 1.00", m.usage.TotalCost)
	}

	// Leaving batch mode restores the single rate for later requests.
	m.batchMode = false
	m.record(1_000_000, 1_000_000)

	if !approxEqual(m.usage.TotalCost, 3.00) {
		t.Errorf("mixed cost = %f, want 3.00", m.usage.TotalCost)
	}
}

func TestOpenAIProvider_UsageLifecycle(t *testing.T) {
	p := NewOpenAIProvider("test-key",
		RequestPricing{Input: 0.40, Output: 1.60},
		RequestPricing{Input: 0.20, Output: 0.80})

	p.meter.record(1000, 500)
	if p.GetUsage().InputTokens != 1000 {
		t.Errorf("input tokens = %d, want 1000", p.GetUsage().InputTokens)
	}

	p.ResetUsage()
	usage := p.GetUsage()
	if usage.InputTokens != 0 || usage.OutputTokens != 0 || usage.TotalCost != 0 {
		t.Errorf("usage after reset = %+v, want zero", usage)
	}

	p.SetBatchMode(true)
	p.meter.record(1_000_000, 1_000_000)
	if !approxEqual(p.GetUsage().TotalCost, 1.00) {
		t.Errorf("batch cost = %f, want 1.00", p.GetUsage().TotalCost)
	}
}

// --- prompt and batch surface tests ---

func TestPersonDescriptionPrompt_Embedded(t *testing.T) {
	if personDescriptionPrompt == "" {
		t.Fatal("expected embedded prompt to be non-empty")
	}

	// The no-person escape hatch is what ErrNoPerson detection relies on
	if !strings.Contains(personDescriptionPrompt, `"person_visible": false`) {
		t.Error("expected prompt to document the person_visible escape hatch")
	}

	if !strings.Contains(personDescriptionPrompt, "unknown") {
		t.Error("expected prompt to require the unknown sentinel")
	}
}

func TestOllamaProvider_BatchUnsupported(t *testing.T) {
	p := NewOllamaProvider("", "")
	ctx := context.Background()

	if _, err := p.DescribePersonBatch(ctx, nil); !errors.Is(err, ErrBatchUnsupported) {
		t.Errorf("expected ErrBatchUnsupported, got %v", err)
	}

	if _, err := p.CheckBatch(ctx, "batch-1"); !errors.Is(err, ErrBatchUnsupported) {
		t.Errorf("expected ErrBatchUnsupported, got %v", err)
	}

	if err := p.CancelBatch(ctx, "batch-1"); !errors.Is(err, ErrBatchUnsupported) {
		t.Errorf("expected ErrBatchUnsupported, got %v", err)
	}
}

func TestOllamaProvider_Defaults(t *testing.T) {
	p := NewOllamaProvider("", "")

	if p.Name() != "llama3.2-vision:11b" {
		t.Errorf("expected default model name, got '%s'", p.Name())
	}

	if p.baseURL != "http://localhost:11434" {
		t.Errorf("expected default URL, got '%s'", p.baseURL)
	}
}

func TestOllamaProvider_TrimsTrailingSlash(t *testing.T) {
	p := NewOllamaProvider("http://gpu-box:11434/", "llava:13b")

	if p.baseURL != "http://gpu-box:11434" {
		t.Errorf("expected trimmed URL, got '%s'", p.baseURL)
	}

	if p.Name() != "llava:13b" {
		t.Errorf("expected model 'llava:13b', got '%s'", p.Name())
	}
}

func TestBatchDescribeResult_Failure(t *testing.T) {
	result := BatchDescribeResult{
		SightingID: "sighting-789",
		Raw:        nil,
		Error:      "failed to process image",
	}

	if result.Raw != nil {
		t.Error("expected nil Raw for failed result")
	}

	if result.Error != "failed to process image" {
		t.Errorf("expected error message, got '%s'", result.Error)
	}
}

func BenchmarkResizeImage(b *testing.B) {
	// Full-resolution portrait crop scaled down to the upload size.
	data := asJPEG(b, gradientImage(2400, 3200))

	b.ResetTimer()
	for range b.N {
		ResizeImage(data, 800)
	}
}
