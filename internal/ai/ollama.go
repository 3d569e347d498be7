package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kozaktomas/person-matcher/internal/constants"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3.2-vision:11b"
)

type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
	meter   usageMeter
}

func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{},
	}
}

func (p *OllamaProvider) Name() string {
	return p.model
}

func (p *OllamaProvider) SetBatchMode(enabled bool) {
	// No batch tier, so no pricing switch either.
}

func (p *OllamaProvider) GetUsage() *Usage {
	return &p.meter.usage
}

func (p *OllamaProvider) ResetUsage() {
	p.meter.usage = Usage{}
}

// Request and response shapes for the /api/chat endpoint.
type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  ollamaOptions   `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // base64 encoded
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

func (p *OllamaProvider) DescribePerson(ctx context.Context, imageData []byte) (map[string]any, error) {
	const maxRetries = 5

	// Local models choke on large inputs, so crops are downscaled first.
	resizedData, err := ResizeImage(imageData, constants.MaxImageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to resize image: %w", err)
	}

	base64Image := base64.StdEncoding.EncodeToString(resizedData)

	messages := []ollamaMessage{
		{Role: "system", Content: personDescriptionPrompt},
		{Role: "user", Content: describeUserMessage, Images: []string{base64Image}},
	}

	var lastError error
	var lastResponse string

	for range maxRetries {
		resp, err := p.sendRequest(ctx, messages)
		if err != nil {
			return nil, err
		}

		// Token counts still feed the stats endpoint even though local
		// inference costs nothing. The meter carries zero rates.
		p.meter.record(int64(resp.PromptEvalCount), int64(resp.EvalCount))

		content := resp.Message.Content
		lastResponse = content

		jsonContent := extractJSON(content)

		raw, err := parsePersonJSON(jsonContent)
		if err != nil {
			if errors.Is(err, ErrNoPerson) {
				return nil, err
			}
			lastError = err

			// Feed the broken reply back so the retry can repair its own JSON.
			messages = append(messages,
				ollamaMessage{Role: "assistant", Content: content},
				ollamaMessage{Role: "user", Content: fmt.Sprintf("JSON parse error: %v. Please fix the JSON and try again. Remember to escape quotes inside strings with backslash. Output ONLY valid JSON, no other text.", err)},
			)
			continue
		}

		return raw, nil
	}

	return nil, fmt.Errorf("failed to parse description JSON after %d attempts: %w (last response: %s)", maxRetries, lastError, lastResponse)
}

func (p *OllamaProvider) sendRequest(ctx context.Context, messages []ollamaMessage) (*ollamaResponse, error) {
	jsonBody, err := json.Marshal(ollamaRequest{
		Model:    p.model,
		Messages: messages,
		Stream:   false,
		Format:   "json",
		Options:  ollamaOptions{NumPredict: 1000},
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("ollama: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama: unexpected status %d: %s", resp.StatusCode, snippet)
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollama: decode response: %w", err)
	}

	return &out, nil
}

// extractJSON cuts the first balanced JSON object out of a reply. Local
// models like to wrap their JSON in prose despite the format instruction.
func extractJSON(content string) string {
	start := strings.IndexByte(content, '{')
	if start == -1 {
		return content
	}

	depth := 0
	for i := start; i < len(content); i++ {
		switch content[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}

	// Unbalanced braces, let the JSON parser report the problem.
	return content[start:]
}

// Ollama has no batch endpoint.

func (p *OllamaProvider) DescribePersonBatch(ctx context.Context, requests []BatchDescribeRequest) (string, error) {
	return "", ErrBatchUnsupported
}

func (p *OllamaProvider) CheckBatch(ctx context.Context, batchID string) (*BatchStatus, error) {
	return nil, ErrBatchUnsupported
}

func (p *OllamaProvider) FetchBatchResults(ctx context.Context, batchID string) ([]BatchDescribeResult, error) {
	return nil, ErrBatchUnsupported
}

func (p *OllamaProvider) CancelBatch(ctx context.Context, batchID string) error {
	return ErrBatchUnsupported
}
