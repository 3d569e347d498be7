package ai

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/kozaktomas/person-matcher/internal/constants"
)

const geminiModel = "gemini-2.5-flash"

type GeminiProvider struct {
	client *genai.Client
	meter  usageMeter
}

func NewGeminiProvider(ctx context.Context, apiKey string, singlePricing, batchPricing RequestPricing) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		meter:  usageMeter{single: singlePricing, batch: batchPricing},
	}, nil
}

// SetBatchMode switches cost accounting to the batch rate. Gemini has no
// batch endpoint here, but the flag keeps cost reports comparable when the
// provider is swapped mid-run.
func (p *GeminiProvider) SetBatchMode(enabled bool) {
	p.meter.batchMode = enabled
}

func (p *GeminiProvider) GetUsage() *Usage {
	return &p.meter.usage
}

func (p *GeminiProvider) ResetUsage() {
	p.meter.usage = Usage{}
}

func (p *GeminiProvider) Name() string {
	return geminiModel
}

func (p *GeminiProvider) DescribePerson(ctx context.Context, imageData []byte) (map[string]any, error) {
	const maxRetries = 5

	// Crops are downscaled before upload to keep token cost flat.
	resizedData, err := ResizeImage(imageData, constants.MaxImageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to resize image: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: personDescriptionPrompt + "\n\n" + describeUserMessage},
				{InlineData: &genai.Blob{Data: resizedData, MIMEType: "image/jpeg"}},
			},
		},
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	var lastError error
	var lastResponse string

	for range maxRetries {
		result, err := p.client.Models.GenerateContent(ctx, geminiModel, contents, config)
		if err != nil {
			return nil, fmt.Errorf("gemini API error: %w", err)
		}

		if result.UsageMetadata != nil {
			p.meter.record(int64(result.UsageMetadata.PromptTokenCount), int64(result.UsageMetadata.CandidatesTokenCount))
		}

		content := result.Text()
		if content == "" {
			return nil, errors.New("no response from Gemini")
		}
		lastResponse = content

		raw, err := parsePersonJSON(content)
		if err != nil {
			if errors.Is(err, ErrNoPerson) {
				return nil, err
			}
			lastError = err

			// Feed the broken reply back so the retry can repair its own JSON.
			contents = append(contents,
				&genai.Content{Role: "model", Parts: []*genai.Part{{Text: content}}},
				&genai.Content{Role: "user", Parts: []*genai.Part{{Text: fmt.Sprintf("JSON parse error: %v. Please fix the JSON and try again. Remember to escape quotes inside strings with backslash.", err)}}},
			)
			continue
		}

		return raw, nil
	}

	return nil, fmt.Errorf("failed to parse description JSON after %d attempts: %w (last response: %s)", maxRetries, lastError, lastResponse)
}

// Batched description runs go through OpenAI only.

func (p *GeminiProvider) DescribePersonBatch(ctx context.Context, requests []BatchDescribeRequest) (string, error) {
	return "", ErrBatchUnsupported
}

func (p *GeminiProvider) CheckBatch(ctx context.Context, batchID string) (*BatchStatus, error) {
	return nil, ErrBatchUnsupported
}

func (p *GeminiProvider) FetchBatchResults(ctx context.Context, batchID string) ([]BatchDescribeResult, error) {
	return nil, ErrBatchUnsupported
}

func (p *GeminiProvider) CancelBatch(ctx context.Context, batchID string) error {
	return ErrBatchUnsupported
}
