package ai

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/kozaktomas/person-matcher/internal/constants"
)

//go:embed prompts/person_description.txt
var personDescriptionPrompt string

const chatModel = openai.ChatModelGPT4_1Mini

type OpenAIProvider struct {
	client *openai.Client
	meter  usageMeter
}

func NewOpenAIProvider(apiKey string, singlePricing, batchPricing RequestPricing) *OpenAIProvider {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{
		client: &client,
		meter:  usageMeter{single: singlePricing, batch: batchPricing},
	}
}

// SetBatchMode switches cost accounting to the discounted batch rate.
func (p *OpenAIProvider) SetBatchMode(enabled bool) {
	p.meter.batchMode = enabled
}

func (p *OpenAIProvider) GetUsage() *Usage {
	return &p.meter.usage
}

func (p *OpenAIProvider) ResetUsage() {
	p.meter.usage = Usage{}
}

func (p *OpenAIProvider) Name() string {
	return chatModel
}

// chat sends one completion round and returns the reply text. Token usage is
// recorded on every call, retries included.
func (p *OpenAIProvider) chat(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    chatModel,
		Messages: messages,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		MaxTokens: openai.Int(1000),
	})
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	p.meter.record(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return resp.Choices[0].Message.Content, nil
}

// Shorthand constructors for the SDK's message param unions.

func systemText(text string) openai.ChatCompletionMessageParamUnion {
	return openai.ChatCompletionMessageParamUnion{
		OfSystem: &openai.ChatCompletionSystemMessageParam{
			Content: openai.ChatCompletionSystemMessageParamContentUnion{
				OfString: openai.String(text),
			},
		},
	}
}

func userText(text string) openai.ChatCompletionMessageParamUnion {
	return openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfString: openai.String(text),
			},
		},
	}
}

func assistantText(text string) openai.ChatCompletionMessageParamUnion {
	return openai.ChatCompletionMessageParamUnion{
		OfAssistant: &openai.ChatCompletionAssistantMessageParam{
			Content: openai.ChatCompletionAssistantMessageParamContentUnion{
				OfString: openai.String(text),
			},
		},
	}
}

func userImageWithText(text, imageURL string) openai.ChatCompletionMessageParamUnion {
	return openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
					openai.TextContentPart(text),
					openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
						URL:    imageURL,
						Detail: "low",
					}),
				},
			},
		},
	}
}

func (p *OpenAIProvider) DescribePerson(ctx context.Context, imageData []byte) (map[string]any, error) {
	const maxRetries = 5

	// Crops are downscaled before upload; detail "low" keeps token cost flat.
	resizedData, err := ResizeImage(imageData, constants.MaxImageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to resize image: %w", err)
	}

	base64Image := base64.StdEncoding.EncodeToString(resizedData)
	imageURL := "data:image/jpeg;base64," + base64Image

	messages := []openai.ChatCompletionMessageParamUnion{
		systemText(personDescriptionPrompt),
		userImageWithText(describeUserMessage, imageURL),
	}

	var lastError error
	var lastResponse string

	for range maxRetries {
		content, err := p.chat(ctx, messages)
		if err != nil {
			return nil, err
		}
		lastResponse = content

		raw, err := parsePersonJSON(content)
		if err != nil {
			if errors.Is(err, ErrNoPerson) {
				return nil, err
			}
			lastError = err

			// Feed the broken reply back so the retry can repair its own JSON.
			messages = append(messages,
				assistantText(content),
				userText(fmt.Sprintf("JSON parse error: %v. Please fix the JSON and try again. Remember to escape quotes inside strings with backslash.", err)),
			)
			continue
		}

		return raw, nil
	}

	return nil, fmt.Errorf("failed to parse description JSON after %d attempts: %w (last response: %s)", maxRetries, lastError, lastResponse)
}

// batchRequest is one line of the JSONL file submitted to the Batch API.
type batchRequest struct {
	CustomID string           `json:"custom_id"`
	Method   string           `json:"method"`
	URL      string           `json:"url"`
	Body     batchRequestBody `json:"body"`
}

type batchRequestBody struct {
	Model          string           `json:"model"`
	Messages       []map[string]any `json:"messages"`
	ResponseFormat map[string]any   `json:"response_format"`
	MaxTokens      int              `json:"max_tokens"`
}

// batchChatBody mirrors the interactive chat call for the Batch API, which
// takes raw JSON rather than SDK param types.
func batchChatBody(imageURL string) batchRequestBody {
	return batchRequestBody{
		Model: chatModel,
		Messages: []map[string]any{
			{"role": "system", "content": personDescriptionPrompt},
			{"role": "user", "content": []map[string]any{
				{"type": "text", "text": describeUserMessage},
				{"type": "image_url", "image_url": map[string]any{"url": imageURL, "detail": "low"}},
			}},
		},
		ResponseFormat: map[string]any{"type": "json_object"},
		MaxTokens:      1000,
	}
}

// batchResponse is one line of the JSONL output file.
type batchResponse struct {
	ID       string `json:"id"`
	CustomID string `json:"custom_id"`
	Response struct {
		StatusCode int `json:"status_code"`
		Body       struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
		} `json:"body"`
	} `json:"response"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *OpenAIProvider) DescribePersonBatch(ctx context.Context, requests []BatchDescribeRequest) (string, error) {
	if len(requests) == 0 {
		return "", errors.New("no requests provided")
	}

	var jsonlBuffer bytes.Buffer
	for _, req := range requests {
		resizedData, err := ResizeImage(req.ImageData, constants.MaxImageSize)
		if err != nil {
			return "", fmt.Errorf("failed to resize image for %s: %w", req.SightingID, err)
		}

		base64Image := base64.StdEncoding.EncodeToString(resizedData)
		imageURL := "data:image/jpeg;base64," + base64Image

		batchReq := batchRequest{
			CustomID: req.SightingID,
			Method:   "POST",
			URL:      "/v1/chat/completions",
			Body:     batchChatBody(imageURL),
		}

		reqJSON, err := json.Marshal(batchReq)
		if err != nil {
			return "", fmt.Errorf("failed to marshal batch request: %w", err)
		}
		jsonlBuffer.Write(reqJSON)
		jsonlBuffer.WriteByte('\n')
	}

	uploadResp, err := p.client.Files.New(ctx, openai.FileNewParams{
		File:    strings.NewReader(jsonlBuffer.String()),
		Purpose: openai.FilePurposeBatch,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload batch file: %w", err)
	}

	batchResp, err := p.client.Batches.New(ctx, openai.BatchNewParams{
		InputFileID:      uploadResp.ID,
		Endpoint:         "/v1/chat/completions",
		CompletionWindow: "24h",
	})
	if err != nil {
		return "", fmt.Errorf("failed to create batch: %w", err)
	}

	return batchResp.ID, nil
}

func (p *OpenAIProvider) CheckBatch(ctx context.Context, batchID string) (*BatchStatus, error) {
	batch, err := p.client.Batches.Get(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get batch status: %w", err)
	}

	return &BatchStatus{
		ID:             batch.ID,
		Status:         string(batch.Status),
		TotalRequests:  int(batch.RequestCounts.Total),
		CompletedCount: int(batch.RequestCounts.Completed),
		FailedCount:    int(batch.RequestCounts.Failed),
	}, nil
}

func (p *OpenAIProvider) FetchBatchResults(ctx context.Context, batchID string) ([]BatchDescribeResult, error) {
	batch, err := p.client.Batches.Get(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}

	if batch.Status != openai.BatchStatusCompleted {
		return nil, fmt.Errorf("batch is not completed, status: %s", batch.Status)
	}

	if batch.OutputFileID == "" {
		return nil, errors.New("no output file available")
	}

	fileContent, err := p.client.Files.Content(ctx, batch.OutputFileID)
	if err != nil {
		return nil, fmt.Errorf("failed to download batch results: %w", err)
	}
	defer fileContent.Body.Close()

	// The output is JSONL, one response object per line.
	var results []BatchDescribeResult
	scanner := bufio.NewScanner(fileContent.Body)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		var resp batchResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			results = append(results, BatchDescribeResult{
				SightingID: "unknown",
				Error:      fmt.Sprintf("failed to parse response: %v", err),
			})
			continue
		}

		result := BatchDescribeResult{
			SightingID: resp.CustomID,
		}

		if resp.Error != nil {
			result.Error = resp.Error.Message
		} else if resp.Response.Body.Error != nil {
			result.Error = resp.Response.Body.Error.Message
		} else if len(resp.Response.Body.Choices) > 0 {
			content := resp.Response.Body.Choices[0].Message.Content
			raw, err := parsePersonJSON(content)
			if err != nil {
				result.Error = fmt.Sprintf("failed to parse description: %v", err)
			} else {
				result.Raw = raw
			}
		} else {
			result.Error = "no choices in response"
		}

		results = append(results, result)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read batch results: %w", err)
	}

	return results, nil
}

func (p *OpenAIProvider) CancelBatch(ctx context.Context, batchID string) error {
	_, err := p.client.Batches.Cancel(ctx, batchID)
	if err != nil {
		return fmt.Errorf("failed to cancel batch: %w", err)
	}
	return nil
}
