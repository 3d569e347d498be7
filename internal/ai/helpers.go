package ai

import "encoding/json"

// describeUserMessage is the user turn sent with every image. The schema and
// rules live in the system prompt.
const describeUserMessage = "Describe the person in this image."

// RequestPricing holds the USD price per million input and output tokens.
type RequestPricing struct {
	Input  float64
	Output float64
}

// usageMeter accumulates token counts and cost across requests. While batch
// mode is on, the discounted batch rate applies; turning it off restores the
// single request rate for later calls.
type usageMeter struct {
	usage     Usage
	single    RequestPricing
	batch     RequestPricing
	batchMode bool
}

func (m *usageMeter) record(inputTokens, outputTokens int64) {
	rate := m.single
	if m.batchMode {
		rate = m.batch
	}
	m.usage.InputTokens += int(inputTokens)
	m.usage.OutputTokens += int(outputTokens)
	m.usage.TotalCost += float64(inputTokens)/1_000_000*rate.Input +
		float64(outputTokens)/1_000_000*rate.Output
}

// parsePersonJSON decodes a model reply into the raw description object.
// A reply of {"person_visible": false} maps to ErrNoPerson; a JSON syntax
// error is returned as-is so callers can feed it back for a retry.
func parsePersonJSON(content string) (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, err
	}

	if visible, ok := raw["person_visible"].(bool); ok && !visible {
		return nil, ErrNoPerson
	}

	return raw, nil
}
