package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/person-matcher/internal/ai"
	"github.com/kozaktomas/person-matcher/internal/config"
	"github.com/kozaktomas/person-matcher/internal/constants"
	"github.com/kozaktomas/person-matcher/internal/reid"
)

// newVisionProvider builds the vision provider selected by name, falling back
// to AI_PROVIDER when name is empty.
func newVisionProvider(ctx context.Context, cfg *config.Config, name string) (ai.Provider, error) {
	if name == "" {
		name = cfg.AI.Provider
	}

	switch name {
	case constants.ProviderOpenAI:
		if cfg.OpenAI.APIKey == "" {
			return nil, errors.New("OPENAI_API_KEY environment variable is required")
		}
		pricing := cfg.GetModelPricing("gpt-4.1-mini")
		return ai.NewOpenAIProvider(cfg.OpenAI.APIKey,
			ai.RequestPricing{Input: pricing.Standard.Input, Output: pricing.Standard.Output},
			ai.RequestPricing{Input: pricing.Batch.Input, Output: pricing.Batch.Output},
		), nil
	case constants.ProviderGemini:
		if cfg.Gemini.APIKey == "" {
			return nil, errors.New("GEMINI_API_KEY environment variable is required")
		}
		pricing := cfg.GetModelPricing("gemini-2.5-flash")
		provider, err := ai.NewGeminiProvider(ctx, cfg.Gemini.APIKey,
			ai.RequestPricing{Input: pricing.Standard.Input, Output: pricing.Standard.Output},
			ai.RequestPricing{Input: pricing.Batch.Input, Output: pricing.Batch.Output},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini provider: %w", err)
		}
		return provider, nil
	case constants.ProviderOllama:
		return ai.NewOllamaProvider(cfg.Ollama.URL, cfg.Ollama.Model), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s (supported: openai, gemini, ollama)", name)
	}
}

// engineFromConfig builds the decision engine, applying ENGINE_* overrides on
// top of the tuned defaults.
func engineFromConfig(cfg *config.Config) *reid.Engine {
	return reid.NewEngine(reid.Config{
		ProSoftCap:     cfg.Engine.ProSoftCap,
		ContraSoftCap:  cfg.Engine.ContraSoftCap,
		MinNormPro:     cfg.Engine.MinPro,
		MaxNormContra:  cfg.Engine.MaxContra,
		ClothingProCap: cfg.Engine.ClothingCap,
	})
}
