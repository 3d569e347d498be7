// Package constants centralizes limits shared by the CLI and web layers.
package constants

const (
	// DefaultHandlerPageSize bounds paginated list endpoints.
	DefaultHandlerPageSize = 100

	// MaxGroupsPerFetch caps a single group listing. Regrouping uses it
	// when walking the whole table.
	MaxGroupsPerFetch = 10000

	// DefaultSimilarLimit bounds similarity search results.
	DefaultSimilarLimit = 50

	// DefaultConcurrency is the regroup worker count when none is given.
	DefaultConcurrency = 5
)

// Vision provider names accepted by AI_PROVIDER and the web API.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// EventChannelBuffer sizes per-listener job event channels. Slow SSE
// consumers drop events beyond it rather than stall the job.
const EventChannelBuffer = 100

// MaxUploadSize caps multipart uploads at 100MB.
const MaxUploadSize = 100 << 20
