package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed pricing.yaml
var pricingYAML []byte

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Legacy   LegacyConfig
	AI       AIConfig
	OpenAI   OpenAIConfig
	Gemini   GeminiConfig
	Ollama   OllamaConfig
	Search   SearchConfig
	Engine   EngineConfig
	Prices   PricesConfig
}

type ServerConfig struct {
	Port           int    // HTTP listen port (default 8080)
	APIToken       string // bearer token for the API; empty disables auth
	AllowedOrigins string // comma-separated CORS origins; empty allows none
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string // lib/pq sslmode (default disable)
	MaxOpenConns int    // maximum open connections (default 25)
	MaxIdleConns int    // maximum idle connections (default 5)
}

// DSN returns the lib/pq keyword/value connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type LegacyConfig struct {
	MySQLDSN string // legacy sighting archive (e.g., matcher:matcher@tcp(mariadb:3306)/archive)
}

type AIConfig struct {
	Provider string // openai, gemini or ollama (default openai)
}

type OpenAIConfig struct {
	APIKey string
}

type GeminiConfig struct {
	APIKey string
}

type OllamaConfig struct {
	URL   string // defaults to http://localhost:11434
	Model string // defaults to llama3.2-vision:11b
}

type SearchConfig struct {
	EmbeddingURL   string // appearance-embedding sidecar; empty disables preselection
	HNSWEnabled    bool   // in-memory index instead of pgvector queries
	HNSWIndexPath  string // path to persist the HNSW index (optional, rebuilt on startup when empty)
	CandidateLimit int    // nearest groups handed to the engine (default 20)
}

// EngineConfig carries optional overrides for the decision engine tunables.
// Zero values mean "use the engine default".
type EngineConfig struct {
	ProSoftCap    float64
	ContraSoftCap float64
	MinPro        float64
	MaxContra     float64
	ClothingCap   float64
}

type PricesConfig struct {
	Models map[string]ModelPricing `yaml:"models"`
}

type ModelPricing struct {
	Standard RequestPricing `yaml:"standard"`
	Batch    RequestPricing `yaml:"batch"`
}

type RequestPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// envStr reads an environment variable, falling back to a default when unset
// or empty.
func envStr(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envBool reads an environment variable as a boolean (strconv.ParseBool
// syntax). Returns the default value if unset or invalid.
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func Load() *Config {
	var prices PricesConfig
	if err := yaml.Unmarshal(pricingYAML, &prices); err != nil {
		// This is an embedded file, so the error cannot happen in practice.
		panic("failed to unmarshal embedded pricing.yaml: " + err.Error())
	}

	return &Config{
		Server: ServerConfig{
			Port:           envInt("WEB_PORT", 8080),
			APIToken:       os.Getenv("WEB_API_TOKEN"),
			AllowedOrigins: os.Getenv("WEB_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Host:         envStr("POSTGRES_HOST", "localhost"),
			Port:         envInt("POSTGRES_PORT", 5432),
			User:         envStr("POSTGRES_USER", "postgres"),
			Password:     os.Getenv("POSTGRES_PASSWORD"),
			Name:         envStr("POSTGRES_DB", "person_matcher"),
			SSLMode:      envStr("POSTGRES_SSLMODE", "disable"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Legacy: LegacyConfig{
			MySQLDSN: os.Getenv("LEGACY_MYSQL_DSN"),
		},
		AI: AIConfig{
			Provider: envStr("AI_PROVIDER", "openai"),
		},
		OpenAI: OpenAIConfig{
			APIKey: os.Getenv("OPENAI_API_KEY"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
		Ollama: OllamaConfig{
			URL:   os.Getenv("OLLAMA_URL"),
			Model: os.Getenv("OLLAMA_MODEL"),
		},
		Search: SearchConfig{
			EmbeddingURL:   os.Getenv("EMBEDDING_SERVER_URL"),
			HNSWEnabled:    envBool("HNSW_ENABLED", false),
			HNSWIndexPath:  os.Getenv("HNSW_INDEX_PATH"),
			CandidateLimit: envInt("CANDIDATE_LIMIT", 20),
		},
		Engine: EngineConfig{
			ProSoftCap:    envFloat("ENGINE_PRO_SOFT_CAP", 0),
			ContraSoftCap: envFloat("ENGINE_CONTRA_SOFT_CAP", 0),
			MinPro:        envFloat("ENGINE_MIN_PRO", 0),
			MaxContra:     envFloat("ENGINE_MAX_CONTRA", 0),
			ClothingCap:   envFloat("ENGINE_CLOTHING_CAP", 0),
		},
		Prices: prices,
	}
}

// GetModelPricing returns pricing for a specific model, with zero pricing for
// unknown models.
func (c *Config) GetModelPricing(modelName string) ModelPricing {
	if pricing, ok := c.Prices.Models[modelName]; ok {
		return pricing
	}
	return ModelPricing{}
}
