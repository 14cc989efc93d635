package config

import (
	"encoding/json"
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

type Config struct {
	Server  ServerConfig
	AI      AIConfig
	OpenAI  OpenAIConfig
	Ollama  OllamaConfig
	Archive ArchiveConfig
	RAG     RAGConfig
}

type ServerConfig struct {
	Host string `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port string `envconfig:"SERVER_PORT" default:"3000"`
}

type AIConfig struct {
	Provider       string `envconfig:"AI_PROVIDER" default:"openai"`
	TokenLimit     int    `envconfig:"TOKEN_LIMIT" default:"128000"`
	ResponseTokens int    `envconfig:"RESPONSE_TOKENS" default:"1024"`

	// BasePrompt overrides the built-in analysis instruction when set.
	BasePrompt string `envconfig:"BASE_PROMPT"`

	// UseRestrictions switches the system prompt from the plain
	// existing-taxonomy listing to the restriction-rule block.
	UseRestrictions        bool `envconfig:"USE_RESTRICTIONS" default:"false"`
	RestrictTags           bool `envconfig:"RESTRICT_TO_EXISTING_TAGS" default:"false"`
	RestrictCorrespondents bool `envconfig:"RESTRICT_TO_EXISTING_CORRESPONDENTS" default:"false"`

	// CustomFieldsJSON is a JSON array of custom field definitions,
	// e.g. [{"name":"Invoice Number","data_type":"string"}].
	CustomFieldsJSON string        `envconfig:"CUSTOM_FIELDS"`
	CustomFields     []CustomField `ignored:"true"`

	TranscriptPath string `envconfig:"PROMPT_TRANSCRIPT" default:"logs/prompts.log"`
}

type OpenAIConfig struct {
	APIKey  string `envconfig:"OPENAI_API_KEY"`
	BaseURL string `envconfig:"OPENAI_BASE_URL"`
	Model   string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
}

type OllamaConfig struct {
	Host        string  `envconfig:"OLLAMA_HOST" default:"http://localhost:11434"`
	Model       string  `envconfig:"OLLAMA_MODEL" default:"llama3.1:8b"`
	NumCtxMax   int     `envconfig:"OLLAMA_NUM_CTX" default:"8192"`
	Temperature float64 `envconfig:"OLLAMA_TEMPERATURE" default:"0.3"`
	TopP        float64 `envconfig:"OLLAMA_TOP_P" default:"0.9"`
}

type ArchiveConfig struct {
	BaseURL  string `envconfig:"ARCHIVE_URL" default:"http://localhost:8000"`
	Token    string `envconfig:"ARCHIVE_TOKEN"`
	ImageDir string `envconfig:"THUMBNAIL_DIR" default:"data/thumbnails"`
}

type RAGConfig struct {
	BaseURL    string `envconfig:"RAG_SERVICE_URL" default:"http://localhost:8001"`
	MaxSources int    `envconfig:"RAG_MAX_SOURCES" default:"5"`
}

type CustomField struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}

	if cfg.AI.CustomFieldsJSON != "" {
		if err := json.Unmarshal([]byte(cfg.AI.CustomFieldsJSON), &cfg.AI.CustomFields); err != nil {
			return Config{}, fmt.Errorf("parse CUSTOM_FIELDS: %w", err)
		}
	}

	return cfg, nil
}
