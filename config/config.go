// Package config loads application configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate for unusable settings.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete application configuration.
type Config struct {
	DataDir         string `yaml:"data_dir"`
	IndexPath       string `yaml:"index_path"`
	ProfilePath     string `yaml:"profile_path"`
	ChatHistoryPath string `yaml:"chat_history_path"`

	LLM        LLMConfig        `yaml:"llm"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Memory     MemoryConfig     `yaml:"memory"`
	Completion CompletionConfig `yaml:"completion"`
	Log        LogConfig        `yaml:"log"`

	// MetricsAddr serves /metrics when set, e.g. ":9090".
	MetricsAddr string `yaml:"metrics_addr"`
}

// LLMConfig selects the completion provider.
type LLMConfig struct {
	Provider        string `yaml:"provider"` // anthropic | ollama
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	AnthropicModel  string `yaml:"anthropic_model"`
	OllamaURL       string `yaml:"ollama_url"`
	OllamaModel     string `yaml:"ollama_model"`
	Breaker         bool   `yaml:"breaker"`
}

// EmbeddingConfig selects the embedding function.
type EmbeddingConfig struct {
	Provider          string `yaml:"provider"` // ollama | onnx | mock
	Dimensions        int    `yaml:"dimensions"`
	OllamaURL         string `yaml:"ollama_url"`
	OllamaModel       string `yaml:"ollama_model"`
	ONNXModelPath     string `yaml:"onnx_model_path"`
	ONNXTokenizerPath string `yaml:"onnx_tokenizer_path"`
	ONNXLibraryPath   string `yaml:"onnx_library_path"`
	CacheSize         int64  `yaml:"cache_size"`
}

// RetrievalConfig tunes knowledge retrieval.
type RetrievalConfig struct {
	Backend string `yaml:"backend"` // exact | chromem
	TopK    int    `yaml:"top_k"`
}

// MemoryConfig tunes conversation memory.
type MemoryConfig struct {
	MaxMessages    int           `yaml:"max_messages"`
	SummaryTimeout time.Duration `yaml:"summary_timeout"`
}

// CompletionConfig tunes reply generation.
type CompletionConfig struct {
	MaxTokens   int64         `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		DataDir:         "data",
		IndexPath:       "data/index.json",
		ProfilePath:     "data/user_profile.json",
		ChatHistoryPath: "data/chat_history.json",
		LLM: LLMConfig{
			Provider:       "anthropic",
			AnthropicModel: "claude-sonnet-4-20250514",
			OllamaURL:      "http://localhost:11434",
			OllamaModel:    "llama3.2",
			Breaker:        true,
		},
		Embedding: EmbeddingConfig{
			Provider:    "ollama",
			Dimensions:  384,
			OllamaURL:   "http://localhost:11434",
			OllamaModel: "all-minilm",
			CacheSize:   10000,
		},
		Retrieval: RetrievalConfig{
			Backend: "exact",
			TopK:    3,
		},
		Memory: MemoryConfig{
			MaxMessages:    10,
			SummaryTimeout: 30 * time.Second,
		},
		Completion: CompletionConfig{
			MaxTokens:   500,
			Temperature: 0.7,
			Timeout:     60 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then environment variables. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"ANTHROPIC_API_KEY":               &c.LLM.AnthropicAPIKey,
		"SLEEPCOACH_DATA_DIR":             &c.DataDir,
		"SLEEPCOACH_INDEX_PATH":           &c.IndexPath,
		"SLEEPCOACH_PROFILE_PATH":         &c.ProfilePath,
		"SLEEPCOACH_CHAT_HISTORY_PATH":    &c.ChatHistoryPath,
		"SLEEPCOACH_LLM_PROVIDER":         &c.LLM.Provider,
		"SLEEPCOACH_ANTHROPIC_MODEL":      &c.LLM.AnthropicModel,
		"SLEEPCOACH_OLLAMA_URL":           &c.LLM.OllamaURL,
		"SLEEPCOACH_OLLAMA_MODEL":         &c.LLM.OllamaModel,
		"SLEEPCOACH_EMBEDDING_PROVIDER":   &c.Embedding.Provider,
		"SLEEPCOACH_EMBEDDING_OLLAMA_URL": &c.Embedding.OllamaURL,
		"SLEEPCOACH_EMBEDDING_MODEL":      &c.Embedding.OllamaModel,
		"SLEEPCOACH_ONNX_MODEL_PATH":      &c.Embedding.ONNXModelPath,
		"SLEEPCOACH_ONNX_TOKENIZER_PATH":  &c.Embedding.ONNXTokenizerPath,
		"SLEEPCOACH_ONNX_LIBRARY_PATH":    &c.Embedding.ONNXLibraryPath,
		"SLEEPCOACH_RETRIEVAL_BACKEND":    &c.Retrieval.Backend,
		"SLEEPCOACH_LOG_LEVEL":            &c.Log.Level,
		"SLEEPCOACH_LOG_FILE":             &c.Log.File,
		"SLEEPCOACH_METRICS_ADDR":         &c.MetricsAddr,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SLEEPCOACH_EMBEDDING_DIMENSIONS": &c.Embedding.Dimensions,
		"SLEEPCOACH_TOP_K":                &c.Retrieval.TopK,
		"SLEEPCOACH_MAX_MESSAGES":         &c.Memory.MaxMessages,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, ErrInvalidConfig)
		}
		*dst = n
	}

	durations := map[string]*time.Duration{
		"SLEEPCOACH_SUMMARY_TIMEOUT":    &c.Memory.SummaryTimeout,
		"SLEEPCOACH_COMPLETION_TIMEOUT": &c.Completion.Timeout,
	}
	for key, dst := range durations {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, ErrInvalidConfig)
		}
		*dst = d
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "anthropic", "ollama":
	default:
		return fmt.Errorf("llm.provider %q: %w", c.LLM.Provider, ErrInvalidConfig)
	}
	switch c.Embedding.Provider {
	case "ollama", "onnx", "mock":
	default:
		return fmt.Errorf("embedding.provider %q: %w", c.Embedding.Provider, ErrInvalidConfig)
	}
	if c.Embedding.Provider == "onnx" && (c.Embedding.ONNXModelPath == "" || c.Embedding.ONNXTokenizerPath == "") {
		return fmt.Errorf("embedding.onnx_model_path and onnx_tokenizer_path are required: %w", ErrInvalidConfig)
	}
	switch c.Retrieval.Backend {
	case "exact", "chromem":
	default:
		return fmt.Errorf("retrieval.backend %q: %w", c.Retrieval.Backend, ErrInvalidConfig)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive: %w", ErrInvalidConfig)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive: %w", ErrInvalidConfig)
	}
	if c.Memory.MaxMessages <= 2 {
		return fmt.Errorf("memory.max_messages must be greater than 2: %w", ErrInvalidConfig)
	}
	if c.DataDir == "" || c.IndexPath == "" {
		return fmt.Errorf("data_dir and index_path are required: %w", ErrInvalidConfig)
	}
	return nil
}
