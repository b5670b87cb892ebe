// Package config holds runtime parameters for the daemon.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Trim strategies for shaping generated text. Exactly one is active.
const (
	// TrimPrefix strips an echoed prompt prefix from the decoded text and
	// truncates at the first matching stop string.
	TrimPrefix = "prefix"
	// TrimSpecial relies on the backend stripping special tokens and applies
	// only stop-string truncation.
	TrimSpecial = "special"
)

// Config holds runtime parameters for the service.
type Config struct {
	Addr               string   `json:"addr" yaml:"addr" toml:"addr"`
	Model              string   `json:"model" yaml:"model" toml:"model"`
	ModelsDir          string   `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	RequiredQuant      string   `json:"required_quant" yaml:"required_quant" toml:"required_quant"`
	EnforceQuant       bool     `json:"enforce_quant" yaml:"enforce_quant" toml:"enforce_quant"`
	EagerLoad          bool     `json:"eager_load" yaml:"eager_load" toml:"eager_load"`
	AllowModelOverride bool     `json:"allow_model_override" yaml:"allow_model_override" toml:"allow_model_override"`
	Aliases            bool     `json:"aliases" yaml:"aliases" toml:"aliases"`
	TrimStrategy       string   `json:"trim_strategy" yaml:"trim_strategy" toml:"trim_strategy"`
	MaxQueueDepth      int      `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWaitSeconds     int      `json:"max_wait_s" yaml:"max_wait_s" toml:"max_wait_s"`
	LlamaCtx           int      `json:"llama_ctx" yaml:"llama_ctx" toml:"llama_ctx"`
	LlamaThreads       int      `json:"llama_threads" yaml:"llama_threads" toml:"llama_threads"`
	GPULayers          int      `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers"`
	LogLevel           string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	CORSEnabled        bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins        []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// Default returns the built-in configuration. The served model defaults to
// the friendly alias "gpt-oss:120b"; quantization enforcement is on.
func Default() Config {
	return Config{
		Addr:          ":8080",
		Model:         "gpt-oss:120b",
		ModelsDir:     "~/models/llm",
		RequiredQuant: "mxfp4",
		EnforceQuant:  true,
		Aliases:       true,
		TrimStrategy:  TrimPrefix,
		LlamaCtx:      4096,
		LlamaThreads:  0, // runtime picks
		LogLevel:      "info",
	}
}

// Load reads a configuration file based on its extension, overlaying the
// given base. Supports: .yaml/.yml, .json, .toml
func Load(path string, base Config) (Config, error) {
	cfg := base
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyEnv overlays GPTD_* environment variables. GPTD_MODEL selects the
// served model id (the only env contract the API requires); the rest mirror
// flags for container deployments.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("GPTD_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("GPTD_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("GPTD_MODELS_DIR"); v != "" {
		c.ModelsDir = v
	}
	if v := os.Getenv("GPTD_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("GPTD_EAGER_LOAD"); v != "" {
		c.EagerLoad = isTruthy(v)
	}
}

// Validate rejects combinations the server cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("model must not be empty")
	}
	if c.TrimStrategy != TrimPrefix && c.TrimStrategy != TrimSpecial {
		return fmt.Errorf("trim_strategy must be %q or %q, got %q", TrimPrefix, TrimSpecial, c.TrimStrategy)
	}
	if c.EnforceQuant && strings.TrimSpace(c.RequiredQuant) == "" {
		return fmt.Errorf("required_quant must be set when enforce_quant is on")
	}
	return nil
}

func isTruthy(s string) bool {
	b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(s)))
	return err == nil && b
}
