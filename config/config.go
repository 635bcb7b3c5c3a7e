// Package config loads runtime configuration for the generator, renderer and server.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config is the full runtime configuration.
type Config struct {
	LLM        LLMConfig        `mapstructure:"llm"`
	Render     RenderConfig     `mapstructure:"render"`
	Workspace  WorkspaceConfig  `mapstructure:"workspace"`
	Output     OutputConfig     `mapstructure:"output"`
	Generation GenerationConfig `mapstructure:"generation"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
}

// LLMConfig selects the model backend. APIKey wins over APIKeyEnv.
type LLMConfig struct {
	Provider          string        `mapstructure:"provider"`
	Model             string        `mapstructure:"model"`
	APIKey            string        `mapstructure:"api_key"`
	APIKeyEnv         string        `mapstructure:"api_key_env"`
	BaseURL           string        `mapstructure:"base_url"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// RenderConfig controls the manim child process.
type RenderConfig struct {
	Binary         string        `mapstructure:"binary"`
	Scene          string        `mapstructure:"scene"`
	Quality        string        `mapstructure:"quality"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxOutputBytes int           `mapstructure:"max_output_bytes"`
	ExtraArgs      []string      `mapstructure:"extra_args"`
}

type WorkspaceConfig struct {
	Root       string        `mapstructure:"root"`
	Prefix     string        `mapstructure:"prefix"`
	KeepFailed bool          `mapstructure:"keep_failed"`
	MaxAge     time.Duration `mapstructure:"max_age"`
}

// OutputConfig controls where finished requests are exported. WebhookURL, when
// set, receives a JSON summary of every finished request.
type OutputConfig struct {
	Dir        string `mapstructure:"dir"`
	WebhookURL string `mapstructure:"webhook_url"`
}

// GenerationConfig holds request defaults used when the caller does not set them.
type GenerationConfig struct {
	MaxAttempts int  `mapstructure:"max_attempts"`
	AutoFix     bool `mapstructure:"auto_fix"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	MaxConcurrent  int           `mapstructure:"max_concurrent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxResults     int           `mapstructure:"max_results"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ConfigurationError reports a missing or invalid setting. It is raised before
// any generation attempt starts.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Reason)
}

// ResolveAPIKey returns the configured credential, falling back to the
// environment variable named by APIKeyEnv.
func (c LLMConfig) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "gemini", "openai", "deepseek":
		if c.LLM.ResolveAPIKey() == "" {
			return &ConfigurationError{
				Key:    "llm.api_key",
				Reason: fmt.Sprintf("no credential for provider %s; set llm.api_key or %s", c.LLM.Provider, c.LLM.APIKeyEnv),
			}
		}
		if c.LLM.Provider == "deepseek" && c.LLM.BaseURL == "" {
			return &ConfigurationError{Key: "llm.base_url", Reason: "provider deepseek requires an OpenAI-compatible base_url"}
		}
	case "mock":
	case "":
		return &ConfigurationError{Key: "llm.provider", Reason: "provider is required"}
	default:
		return &ConfigurationError{Key: "llm.provider", Reason: fmt.Sprintf("provider %s not supported", c.LLM.Provider)}
	}
	return c.ValidateRender()
}

// ValidateRender checks only the settings needed to run the renderer, so that
// model-free commands do not require a credential.
func (c *Config) ValidateRender() error {
	if c.Render.Binary == "" {
		return &ConfigurationError{Key: "render.binary", Reason: "renderer binary is required"}
	}
	if c.Render.Timeout <= 0 {
		return &ConfigurationError{Key: "render.timeout", Reason: "must be positive"}
	}
	if c.Generation.MaxAttempts < 1 || c.Generation.MaxAttempts > 5 {
		return &ConfigurationError{Key: "generation.max_attempts", Reason: "must be between 1 and 5"}
	}
	if c.Workspace.Root == "" {
		return &ConfigurationError{Key: "workspace.root", Reason: "is required"}
	}
	if c.Workspace.Prefix == "" || strings.ContainsAny(c.Workspace.Prefix, `/\`) {
		return &ConfigurationError{Key: "workspace.prefix", Reason: "must be a non-empty directory name prefix"}
	}
	return nil
}
