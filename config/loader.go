package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. ANIMGEN_RENDER_TIMEOUT=10m.
const EnvPrefix = "ANIMGEN"

var envPattern = regexp.MustCompile(`\${(\w+)(:([^}]*))?}`)

// Load reads defaults, then the optional YAML file at path, then environment
// overrides. A .env file in the working directory is loaded first if present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if path != "" {
		if err := loadConfigFile(v, path); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// loadConfigFile expands ${VAR:default} placeholders before handing the
// document to viper.
func loadConfigFile(v *viper.Viper, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := v.ReadConfig(strings.NewReader(expandEnv(string(content)))); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := envPattern.FindStringSubmatch(match)
		if val, ok := os.LookupEnv(sub[1]); ok {
			return val
		}
		if sub[2] != "" {
			return sub[3]
		}
		return match
	})
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.5-pro")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.api_key_env", "GOOGLE_API_KEY")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.requests_per_minute", 0)
	v.SetDefault("llm.timeout", "120s")

	v.SetDefault("render.binary", "manim")
	v.SetDefault("render.scene", "MainScene")
	v.SetDefault("render.quality", "l")
	v.SetDefault("render.timeout", "5m")
	v.SetDefault("render.max_output_bytes", 1<<20)
	v.SetDefault("render.extra_args", []string{})

	v.SetDefault("workspace.root", os.TempDir())
	v.SetDefault("workspace.prefix", "manim_work_")
	v.SetDefault("workspace.keep_failed", false)
	v.SetDefault("workspace.max_age", "24h")

	v.SetDefault("output.dir", "outputs")
	v.SetDefault("output.webhook_url", "")

	v.SetDefault("generation.max_attempts", 3)
	v.SetDefault("generation.auto_fix", true)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.max_concurrent", 2)
	v.SetDefault("server.request_timeout", "30m")
	v.SetDefault("server.max_results", 500)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}
