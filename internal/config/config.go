package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Model    string       `yaml:"model" validate:"oneof=tiny base small medium large"`
	LogLevel string       `yaml:"log_level" validate:"oneof=debug info warn error"`
	Engine   EngineConfig `yaml:"engine"`
}

// EngineConfig selects and configures the speech-recognition backend.
type EngineConfig struct {
	Backend    string `yaml:"backend" validate:"oneof=exec whisper"` // "exec" or "whisper"
	Command    string `yaml:"command" validate:"required_if=Backend exec"`
	ModelsDir  string `yaml:"models_dir" validate:"required_if=Backend whisper"`
	FFmpegPath string `yaml:"ffmpeg_path" validate:"required_if=Backend whisper"`
	Threads    int    `yaml:"threads" validate:"gte=0"`
}

// envPrefix is prepended to every environment override.
const envPrefix = "TRANSCREVER_"

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "transcrever")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultModelsDir returns the directory whisper weights are stored in.
func DefaultModelsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "models")
	}
	return filepath.Join(home, ".local", "share", "transcrever", "models")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Model:    "small",
		LogLevel: "info",
		Engine: EngineConfig{
			Backend:    "exec",
			Command:    "whisper",
			ModelsDir:  DefaultModelsDir(),
			FFmpegPath: "ffmpeg",
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in models_dir is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Engine.ModelsDir = expandTilde(cfg.Engine.ModelsDir)

	return cfg, nil
}

// ApplyEnv loads a .env file from the working directory when present and
// overrides config fields from TRANSCREVER_* variables.
func (c *Config) ApplyEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	overrides := []struct {
		key string
		dst *string
	}{
		{"MODEL", &c.Model},
		{"LOG_LEVEL", &c.LogLevel},
		{"BACKEND", &c.Engine.Backend},
		{"COMMAND", &c.Engine.Command},
		{"MODELS_DIR", &c.Engine.ModelsDir},
		{"FFMPEG", &c.Engine.FFmpegPath},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(envPrefix + o.key); ok && v != "" {
			*o.dst = v
		}
	}

	if v, ok := os.LookupEnv(envPrefix + "THREADS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sTHREADS must be an integer, got %q", envPrefix, v)
		}
		c.Engine.Threads = n
	}

	c.Model = strings.ToLower(strings.TrimSpace(c.Model))
	c.Engine.ModelsDir = expandTilde(c.Engine.ModelsDir)
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	// Report the first violation with its yaml key, like a hand-written check would.
	fe := verrs[0]
	field := yamlKey(fe.StructNamespace())
	switch fe.Tag() {
	case "oneof":
		return fmt.Errorf("%s must be one of %s, got %q", field, strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	case "required_if":
		return fmt.Errorf("%s must not be empty", field)
	case "gte":
		return fmt.Errorf("%s must be >= %s", field, fe.Param())
	default:
		return fmt.Errorf("%s is invalid (%s)", field, fe.Tag())
	}
}

// ParseLogLevel maps a log_level string to a slog.Level. Unknown values map to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const defaultHeader = `# transcrever configuration
#
# model:      tiny | base | small | medium | large
# log_level:  debug | info | warn | error
# engine.backend:
#   exec     run the whisper command-line program (pip install openai-whisper)
#   whisper  in-process whisper.cpp (binary built with -tags whisper, ggml weights in models_dir)

`

// WriteDefault writes the default config to DefaultConfigPath. If a config
// file already exists it is left untouched and ("", nil) is returned.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// yamlKey turns a validator namespace like "Config.Engine.ModelsDir" into "engine.models_dir".
func yamlKey(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snake(p)
	}
	return strings.Join(parts, ".")
}

func snake(s string) string {
	switch s {
	case "FFmpegPath":
		return "ffmpeg_path"
	case "LogLevel":
		return "log_level"
	case "ModelsDir":
		return "models_dir"
	}
	return strings.ToLower(s)
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
