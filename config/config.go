// Package config loads ssnake settings from a YAML file, a .env file and
// SSNAKE_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/martinemde/ssnake/agentloop"
	"github.com/martinemde/ssnake/sandbox"
)

// DefaultFile is looked up in the current directory, then next to the
// executable, when no path is given.
const DefaultFile = "config.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SSNAKE_"

// Config holds everything needed to start an agent run.
type Config struct {
	Model     string `yaml:"model" env:"MODEL" validate:"required"`
	Provider  string `yaml:"provider" env:"PROVIDER" validate:"required"`
	APIKey    string `yaml:"api_key" env:"API_KEY"`
	Workspace string `yaml:"workspace" env:"WORKSPACE" validate:"required"`

	MaxIterations int           `yaml:"max_iterations" env:"MAX_ITERATIONS" validate:"min=1"`
	Pacing        time.Duration `yaml:"pacing" env:"PACING" validate:"gte=0s"`
	MaxTokens     int           `yaml:"max_tokens" env:"MAX_TOKENS" validate:"gte=0"`

	ScriptTimeout   time.Duration `yaml:"script_timeout" env:"SCRIPT_TIMEOUT" validate:"gt=0s"`
	ReadLimit       int           `yaml:"read_limit" env:"READ_LIMIT" validate:"min=1"`
	Interpreter     string        `yaml:"interpreter" env:"INTERPRETER" validate:"required"`
	ScriptExtension string        `yaml:"script_extension" env:"SCRIPT_EXT" validate:"required,startswith=."`

	LogLevel     string `yaml:"log_level" env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	SystemPrompt string `yaml:"system_prompt"`

	// Path is the file the config was read from, empty when none was found.
	Path string `yaml:"-"`
}

// Default returns a Config with every optional field set.
func Default() *Config {
	return &Config{
		MaxIterations:   50,
		Pacing:          time.Second,
		MaxTokens:       4096,
		ScriptTimeout:   30 * time.Second,
		ReadLimit:       10000,
		Interpreter:     "python3",
		ScriptExtension: ".py",
		LogLevel:        "info",
	}
}

var (
	validate   = validator.New(validator.WithRequiredStructEnabled())
	configType = reflect.TypeOf(Config{})
)

// Load reads the config at path, or DefaultFile when path is empty, then
// applies .env and SSNAKE_* overrides and validates the result. A missing
// file is only an error when path was given explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()

	file, err := locate(path)
	if err != nil {
		return nil, err
	}
	if file != "" {
		if err := cfg.readFile(file); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(ProviderKeyEnv(cfg.Provider))
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.resolveWorkspace(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func locate(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("failed to read config file: %w", err)
		}
		return path, nil
	}

	candidates := []string{DefaultFile}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), DefaultFile))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	c.Path = path
	return nil
}

// resolveWorkspace makes Workspace absolute. Relative values are taken from
// the config file's directory, or the current directory without one.
func (c *Config) resolveWorkspace() error {
	ws := c.Workspace
	if !filepath.IsAbs(ws) && c.Path != "" {
		ws = filepath.Join(filepath.Dir(c.Path), ws)
	}
	abs, err := filepath.Abs(ws)
	if err != nil {
		return fmt.Errorf("failed to resolve workspace %q: %w", c.Workspace, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("workspace %q: %w", abs, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("workspace %q is not a directory", abs)
	}
	c.Workspace = abs
	return nil
}

// Validate checks field constraints and reports the offending keys by their
// YAML names.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", yamlKey(fe.StructField()), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func yamlKey(field string) string {
	f, ok := configType.FieldByName(field)
	if !ok {
		return field
	}
	name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
	return name
}

// ProviderKeyEnv names the conventional API key variable for provider,
// e.g. OPENAI_API_KEY.
func ProviderKeyEnv(provider string) string {
	return strings.ToUpper(provider) + "_API_KEY"
}

// SandboxConfig returns the sandbox limits.
func (c *Config) SandboxConfig() sandbox.Config {
	return sandbox.Config{
		ReadLimit:       c.ReadLimit,
		Interpreter:     c.Interpreter,
		ScriptExtension: c.ScriptExtension,
		Timeout:         c.ScriptTimeout,
	}
}

// SessionConfig returns the loop limits. Output and Logger are left for the
// caller.
func (c *Config) SessionConfig() agentloop.SessionConfig {
	cfg := agentloop.DefaultSessionConfig()
	cfg.MaxIterations = c.MaxIterations
	cfg.Pacing = c.Pacing
	return cfg
}

// Profile returns the model profile.
func (c *Config) Profile() agentloop.Profile {
	return agentloop.Profile{
		Provider:     c.Provider,
		Model:        c.Model,
		SystemPrompt: c.SystemPrompt,
		MaxTokens:    c.MaxTokens,
	}
}
