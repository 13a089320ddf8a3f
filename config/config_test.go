package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "ws"), 0755))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return dir, path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir, path := writeConfig(t, `
provider: openai
model: gpt-4o-mini
api_key: sk-file
workspace: ws
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, "sk-file", cfg.APIKey)
	assert.Equal(t, filepath.Join(dir, "ws"), cfg.Workspace)
	assert.True(t, filepath.IsAbs(cfg.Workspace))
	assert.Equal(t, path, cfg.Path)

	assert.Equal(t, 50, cfg.MaxIterations)
	assert.Equal(t, time.Second, cfg.Pacing)
	assert.Equal(t, 30*time.Second, cfg.ScriptTimeout)
	assert.Equal(t, 10000, cfg.ReadLimit)
	assert.Equal(t, "python3", cfg.Interpreter)
	assert.Equal(t, ".py", cfg.ScriptExtension)
	assert.Equal(t, 4096, cfg.MaxTokens)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadParsesDurations(t *testing.T) {
	_, path := writeConfig(t, `
provider: anthropic
model: claude
api_key: k
workspace: ws
pacing: 250ms
script_timeout: 2m
max_iterations: 10
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Pacing)
	assert.Equal(t, 2*time.Minute, cfg.ScriptTimeout)
	assert.Equal(t, 10, cfg.MaxIterations)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	dir, path := writeConfig(t, `
provider: openai
model: gpt-4o-mini
api_key: sk-file
workspace: ws
max_iterations: 10
`)
	other := filepath.Join(dir, "other")
	require.NoError(t, os.Mkdir(other, 0755))

	t.Setenv("SSNAKE_MODEL", "gpt-4o")
	t.Setenv("SSNAKE_MAX_ITERATIONS", "3")
	t.Setenv("SSNAKE_PACING", "0s")
	t.Setenv("SSNAKE_SCRIPT_EXT", ".sh")
	t.Setenv("SSNAKE_INTERPRETER", "sh")
	t.Setenv("SSNAKE_WORKSPACE", other)
	t.Setenv("SSNAKE_LOG_LEVEL", "DEBUG")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, 3, cfg.MaxIterations)
	assert.Equal(t, time.Duration(0), cfg.Pacing)
	assert.Equal(t, ".sh", cfg.ScriptExtension)
	assert.Equal(t, "sh", cfg.Interpreter)
	assert.Equal(t, other, cfg.Workspace)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadAPIKeyFallsBackToProviderVariable(t *testing.T) {
	_, path := writeConfig(t, `
provider: groq
model: llama
workspace: ws
`)
	t.Setenv("GROQ_API_KEY", "gsk-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gsk-env", cfg.APIKey)
}

func TestLoadRequiresFields(t *testing.T) {
	_, path := writeConfig(t, `
provider: openai
max_iterations: 0
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `model: failed "required"`)
	assert.Contains(t, err.Error(), `workspace: failed "required"`)
	assert.Contains(t, err.Error(), `max_iterations: failed "min"`)
}

func TestLoadRejectsBadValues(t *testing.T) {
	_, path := writeConfig(t, `
provider: openai
model: m
workspace: ws
script_extension: py
log_level: loud
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "script_extension")
	assert.Contains(t, err.Error(), "log_level")
}

func TestLoadWorkspaceMustBeDirectory(t *testing.T) {
	dir, path := writeConfig(t, `
provider: openai
model: m
workspace: file.txt
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file.txt"), nil, 0644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "is not a directory")

	_, path = writeConfig(t, `
provider: openai
model: m
workspace: missing
`)
	_, err = Load(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadExplicitPathMustExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestLoadMalformedYAML(t *testing.T) {
	_, path := writeConfig(t, "model: [unterminated\n")

	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestDerivedConfigs(t *testing.T) {
	cfg := Default()
	cfg.Provider = "openai"
	cfg.Model = "gpt-4o-mini"
	cfg.MaxIterations = 12
	cfg.Pacing = 0
	cfg.SystemPrompt = "Be brief."

	sb := cfg.SandboxConfig()
	assert.Equal(t, 10000, sb.ReadLimit)
	assert.Equal(t, "python3", sb.Interpreter)
	assert.Equal(t, ".py", sb.ScriptExtension)
	assert.Equal(t, 30*time.Second, sb.Timeout)

	sc := cfg.SessionConfig()
	assert.Equal(t, 12, sc.MaxIterations)
	assert.Equal(t, time.Duration(0), sc.Pacing)
	assert.True(t, sc.EnableLoopDetection)

	p := cfg.Profile()
	assert.Equal(t, "openai", p.Provider)
	assert.Equal(t, "gpt-4o-mini", p.Model)
	assert.Equal(t, "Be brief.", p.SystemPrompt)
	assert.Equal(t, 4096, p.MaxTokens)
}

func TestProviderKeyEnv(t *testing.T) {
	assert.Equal(t, "OPENAI_API_KEY", ProviderKeyEnv("openai"))
	assert.Equal(t, "ANTHROPIC_API_KEY", ProviderKeyEnv("Anthropic"))
}
