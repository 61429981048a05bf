package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test in an empty directory with no provider keys set.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, vars := range providerKeyVars {
		for _, v := range vars {
			t.Setenv(v, "")
		}
	}
	return dir
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("config", "", "")
	fs.String("db", DefaultDatabase, "")
	fs.String("backend", "", "")
	fs.String("model", "", "")
	fs.Int("port", 0, "")
	fs.String("log-level", "", "")
	fs.Bool("allow-writes", false, "")
	return fs
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultDatabase, cfg.Database)
	assert.Equal(t, DefaultLogFile, cfg.LogFile)
	assert.Equal(t, BackendHuggingFace, cfg.Generator.Backend)
	assert.Equal(t, "defog/sqlcoder-7b-2", cfg.Generator.Model)
	assert.Equal(t, 256, cfg.Generator.MaxTokens)
	assert.InDelta(t, 0.7, cfg.Generator.Temperature, 1e-9)
	assert.InDelta(t, 0.9, cfg.Generator.TopP, 1e-9)
	assert.Equal(t, 2*time.Minute, cfg.Generator.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Load.Debounce)
	assert.Equal(t, ModeNormalized, cfg.Load.Mode)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Empty(t, cfg.File)
}

func TestLoadPrecedence(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFile), []byte(`
database: data/ops.db
generator:
  backend: openai
  model: gpt-4o
  temperature: 0.1
server:
  port: 9000
`), 0o644))

	t.Setenv("HOTELQA_GENERATOR__MODEL", "gpt-4.1-mini")
	t.Setenv("HOTELQA_SERVER__PORT", "9100")

	flags := testFlags()
	require.NoError(t, flags.Parse([]string{"--port", "9200", "--allow-writes"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)

	assert.Equal(t, DefaultFile, cfg.File)
	assert.Equal(t, "data/ops.db", cfg.Database, "file beats default")
	assert.Equal(t, filepath.Join("data", DefaultLogFile), cfg.LogFile)
	assert.Equal(t, BackendOpenAI, cfg.Generator.Backend)
	assert.Equal(t, "gpt-4.1-mini", cfg.Generator.Model, "env beats file")
	assert.InDelta(t, 0.1, cfg.Generator.Temperature, 1e-9)
	assert.Equal(t, 9200, cfg.Server.Port, "flag beats env")
	assert.True(t, cfg.AllowWrites)
}

func TestLoadIgnoresUnchangedFlags(t *testing.T) {
	isolate(t)
	t.Setenv("HOTELQA_DATABASE", "env.db")

	cfg, err := Load("", testFlags())
	require.NoError(t, err)
	assert.Equal(t, "env.db", cfg.Database)
}

func TestLoadExplicitFileAndDotEnv(t *testing.T) {
	isolate(t)
	confDir := t.TempDir()
	path := filepath.Join(confDir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("generator:\n  backend: anthropic\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(confDir, ".env"), []byte("ANTHROPIC_API_KEY=sk-from-dotenv\n"), 0o644))
	// godotenv sets the variable directly; make sure it is restored afterwards.
	t.Setenv("ANTHROPIC_API_KEY", "")
	require.NoError(t, os.Unsetenv("ANTHROPIC_API_KEY"))

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, BackendAnthropic, cfg.Generator.Backend)
	assert.Equal(t, DefaultModels[BackendAnthropic], cfg.Generator.Model)
	assert.Equal(t, "sk-from-dotenv", cfg.Generator.APIKey)
	assert.Equal(t, "sk-from-dotenv", cfg.Agent.APIKey)
}

func TestLoadProviderKeyFallback(t *testing.T) {
	isolate(t)
	t.Setenv("HF_API_TOKEN", "hf_123")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "hf_123", cfg.Generator.APIKey)

	t.Setenv("HOTELQA_GENERATOR__API_KEY", "explicit")
	cfg, err = Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "explicit", cfg.Generator.APIKey)
}

func TestLoadInvalid(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
	}{
		{"Unknown backend", map[string]string{"HOTELQA_GENERATOR__BACKEND": "llama"}},
		{"Unknown mode", map[string]string{"HOTELQA_LOAD__MODE": "fancy"}},
		{"Port out of range", map[string]string{"HOTELQA_SERVER__PORT": "70000"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load("", nil)
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolate(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "generator.model", envKey("HOTELQA_GENERATOR__MODEL"))
	assert.Equal(t, "data_dir", envKey("HOTELQA_DATA_DIR"))
	assert.Equal(t, "server.allowed_origins", envKey("HOTELQA_SERVER__ALLOWED_ORIGINS"))
}

func TestLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, (&Config{LogLevel: "debug"}).Level())
	assert.Equal(t, slog.LevelWarn, (&Config{LogLevel: "WARN"}).Level())
	assert.Equal(t, slog.LevelInfo, (&Config{LogLevel: "chatty"}).Level())
}
