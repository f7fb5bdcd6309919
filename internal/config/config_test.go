package config

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-canvas-download/internal/api"
	"go-canvas-download/internal/models"
)

func missingConfig(t *testing.T) *string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "absent.toml")
	return &p
}

func writeConfig(t *testing.T, body string) *string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return &p
}

// TestConfigInitialization tests basic configuration initialization
func TestConfigInitialization(t *testing.T) {
	cfg, transport, err := Initialize(CliFlags{ConfigFilePath: missingConfig(t)})
	require.NoError(t, err)

	assert.Equal(t, DefaultSavePath, cfg.SavePath)
	assert.Equal(t, DefaultPathPattern, cfg.PathPattern)
	assert.Equal(t, 3, cfg.Download.Concurrency)
	assert.Equal(t, DefaultAPIClientTimeoutSec, cfg.APIClientTimeoutSec)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.False(t, cfg.Download.ConfirmedOnly)
	assert.Equal(t, http.DefaultTransport, transport)
}

func TestConfigFile(t *testing.T) {
	path := writeConfig(t, `
SavePath = "slides"
PathPattern = "{courseName}"
LogLevel = "debug"
ApiToken = "tok"

[Download]
Concurrency = 2
ConfirmedOnly = true
`)

	cfg, _, err := Initialize(CliFlags{ConfigFilePath: path})
	require.NoError(t, err)

	assert.Equal(t, "slides", cfg.SavePath)
	assert.Equal(t, "{courseName}", cfg.PathPattern)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "tok", cfg.APIToken)
	assert.Equal(t, 2, cfg.Download.Concurrency)
	assert.True(t, cfg.Download.ConfirmedOnly)
	// Keys absent from the file keep their defaults
	assert.Equal(t, DefaultLogFormat, cfg.LogFormat)
}

// TestFlagOverrides tests that CLI flags override file and default values
func TestFlagOverrides(t *testing.T) {
	path := writeConfig(t, "SavePath = \"from-file\"\n[Download]\nConcurrency = 2\n")

	savePath := "from-flag"
	concurrency := 1
	yes := true
	cookie := "abc=1"
	flags := CliFlags{
		ConfigFilePath: path,
		SavePath:       &savePath,
		SessionCookie:  &cookie,
		Download: &CliDownloadFlags{
			Concurrency:      &concurrency,
			SkipConfirmation: &yes,
		},
	}

	cfg, _, err := Initialize(flags)
	require.NoError(t, err)

	assert.Equal(t, "from-flag", cfg.SavePath)
	assert.Equal(t, 1, cfg.Download.Concurrency)
	assert.True(t, cfg.Download.SkipConfirmation)
	assert.Equal(t, "abc=1", cfg.SessionCookie)
}

func TestUnsetFlagSentinels(t *testing.T) {
	zero := 0
	timeout := -1
	empty := ""
	flags := CliFlags{
		ConfigFilePath:      missingConfig(t),
		APIClientTimeoutSec: &timeout,
		APIToken:            &empty,
		Download:            &CliDownloadFlags{Concurrency: &zero},
	}

	cfg, _, err := Initialize(flags)
	require.NoError(t, err)
	assert.Equal(t, DefaultAPIClientTimeoutSec, cfg.APIClientTimeoutSec)
	assert.Equal(t, DefaultConfigDownloadConcurrency, cfg.Download.Concurrency)
	assert.Empty(t, cfg.APIToken)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("CANVAS_APITOKEN", "env-token")
	t.Setenv("CANVAS_DOWNLOAD_CONCURRENCY", "2")

	cfg, _, err := Initialize(CliFlags{ConfigFilePath: missingConfig(t)})
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.APIToken)
	assert.Equal(t, 2, cfg.Download.Concurrency)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.Config)
	}{
		{"concurrency too high", func(c *models.Config) { c.Download.Concurrency = 64 }},
		{"concurrency above three", func(c *models.Config) { c.Download.Concurrency = 4 }},
		{"concurrency zero", func(c *models.Config) { c.Download.Concurrency = 0 }},
		{"empty save path", func(c *models.Config) { c.SavePath = "" }},
		{"bad log level", func(c *models.Config) { c.LogLevel = "loud" }},
		{"bad log format", func(c *models.Config) { c.LogFormat = "xml" }},
		{"negative timeout", func(c *models.Config) { c.APIClientTimeoutSec = -5 }},
		{"unknown path tag", func(c *models.Config) { c.PathPattern = "{modelName}" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}

	assert.NoError(t, Validate(Defaults()))
}

func TestInitializeRejectsInvalidFile(t *testing.T) {
	path := writeConfig(t, "[Download]\nConcurrency = 99\n")
	_, _, err := Initialize(CliFlags{ConfigFilePath: path})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// TestHTTPTransportCreation tests that the logging transport is installed on request
func TestHTTPTransportCreation(t *testing.T) {
	dir := t.TempDir()
	logAPI := true
	flags := CliFlags{
		ConfigFilePath: missingConfig(t),
		SavePath:       &dir,
		LogApiRequests: &logAPI,
	}

	_, transport, err := Initialize(flags)
	require.NoError(t, err)
	defer api.CloseAllLoggingTransports()

	_, ok := transport.(*api.LoggingTransport)
	assert.True(t, ok, "expected logging transport, got %T", transport)
	assert.FileExists(t, filepath.Join(dir, "api.log"))
}

func TestWriteSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Defaults()
	cfg.APIToken = "secret"

	require.NoError(t, WriteSample(path, cfg))

	var decoded models.Config
	_, err := toml.DecodeFile(path, &decoded)
	require.NoError(t, err)
	assert.Equal(t, DefaultSavePath, decoded.SavePath)
	assert.Equal(t, DefaultConfigDownloadConcurrency, decoded.Download.Concurrency)
	assert.Empty(t, decoded.APIToken, "credentials must not be written")

	// The sample loads back through Initialize
	loaded, _, err := Initialize(CliFlags{ConfigFilePath: &path})
	require.NoError(t, err)
	assert.Equal(t, cfg.PathPattern, loaded.PathPattern)

	assert.Error(t, WriteSample(path, cfg), "existing file must not be overwritten")
}

func TestEnvFile(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), "canvas.env")
	require.NoError(t, os.WriteFile(envPath, []byte("CANVAS_SESSIONCOOKIE=from-dotenv\nCANVAS_APITOKEN=dotenv-token\n"), 0o600))
	t.Setenv("CANVAS_APITOKEN", "real-env")
	// Registered with t.Setenv so the value loaded from the file is cleared afterwards
	t.Setenv("CANVAS_SESSIONCOOKIE", "")
	os.Unsetenv("CANVAS_SESSIONCOOKIE")

	cfg, _, err := Initialize(CliFlags{ConfigFilePath: missingConfig(t), EnvFilePath: &envPath})
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.SessionCookie)
	assert.Equal(t, "real-env", cfg.APIToken, "existing environment wins over the env file")
}

func TestEnvFile_Missing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.env")
	_, _, err := Initialize(CliFlags{ConfigFilePath: missingConfig(t), EnvFilePath: &missing})
	assert.NoError(t, err)
}
