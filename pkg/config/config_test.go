package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-go/vai-wellness/pkg/store"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil, map[string]string{"GEMINI_API_KEY": "k"})
	require.NoError(t, err)

	assert.Equal(t, "k", cfg.APIKey)
	assert.Equal(t, ProviderGemini, cfg.Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.Chat.TextModel)
	assert.Equal(t, "gemini-2.5-flash-image", cfg.Chat.ImageModel)
	assert.Equal(t, "gemini-2.5-flash-native-audio-preview-09-2025", cfg.Live.Model)
	assert.Equal(t, "Zephyr", cfg.Live.Voice)
	assert.Equal(t, 24576, cfg.Chat.ThinkingBudget)
	assert.Equal(t, 25, cfg.Chat.MinChars)
	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 16000, cfg.Audio.InputSampleRate)
	assert.Equal(t, 24000, cfg.Audio.OutputSampleRate)
	assert.Equal(t, 4096, cfg.Audio.FrameSize)
	assert.Equal(t, store.DriverFile, cfg.Store.Driver)
	assert.False(t, cfg.Chat.IntentPrefilter)
}

func TestLoad_GoogleAPIKeyFallback(t *testing.T) {
	cfg, err := Load(nil, map[string]string{"GOOGLE_API_KEY": " g "})
	require.NoError(t, err)
	assert.Equal(t, "g", cfg.APIKey)

	cfg, err = Load(nil, map[string]string{"GOOGLE_API_KEY": "g", "VAI_API_KEY": "v"})
	require.NoError(t, err)
	assert.Equal(t, "v", cfg.APIKey)
}

func TestLoad_Layering(t *testing.T) {
	path := writeTOML(t, `
provider = "gemini"
theme = "light"

[chat]
text_model = "from-file"
image_model = "image-from-file"
min_chars = 40

[retry]
attempts = 5
base_delay = "250ms"

[store]
driver = "sqlite"
dsn = "/tmp/wellness.db"
`)
	environ := map[string]string{
		"VAI_CONFIG":           path,
		"VAI_API_KEY":          "key",
		"VAI_CHAT_TEXT_MODEL":  "from-env",
		"VAI_LIVE_VOICE":       "Puck",
		"VAI_CHAT_MIN_CHARS":   "10",
		"VAI_AUDIO_BACKEND":    "ffmpeg",
		"VAI_CHAT_IMAGE_MODEL": "",
	}
	cfg, err := Load([]string{"-voice", "Charon", "-theme", "dark"}, environ)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Chat.TextModel)
	assert.Equal(t, "image-from-file", cfg.Chat.ImageModel)
	assert.Equal(t, 10, cfg.Chat.MinChars)
	assert.Equal(t, 5, cfg.Retry.Attempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, "Charon", cfg.Live.Voice)
	assert.Equal(t, "dark", cfg.Theme)
	assert.Equal(t, AudioFFmpeg, cfg.Audio.Backend)
	assert.Equal(t, store.DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "/tmp/wellness.db", cfg.Store.DSN)
}

func TestLoad_UnsetFlagsDoNotMaskEnvironment(t *testing.T) {
	cfg, err := Load([]string{"-log-level", "debug"}, map[string]string{
		"VAI_API_KEY":      "k",
		"VAI_STORE_DRIVER": "memory",
	})
	require.NoError(t, err)
	assert.Equal(t, store.DriverMemory, cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_ConfigFlagOverridesEnvPath(t *testing.T) {
	fromEnv := writeTOML(t, `provider = "nope"`)
	fromFlag := writeTOML(t, "[live]\nvoice = \"Kore\"\n")
	cfg, err := Load([]string{"-config", fromFlag}, map[string]string{
		"VAI_CONFIG":  fromEnv,
		"VAI_API_KEY": "k",
	})
	require.NoError(t, err)
	assert.Equal(t, "Kore", cfg.Live.Voice)
}

func TestLoad_UnknownFileKey(t *testing.T) {
	path := writeTOML(t, "[chat]\ntext_modle = \"typo\"\n")
	_, err := Load([]string{"-config", path}, map[string]string{"VAI_API_KEY": "k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat.text_modle")
}

func TestLoad_BadFlag(t *testing.T) {
	_, err := Load([]string{"-bogus"}, map[string]string{"VAI_API_KEY": "k"})
	assert.Error(t, err)
}

func TestLoad_BadEnvValue(t *testing.T) {
	_, err := Load(nil, map[string]string{"VAI_API_KEY": "k", "VAI_RETRY_ATTEMPTS": "many"})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Default()
		c.APIKey = "k"
		return c
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing key", func(c *Config) { c.APIKey = "" }, "api key is required"},
		{"unknown provider", func(c *Config) { c.Provider = "openai" }, "unknown provider"},
		{"vertex needs project", func(c *Config) {
			c.Provider = ProviderGenAI
			c.GenAI.Backend = BackendVertex
		}, "project and location"},
		{"unknown backend", func(c *Config) {
			c.Provider = ProviderGenAI
			c.GenAI.Backend = "azure"
		}, "unknown genai backend"},
		{"attempts", func(c *Config) { c.Retry.Attempts = 0 }, "attempts"},
		{"min chars", func(c *Config) { c.Chat.MinChars = -1 }, "min_chars"},
		{"audio backend", func(c *Config) { c.Audio.Backend = "alsa" }, "audio backend"},
		{"frame size", func(c *Config) { c.Audio.FrameSize = 0 }, "frame_size"},
		{"postgres dsn", func(c *Config) { c.Store.Driver = store.DriverPostgres }, "dsn"},
		{"store driver", func(c *Config) { c.Store.Driver = "redis" }, "unknown store driver"},
		{"theme", func(c *Config) { c.Theme = "blue" }, "unknown theme"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	c := valid()
	c.Provider = ProviderGenAI
	c.APIKey = ""
	c.GenAI = GenAIConfig{Backend: BackendVertex, Project: "p", Location: "us-central1"}
	assert.NoError(t, c.Validate())
}

func TestStoreDSN(t *testing.T) {
	c := Default()
	c.Store = StoreConfig{Driver: store.DriverSQLite, DSN: "/x.db"}
	dsn, err := c.StoreDSN()
	require.NoError(t, err)
	assert.Equal(t, "/x.db", dsn)

	c.Store = StoreConfig{Driver: store.DriverMemory}
	dsn, err = c.StoreDSN()
	require.NoError(t, err)
	assert.Empty(t, dsn)

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	c.Store = StoreConfig{Driver: store.DriverSQLite}
	dsn, err = c.StoreDSN()
	require.NoError(t, err)
	assert.Equal(t, "state.db", filepath.Base(dsn))
	assert.Equal(t, "vai-wellness", filepath.Base(filepath.Dir(dsn)))
}

func TestConversions(t *testing.T) {
	c := Default()
	c.Chat.TextModel = "t"
	c.Audio.FrameSize = 2048
	c.Retry = RetryConfig{Attempts: 4, BaseDelay: 2 * time.Second}

	assert.Equal(t, "t", c.ChatSettings().TextModel)
	assert.Equal(t, 24000, c.ChatSettings().SpeechSampleRate)
	assert.Equal(t, 2048, c.LiveSettings().FrameSize)
	assert.Equal(t, "Zephyr", c.LiveSettings().Voice)
	p := c.RetryPolicy()
	assert.Equal(t, 4, p.MaxAttempts)
	assert.Equal(t, 2*time.Second, p.BaseDelay)
}

func TestEnvMap(t *testing.T) {
	m := EnvMap([]string{"A=1", "B=x=y", "broken"})
	assert.Equal(t, map[string]string{"A": "1", "B": "x=y"}, m)
}
