// Package config loads the client configuration.
//
// Values are layered, later sources winning:
//   - built-in defaults
//   - an optional TOML file (-config or VAI_CONFIG)
//   - VAI_* environment variables
//   - command-line flags that were set explicitly
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v9"

	"github.com/vango-go/vai-wellness/internal/logging"
	"github.com/vango-go/vai-wellness/pkg/core/chat"
	"github.com/vango-go/vai-wellness/pkg/core/live"
	"github.com/vango-go/vai-wellness/pkg/core/retry"
	"github.com/vango-go/vai-wellness/pkg/core/stream"
	"github.com/vango-go/vai-wellness/pkg/core/types"
	"github.com/vango-go/vai-wellness/pkg/store"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "VAI_"

// Provider names.
const (
	ProviderGemini = "gemini"
	ProviderGenAI  = "genai"
)

// GenAI backends.
const (
	BackendGeminiAPI = "gemini-api"
	BackendVertex    = "vertex"
)

// Audio device backends.
const (
	AudioPortAudio = "portaudio"
	AudioFFmpeg    = "ffmpeg"
)

// Config is the complete client configuration.
type Config struct {
	APIKey   string        `toml:"api_key" env:"API_KEY"`
	Provider string        `toml:"provider" env:"PROVIDER"`
	Timeout  time.Duration `toml:"timeout" env:"TIMEOUT"`

	GenAI GenAIConfig `toml:"genai" envPrefix:"GENAI_"`
	Chat  ChatConfig  `toml:"chat" envPrefix:"CHAT_"`
	Live  LiveConfig  `toml:"live" envPrefix:"LIVE_"`
	Retry RetryConfig `toml:"retry" envPrefix:"RETRY_"`
	Audio AudioConfig `toml:"audio" envPrefix:"AUDIO_"`
	Store StoreConfig `toml:"store" envPrefix:"STORE_"`
	Log   LogConfig   `toml:"log" envPrefix:"LOG_"`

	// Theme is "light", "dark" or empty to use the stored or detected theme.
	Theme string `toml:"theme" env:"THEME"`
}

// GenAIConfig selects the SDK backend.
type GenAIConfig struct {
	Backend  string `toml:"backend" env:"BACKEND"`
	Project  string `toml:"project" env:"PROJECT"`
	Location string `toml:"location" env:"LOCATION"`
}

// ChatConfig holds text, image and speech turn settings.
type ChatConfig struct {
	TextModel       string `toml:"text_model" env:"TEXT_MODEL"`
	ImageModel      string `toml:"image_model" env:"IMAGE_MODEL"`
	SpeechModel     string `toml:"speech_model" env:"SPEECH_MODEL"`
	SpeechVoice     string `toml:"speech_voice" env:"SPEECH_VOICE"`
	System          string `toml:"system" env:"SYSTEM"`
	ThinkingBudget  int    `toml:"thinking_budget" env:"THINKING_BUDGET"`
	MinChars        int    `toml:"min_chars" env:"MIN_CHARS"`
	SearchGrounding bool   `toml:"search_grounding" env:"SEARCH_GROUNDING"`
	IntentPrefilter bool   `toml:"intent_prefilter" env:"INTENT_PREFILTER"`
}

// LiveConfig holds voice session settings.
type LiveConfig struct {
	Model string `toml:"model" env:"MODEL"`
	Voice string `toml:"voice" env:"VOICE"`
}

// RetryConfig configures rate-limit retries.
type RetryConfig struct {
	Attempts  int           `toml:"attempts" env:"ATTEMPTS"`
	BaseDelay time.Duration `toml:"base_delay" env:"BASE_DELAY"`
}

// AudioConfig selects the device backend and capture parameters.
type AudioConfig struct {
	Backend          string `toml:"backend" env:"BACKEND"`
	InputSampleRate  int    `toml:"input_sample_rate" env:"INPUT_SAMPLE_RATE"`
	OutputSampleRate int    `toml:"output_sample_rate" env:"OUTPUT_SAMPLE_RATE"`
	FrameSize        int    `toml:"frame_size" env:"FRAME_SIZE"`
	// Camera is the ffmpeg input device for captures; empty uses the
	// platform default.
	Camera string `toml:"camera" env:"CAMERA"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `toml:"driver" env:"DRIVER"`
	// DSN is a path for file and sqlite, a connection string for postgres.
	DSN string `toml:"dsn" env:"DSN"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `toml:"format" env:"FORMAT"`
	Level  string `toml:"level" env:"LEVEL"`
	// File receives log output; empty means stderr.
	File string `toml:"file" env:"FILE"`
}

// Default returns the built-in configuration.
func Default() Config {
	cc := chat.DefaultConfig()
	lc := live.DefaultConfig()
	return Config{
		Provider: ProviderGemini,
		Timeout:  90 * time.Second,
		GenAI:    GenAIConfig{Backend: BackendGeminiAPI},
		Chat: ChatConfig{
			TextModel:       cc.TextModel,
			ImageModel:      cc.ImageModel,
			SpeechModel:     cc.SpeechModel,
			SpeechVoice:     cc.SpeechVoice,
			System:          cc.System,
			ThinkingBudget:  cc.ThinkingBudget,
			MinChars:        stream.DefaultMinChars,
			SearchGrounding: cc.SearchGrounding,
		},
		Live: LiveConfig{Model: lc.Model, Voice: lc.Voice},
		Retry: RetryConfig{
			Attempts:  retry.DefaultMaxAttempts,
			BaseDelay: retry.DefaultBaseDelay,
		},
		Audio: AudioConfig{
			Backend:          AudioPortAudio,
			InputSampleRate:  types.DefaultInputSampleRate,
			OutputSampleRate: types.DefaultOutputSampleRate,
			FrameSize:        live.DefaultFrameSize,
		},
		Store: StoreConfig{Driver: store.DriverFile},
		Log:   LogConfig{Format: logging.FormatText, Level: "info"},
	}
}

// Load builds the configuration from defaults, the TOML file, the given
// environment and args. environ maps variable names to values, as returned
// by EnvMap.
func Load(args []string, environ map[string]string) (Config, error) {
	if environ == nil {
		environ = EnvMap(os.Environ())
	}

	fs, fv := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Default()

	path := strings.TrimSpace(environ[EnvPrefix+"CONFIG"])
	if fv.config != "" {
		path = fv.config
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{
		Prefix:      EnvPrefix,
		Environment: environ,
	}); err != nil {
		return Config{}, fmt.Errorf("config: environment: %w", err)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = firstNonEmpty(environ["GEMINI_API_KEY"], environ["GOOGLE_API_KEY"])
	}

	fs.Visit(func(f *flag.Flag) {
		if apply, ok := fv.apply[f.Name]; ok {
			apply(&cfg)
		}
	})

	cfg.trim()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("config: %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// flagValues receives parsed flags. Only flags that were set are applied,
// so unset flags never mask file or environment values.
type flagValues struct {
	config string
	apply  map[string]func(*Config)
}

func newFlagSet() (*flag.FlagSet, *flagValues) {
	fs := flag.NewFlagSet("vai-wellness", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fv := &flagValues{apply: make(map[string]func(*Config))}

	fs.StringVar(&fv.config, "config", "", "TOML config file (or VAI_CONFIG)")

	str := func(name, usage string, set func(*Config, string)) {
		v := fs.String(name, "", usage)
		fv.apply[name] = func(c *Config) { set(c, *v) }
	}
	boolean := func(name, usage string, set func(*Config, bool)) {
		v := fs.Bool(name, false, usage)
		fv.apply[name] = func(c *Config) { set(c, *v) }
	}

	str("provider", "provider: gemini or genai", func(c *Config, v string) { c.Provider = v })
	str("backend", "genai backend: gemini-api or vertex", func(c *Config, v string) { c.GenAI.Backend = v })
	str("model", "text model", func(c *Config, v string) { c.Chat.TextModel = v })
	str("image-model", "image model", func(c *Config, v string) { c.Chat.ImageModel = v })
	str("live-model", "live voice model", func(c *Config, v string) { c.Live.Model = v })
	str("voice", "live voice", func(c *Config, v string) { c.Live.Voice = v })
	str("store", "store driver: memory, file, sqlite or postgres", func(c *Config, v string) { c.Store.Driver = v })
	str("store-dsn", "store path or connection string", func(c *Config, v string) { c.Store.DSN = v })
	str("audio", "audio backend: portaudio or ffmpeg", func(c *Config, v string) { c.Audio.Backend = v })
	str("theme", "light or dark", func(c *Config, v string) { c.Theme = v })
	str("log-format", "log format: text, json or console", func(c *Config, v string) { c.Log.Format = v })
	str("log-level", "log level", func(c *Config, v string) { c.Log.Level = v })
	str("log-file", "log file (default stderr)", func(c *Config, v string) { c.Log.File = v })
	boolean("search", "enable search grounding", func(c *Config, v bool) { c.Chat.SearchGrounding = v })
	boolean("intent-prefilter", "screen prompts for diagnosis requests", func(c *Config, v bool) { c.Chat.IntentPrefilter = v })

	timeout := fs.Duration("timeout", 0, "per-turn timeout (e.g. 90s)")
	fv.apply["timeout"] = func(c *Config) { c.Timeout = *timeout }

	return fs, fv
}

func (c *Config) trim() {
	for _, s := range []*string{
		&c.APIKey, &c.Provider, &c.GenAI.Backend, &c.GenAI.Project, &c.GenAI.Location,
		&c.Chat.TextModel, &c.Chat.ImageModel, &c.Chat.SpeechModel, &c.Chat.SpeechVoice,
		&c.Live.Model, &c.Live.Voice, &c.Audio.Backend, &c.Store.Driver, &c.Store.DSN,
		&c.Log.Format, &c.Log.Level, &c.Theme,
	} {
		*s = strings.TrimSpace(*s)
	}
	c.Provider = strings.ToLower(c.Provider)
	c.Theme = strings.ToLower(c.Theme)
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderGemini:
		if c.APIKey == "" {
			return errors.New("api key is required (set GEMINI_API_KEY or VAI_API_KEY)")
		}
	case ProviderGenAI:
		switch c.GenAI.Backend {
		case BackendGeminiAPI, "":
			if c.APIKey == "" {
				return errors.New("api key is required for the gemini-api backend (set GEMINI_API_KEY or VAI_API_KEY)")
			}
		case BackendVertex:
			if c.GenAI.Project == "" || c.GenAI.Location == "" {
				return errors.New("vertex backend requires genai project and location")
			}
		default:
			return fmt.Errorf("unknown genai backend %q", c.GenAI.Backend)
		}
	default:
		return fmt.Errorf("unknown provider %q (want gemini or genai)", c.Provider)
	}

	if c.Timeout <= 0 {
		return errors.New("timeout must be > 0")
	}
	if c.Chat.TextModel == "" || c.Chat.ImageModel == "" || c.Live.Model == "" {
		return errors.New("text, image and live models must not be empty")
	}
	if c.Chat.ThinkingBudget <= 0 {
		return errors.New("chat thinking_budget must be > 0")
	}
	if c.Chat.MinChars < 0 {
		return errors.New("chat min_chars must be >= 0")
	}
	if c.Retry.Attempts < 1 {
		return errors.New("retry attempts must be >= 1")
	}
	if c.Retry.BaseDelay <= 0 {
		return errors.New("retry base_delay must be > 0")
	}

	switch c.Audio.Backend {
	case AudioPortAudio, AudioFFmpeg:
	default:
		return fmt.Errorf("unknown audio backend %q (want portaudio or ffmpeg)", c.Audio.Backend)
	}
	if c.Audio.InputSampleRate <= 0 || c.Audio.OutputSampleRate <= 0 {
		return errors.New("audio sample rates must be > 0")
	}
	if c.Audio.FrameSize <= 0 {
		return errors.New("audio frame_size must be > 0")
	}

	switch c.Store.Driver {
	case store.DriverMemory, store.DriverFile, store.DriverSQLite:
	case store.DriverPostgres:
		if c.Store.DSN == "" {
			return errors.New("postgres store requires a dsn")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Theme {
	case "", string(store.ThemeLight), string(store.ThemeDark):
	default:
		return fmt.Errorf("unknown theme %q (want light or dark)", c.Theme)
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case logging.FormatText, logging.FormatJSON, logging.FormatConsole:
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// StoreDSN returns the configured DSN, defaulting file and sqlite stores to
// a path under the user config directory.
func (c Config) StoreDSN() (string, error) {
	if c.Store.DSN != "" || c.Store.Driver == store.DriverMemory || c.Store.Driver == store.DriverPostgres {
		return c.Store.DSN, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve store path: %w", err)
	}
	name := "state.json"
	if c.Store.Driver == store.DriverSQLite {
		name = "state.db"
	}
	return filepath.Join(dir, "vai-wellness", name), nil
}

// ChatSettings converts to the chat session configuration.
func (c Config) ChatSettings() chat.Config {
	return chat.Config{
		TextModel:        c.Chat.TextModel,
		ImageModel:       c.Chat.ImageModel,
		SpeechModel:      c.Chat.SpeechModel,
		SpeechVoice:      c.Chat.SpeechVoice,
		SpeechSampleRate: c.Audio.OutputSampleRate,
		System:           c.Chat.System,
		ThinkingBudget:   c.Chat.ThinkingBudget,
		SearchGrounding:  c.Chat.SearchGrounding,
	}
}

// LiveSettings converts to the live session configuration.
func (c Config) LiveSettings() live.Config {
	lc := live.DefaultConfig()
	lc.Model = c.Live.Model
	lc.Voice = c.Live.Voice
	lc.InputSampleRate = c.Audio.InputSampleRate
	lc.OutputSampleRate = c.Audio.OutputSampleRate
	lc.FrameSize = c.Audio.FrameSize
	return lc
}

// RetryPolicy converts to the retry policy.
func (c Config) RetryPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: c.Retry.Attempts, BaseDelay: c.Retry.BaseDelay}
}

// EnvMap converts KEY=VALUE pairs, as from os.Environ, to a map.
func EnvMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	return m
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
