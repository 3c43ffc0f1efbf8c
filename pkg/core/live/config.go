package live

import (
	"time"

	"github.com/vango-go/vai-wellness/pkg/core/types"
)

// SessionState represents the current state of the live session.
type SessionState int

const (
	// StateIdle is the initial state and the state after teardown.
	StateIdle SessionState = iota
	// StateConnecting is while the microphone, speaker and remote session are acquired.
	StateConnecting
	// StateOpen is while audio flows in both directions.
	StateOpen
	// StateClosed is while the session is being torn down.
	StateClosed
)

// String returns a human-readable state name.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// DefaultModel is the native-audio live model.
const DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"

// Defaults for Config.
const (
	DefaultFrameSize     = 4096
	DefaultSendQueue     = 8
	DefaultLevelInterval = 50 * time.Millisecond
	// MaxInputGain bounds SetInputGain.
	MaxInputGain = 2.0
)

// Config holds all configuration for a live session.
type Config struct {
	// Model is the live model.
	Model string `json:"model"`

	// Voice is the prebuilt output voice.
	Voice string `json:"voice"`

	// System is an optional system instruction.
	System string `json:"system,omitempty"`

	// InputSampleRate is the microphone rate in Hz. Default: 16000.
	InputSampleRate int `json:"input_sample_rate"`

	// OutputSampleRate is the rate of returned audio in Hz. Default: 24000.
	OutputSampleRate int `json:"output_sample_rate"`

	// FrameSize is the number of samples per captured frame. Default: 4096.
	FrameSize int `json:"frame_size"`

	// SendQueue is how many encoded frames may wait for the network
	// before new frames are dropped. Default: 8.
	SendQueue int `json:"send_queue"`

	// LevelInterval is the input level meter period. Default: 50ms.
	LevelInterval time.Duration `json:"level_interval"`
}

// DefaultConfig returns the standard live configuration.
func DefaultConfig() Config {
	return Config{
		Model:            DefaultModel,
		Voice:            types.DefaultLiveVoice,
		InputSampleRate:  types.DefaultInputSampleRate,
		OutputSampleRate: types.DefaultOutputSampleRate,
		FrameSize:        DefaultFrameSize,
		SendQueue:        DefaultSendQueue,
		LevelInterval:    DefaultLevelInterval,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.Voice == "" {
		c.Voice = d.Voice
	}
	if c.InputSampleRate <= 0 {
		c.InputSampleRate = d.InputSampleRate
	}
	if c.OutputSampleRate <= 0 {
		c.OutputSampleRate = d.OutputSampleRate
	}
	if c.FrameSize <= 0 {
		c.FrameSize = d.FrameSize
	}
	if c.SendQueue <= 0 {
		c.SendQueue = d.SendQueue
	}
	if c.LevelInterval <= 0 {
		c.LevelInterval = d.LevelInterval
	}
	return c
}

// liveConfig builds the provider connection config. Transcription is
// always enabled in both directions.
func (c Config) liveConfig() *types.LiveConfig {
	return &types.LiveConfig{
		Model:               c.Model,
		System:              c.System,
		Voice:               c.Voice,
		InputSampleRate:     c.InputSampleRate,
		OutputSampleRate:    c.OutputSampleRate,
		InputTranscription:  true,
		OutputTranscription: true,
	}
}
