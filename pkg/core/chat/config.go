package chat

import "github.com/vango-go/vai-wellness/pkg/core/types"

// Default models and voices.
const (
	DefaultTextModel   = "gemini-2.5-flash"
	DefaultImageModel  = "gemini-2.5-flash-image"
	DefaultSpeechModel = "gemini-2.5-flash-preview-tts"
	DefaultSpeechVoice = "Kore"
	// DefaultSpeechSampleRate applies when the provider omits the rate.
	DefaultSpeechSampleRate = 24000
)

// DefaultSystemInstruction is sent with every text and image turn.
const DefaultSystemInstruction = "You are Friendly MBBS AI, an ethical, green, and highly-constrained multi-modal health and wellness advisor. " +
	"Your primary goal is safety. You must refuse to answer any questions that could be interpreted as providing a medical diagnosis, treatment plan, or prescription. " +
	"Instead, you must strongly advise the user to consult a licensed medical professional. " +
	"For general wellness, fitness, and nutrition questions, you can provide helpful, non-prescriptive information. " +
	"You are also knowledgeable about medical science and can explain complex topics in simple terms or generate related images."

// Config holds the per-session request settings.
type Config struct {
	TextModel        string
	ImageModel       string
	SpeechModel      string
	SpeechVoice      string
	SpeechSampleRate int
	System           string
	// ThinkingBudget is sent when thinking mode is on.
	ThinkingBudget  int
	SearchGrounding bool
}

// DefaultConfig returns the standard settings.
func DefaultConfig() Config {
	return Config{
		TextModel:        DefaultTextModel,
		ImageModel:       DefaultImageModel,
		SpeechModel:      DefaultSpeechModel,
		SpeechVoice:      DefaultSpeechVoice,
		SpeechSampleRate: DefaultSpeechSampleRate,
		System:           DefaultSystemInstruction,
		ThinkingBudget:   types.DefaultThinkingBudget,
		SearchGrounding:  true,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TextModel == "" {
		c.TextModel = d.TextModel
	}
	if c.ImageModel == "" {
		c.ImageModel = d.ImageModel
	}
	if c.SpeechModel == "" {
		c.SpeechModel = d.SpeechModel
	}
	if c.SpeechVoice == "" {
		c.SpeechVoice = d.SpeechVoice
	}
	if c.SpeechSampleRate <= 0 {
		c.SpeechSampleRate = d.SpeechSampleRate
	}
	if c.System == "" {
		c.System = d.System
	}
	if c.ThinkingBudget <= 0 {
		c.ThinkingBudget = d.ThinkingBudget
	}
	return c
}
