package gemini

import (
	"github.com/vango-go/vai-wellness/pkg/core/types"
)

// geminiRequest is the Gemini API request format.
// Note: Gemini API uses camelCase for JSON field names.
type geminiRequest struct {
	Contents          []geminiContent  `json:"contents"`
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	Tools             []geminiTool     `json:"tools,omitempty"`
	GenerationConfig  *geminiGenConfig `json:"generationConfig,omitempty"`
}

// geminiContent represents a content object in Gemini format.
type geminiContent struct {
	Role  string       `json:"role,omitempty"` // "user", "model"
	Parts []geminiPart `json:"parts"`
}

// geminiPart represents a single part within content.
type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inlineData,omitempty"`
	// Thought marks reasoning summaries, which are never shown.
	Thought bool `json:"thought,omitempty"`
}

// geminiBlob represents inline binary data. Data is base64 on the wire.
type geminiBlob struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// geminiTool represents a tool definition.
type geminiTool struct {
	GoogleSearch *geminiGoogleSearch `json:"googleSearch,omitempty"`
}

// geminiGoogleSearch configures Google Search grounding.
type geminiGoogleSearch struct{}

// geminiGenConfig contains generation configuration.
type geminiGenConfig struct {
	ResponseModalities []string              `json:"responseModalities,omitempty"`
	ThinkingConfig     *geminiThinkingConfig `json:"thinkingConfig,omitempty"`
	SpeechConfig       *geminiSpeechConfig   `json:"speechConfig,omitempty"`
}

// geminiThinkingConfig controls thinking/reasoning behavior.
type geminiThinkingConfig struct {
	ThinkingBudget *int `json:"thinkingBudget,omitempty"`
}

// geminiSpeechConfig selects the output voice for audio responses.
type geminiSpeechConfig struct {
	VoiceConfig geminiVoiceConfig `json:"voiceConfig"`
}

type geminiVoiceConfig struct {
	PrebuiltVoiceConfig geminiPrebuiltVoice `json:"prebuiltVoiceConfig"`
}

type geminiPrebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

// buildTextRequest converts a text turn to a Gemini request.
func buildTextRequest(req *types.TextRequest) *geminiRequest {
	out := &geminiRequest{
		Contents:          translateMessages(append(append([]types.Message(nil), req.History...), req.Content)),
		SystemInstruction: systemInstruction(req.System),
	}
	if req.SearchGrounding {
		out.Tools = []geminiTool{{GoogleSearch: &geminiGoogleSearch{}}}
	}
	if req.ThinkingBudget > 0 {
		budget := req.ThinkingBudget
		out.GenerationConfig = &geminiGenConfig{
			ThinkingConfig: &geminiThinkingConfig{ThinkingBudget: &budget},
		}
	}
	return out
}

// buildImageRequest converts an image turn to a Gemini request.
func buildImageRequest(req *types.ImageRequest) *geminiRequest {
	return &geminiRequest{
		Contents:          translateMessages(append(append([]types.Message(nil), req.History...), req.Content)),
		SystemInstruction: systemInstruction(req.System),
		GenerationConfig: &geminiGenConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
		},
	}
}

// buildSpeechRequest converts a speech synthesis call to a Gemini request.
func buildSpeechRequest(req *types.SpeechRequest) *geminiRequest {
	return &geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: req.Text}},
		}},
		GenerationConfig: &geminiGenConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig:       speechConfig(req.Voice),
		},
	}
}

func speechConfig(voice string) *geminiSpeechConfig {
	if voice == "" {
		return nil
	}
	return &geminiSpeechConfig{
		VoiceConfig: geminiVoiceConfig{
			PrebuiltVoiceConfig: geminiPrebuiltVoice{VoiceName: voice},
		},
	}
}

func systemInstruction(system string) *geminiContent {
	if system == "" {
		return nil
	}
	return &geminiContent{Parts: []geminiPart{{Text: system}}}
}

// translateMessages converts messages to Gemini contents. Error entries are
// UI-only and skipped.
func translateMessages(messages []types.Message) []geminiContent {
	contents := make([]geminiContent, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == types.RoleError {
			continue
		}
		parts := translateParts(msg.Parts)
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, geminiContent{Role: string(msg.Role), Parts: parts})
	}
	return contents
}

func translateParts(parts []types.Part) []geminiPart {
	out := make([]geminiPart, 0, len(parts))
	for _, p := range parts {
		switch {
		case p.InlineImage != nil && len(p.InlineImage.Data) > 0:
			out = append(out, geminiPart{InlineData: &geminiBlob{
				MIMEType: p.InlineImage.MIMEType,
				Data:     p.InlineImage.Data,
			}})
		case p.Text != "":
			out = append(out, geminiPart{Text: p.Text})
		}
	}
	return out
}
