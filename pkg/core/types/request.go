package types

// DefaultThinkingBudget is the reasoning budget used when thinking mode is on.
const DefaultThinkingBudget = 24576

// TextRequest is a streaming text turn.
type TextRequest struct {
	Model  string
	System string
	// History is replayed verbatim before Content.
	History []Message
	Content Message
	// ThinkingBudget enables extended reasoning when > 0.
	ThinkingBudget int
	// SearchGrounding enables the provider's web search tool.
	SearchGrounding bool
}

// ImageRequest is a single-shot image generation turn.
type ImageRequest struct {
	Model   string
	System  string
	History []Message
	Content Message
}

// ImageResponse holds every part the provider returned.
type ImageResponse struct {
	Parts []Part
	// BlockReason is set when the provider refused the prompt.
	BlockReason string
	// FinishReason is the candidate finish reason, if any.
	FinishReason string
}

// FirstImage returns the first inline image part, searching all parts.
func (r *ImageResponse) FirstImage() (InlineData, bool) {
	if r == nil {
		return InlineData{}, false
	}
	for _, p := range r.Parts {
		if p.InlineImage != nil && len(p.InlineImage.Data) > 0 {
			return *p.InlineImage, true
		}
	}
	return InlineData{}, false
}

// Text returns the concatenated text parts of the response.
func (r *ImageResponse) Text() string {
	if r == nil {
		return ""
	}
	var out string
	for _, p := range r.Parts {
		out += p.Text
	}
	return out
}

// SpeechRequest is a single-shot text-to-speech call.
type SpeechRequest struct {
	Model string
	Text  string
	Voice string
}

// SpeechResponse carries raw little-endian 16-bit mono PCM.
type SpeechResponse struct {
	Audio      []byte
	MIMEType   string
	SampleRate int
}
