package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vango-go/vai-wellness/pkg/core/types"
)

// geminiResponse is the Gemini API response format. Streamed SSE events
// carry the same shape.
type geminiResponse struct {
	Candidates     []geminiCandidate `json:"candidates"`
	PromptFeedback *promptFeedback   `json:"promptFeedback,omitempty"`
	UsageMetadata  *geminiUsage      `json:"usageMetadata,omitempty"`
	ModelVersion   string            `json:"modelVersion,omitempty"`
}

// geminiCandidate represents a single candidate response.
type geminiCandidate struct {
	Content           geminiContent      `json:"content"`
	FinishReason      string             `json:"finishReason"`
	Index             int                `json:"index"`
	GroundingMetadata *groundingMetadata `json:"groundingMetadata,omitempty"`
}

// promptFeedback is set when the prompt itself was refused.
type promptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

// geminiUsage contains token usage information.
type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
	ThoughtsTokenCount   int `json:"thoughtsTokenCount,omitempty"`
}

// groundingMetadata contains grounding/search results.
type groundingMetadata struct {
	WebSearchQueries []string         `json:"webSearchQueries,omitempty"`
	GroundingChunks  []groundingChunk `json:"groundingChunks,omitempty"`
}

// groundingChunk represents a single grounding source. Either field may
// be set; both carry a URI and title.
type groundingChunk struct {
	Web              *groundingRef `json:"web,omitempty"`
	RetrievedContext *groundingRef `json:"retrievedContext,omitempty"`
}

type groundingRef struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// parseResponse decodes a single-shot response body.
func parseResponse(body []byte) (*geminiResponse, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &resp, nil
}

func (r *geminiResponse) blockReason() string {
	if r.PromptFeedback != nil {
		return r.PromptFeedback.BlockReason
	}
	return ""
}

func (r *geminiResponse) finishReason() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	return r.Candidates[0].FinishReason
}

// parts returns the visible parts of the first candidate.
func (r *geminiResponse) parts() []geminiPart {
	if len(r.Candidates) == 0 {
		return nil
	}
	out := make([]geminiPart, 0, len(r.Candidates[0].Content.Parts))
	for _, p := range r.Candidates[0].Content.Parts {
		if !p.Thought {
			out = append(out, p)
		}
	}
	return out
}

// text concatenates the visible text parts of the first candidate.
func (r *geminiResponse) text() string {
	var b strings.Builder
	for _, p := range r.parts() {
		b.WriteString(p.Text)
	}
	return b.String()
}

// firstInline returns the first inline blob whose MIME type has prefix.
func (r *geminiResponse) firstInline(prefix string) *geminiBlob {
	for _, p := range r.parts() {
		if p.InlineData != nil && len(p.InlineData.Data) > 0 && strings.HasPrefix(p.InlineData.MIMEType, prefix) {
			return p.InlineData
		}
	}
	return nil
}

// sources returns the grounding citations of the first candidate.
func (r *geminiResponse) sources() []types.Source {
	if len(r.Candidates) == 0 || r.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	var out []types.Source
	for _, c := range r.Candidates[0].GroundingMetadata.GroundingChunks {
		ref := c.Web
		if ref == nil || ref.URI == "" {
			ref = c.RetrievedContext
		}
		if ref == nil || ref.URI == "" {
			continue
		}
		out = append(out, types.Source{URI: ref.URI, Title: ref.Title})
	}
	return out
}

// imageResponse converts every visible part, searching all of them for
// images rather than only the first.
func (r *geminiResponse) imageResponse() *types.ImageResponse {
	out := &types.ImageResponse{
		BlockReason:  r.blockReason(),
		FinishReason: r.finishReason(),
	}
	for _, p := range r.parts() {
		switch {
		case p.InlineData != nil && len(p.InlineData.Data) > 0:
			out.Parts = append(out.Parts, types.InlinePart(p.InlineData.MIMEType, p.InlineData.Data))
		case p.Text != "":
			out.Parts = append(out.Parts, types.TextPart(p.Text))
		}
	}
	return out
}
