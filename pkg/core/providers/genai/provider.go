// Package genai implements core.Provider on the official Google GenAI SDK.
// It targets either the Gemini API or Vertex AI.
package genai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/vango-go/vai-wellness/pkg/core"
	"github.com/vango-go/vai-wellness/pkg/core/audio"
	"github.com/vango-go/vai-wellness/pkg/core/types"
)

// Backend selects the API the SDK talks to.
type Backend string

const (
	BackendGeminiAPI Backend = "gemini-api"
	BackendVertex    Backend = "vertex"
)

// Config configures the SDK client.
type Config struct {
	APIKey   string
	Backend  Backend
	Project  string
	Location string
	// BaseURL overrides the service endpoint.
	BaseURL    string
	HTTPClient *http.Client
}

// Provider implements core.Provider with a genai.Client.
type Provider struct {
	client *genai.Client
	logger *slog.Logger
}

var _ core.Provider = (*Provider)(nil)

// Option configures the Provider.
type Option func(*Provider)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = l
	}
}

// New creates the SDK client.
func New(ctx context.Context, cfg Config, opts ...Option) (*Provider, error) {
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.Backend == BackendVertex {
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
		cc.APIKey = ""
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	p := &Provider{client: client, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "genai"
}

// StreamText starts a streaming text turn. The SDK issues the request on
// the first pull, so the first response is pulled here to report request
// errors before any chunk is consumed.
func (p *Provider) StreamText(ctx context.Context, req *types.TextRequest) (core.ChunkStream, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction(req.System),
	}
	if req.SearchGrounding {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	if req.ThinkingBudget > 0 {
		config.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(int32(req.ThinkingBudget))}
	}

	ctx, cancel := context.WithCancel(ctx)
	seq := p.client.Models.GenerateContentStream(ctx, req.Model, toContents(req.History, req.Content), config)
	next, stop := iter.Pull2(seq)
	s := &chunkStream{next: next, stop: stop, cancel: cancel}

	first, err, ok := next()
	if err != nil {
		_ = s.Close()
		return nil, mapError("stream text", err)
	}
	if !ok {
		s.done = true
	}
	s.pending = first
	return s, nil
}

// GenerateImage runs a single image generation turn.
func (p *Provider) GenerateImage(ctx context.Context, req *types.ImageRequest) (*types.ImageResponse, error) {
	resp, err := p.client.Models.GenerateContent(ctx, req.Model, toContents(req.History, req.Content), &genai.GenerateContentConfig{
		SystemInstruction:  systemInstruction(req.System),
		ResponseModalities: []string{"IMAGE", "TEXT"},
	})
	if err != nil {
		return nil, mapError("generate image", err)
	}
	out := &types.ImageResponse{
		BlockReason:  blockReason(resp),
		FinishReason: finishReason(resp),
	}
	for _, part := range visibleParts(resp) {
		switch {
		case part.InlineData != nil && len(part.InlineData.Data) > 0:
			out.Parts = append(out.Parts, types.InlinePart(part.InlineData.MIMEType, part.InlineData.Data))
		case part.Text != "":
			out.Parts = append(out.Parts, types.TextPart(part.Text))
		}
	}
	return out, nil
}

// SynthesizeSpeech converts text to PCM audio with a prebuilt voice.
func (p *Provider) SynthesizeSpeech(ctx context.Context, req *types.SpeechRequest) (*types.SpeechResponse, error) {
	resp, err := p.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Text), &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig:       speechConfig(req.Voice),
	})
	if err != nil {
		return nil, mapError("synthesize speech", err)
	}
	if reason := blockReason(resp); reason != "" {
		return nil, core.NewSafetyBlockedError("synthesize speech", reason)
	}
	for _, part := range visibleParts(resp) {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 && strings.HasPrefix(part.InlineData.MIMEType, "audio/") {
			return &types.SpeechResponse{
				Audio:      part.InlineData.Data,
				MIMEType:   part.InlineData.MIMEType,
				SampleRate: audio.ParsePCMRate(part.InlineData.MIMEType, 0),
			}, nil
		}
	}
	return &types.SpeechResponse{}, nil
}

// chunkStream adapts the SDK's iterator to core.ChunkStream.
type chunkStream struct {
	next   func() (*genai.GenerateContentResponse, error, bool)
	stop   func()
	cancel context.CancelFunc
	// pending is the response pulled by StreamText.
	pending *genai.GenerateContentResponse
	done    bool
}

// Next implements core.ChunkStream.
func (s *chunkStream) Next() (*types.Chunk, error) {
	if resp := s.pending; resp != nil {
		s.pending = nil
		if chunk := toChunk(resp); !chunk.Empty() {
			return chunk, nil
		}
	}
	for !s.done {
		resp, err, ok := s.next()
		if !ok {
			s.done = true
			break
		}
		if err != nil {
			s.done = true
			return nil, mapError("stream text", err)
		}
		if chunk := toChunk(resp); !chunk.Empty() {
			return chunk, nil
		}
	}
	return nil, io.EOF
}

// Close implements core.ChunkStream.
func (s *chunkStream) Close() error {
	s.done = true
	s.stop()
	s.cancel()
	return nil
}

func toChunk(resp *genai.GenerateContentResponse) *types.Chunk {
	var b strings.Builder
	for _, part := range visibleParts(resp) {
		b.WriteString(part.Text)
	}
	return &types.Chunk{
		Text:         b.String(),
		Sources:      sources(resp),
		FinishReason: finishReason(resp),
		BlockReason:  blockReason(resp),
	}
}

func toContents(history []types.Message, content types.Message) []*genai.Content {
	messages := append(append([]types.Message(nil), history...), content)
	out := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == types.RoleError {
			continue
		}
		parts := make([]*genai.Part, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			switch {
			case part.InlineImage != nil && len(part.InlineImage.Data) > 0:
				parts = append(parts, genai.NewPartFromBytes(part.InlineImage.Data, part.InlineImage.MIMEType))
			case part.Text != "":
				parts = append(parts, genai.NewPartFromText(part.Text))
			}
		}
		if len(parts) == 0 {
			continue
		}
		out = append(out, &genai.Content{Role: string(msg.Role), Parts: parts})
	}
	return out
}

func systemInstruction(system string) *genai.Content {
	if system == "" {
		return nil
	}
	return &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(system)}}
}

func speechConfig(voice string) *genai.SpeechConfig {
	if voice == "" {
		return nil
	}
	return &genai.SpeechConfig{
		VoiceConfig: &genai.VoiceConfig{
			PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
		},
	}
}

func visibleParts(resp *genai.GenerateContentResponse) []*genai.Part {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	var out []*genai.Part
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && !part.Thought {
			out = append(out, part)
		}
	}
	return out
}

func sources(resp *genai.GenerateContentResponse) []types.Source {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	var out []types.Source
	for _, c := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		switch {
		case c == nil:
		case c.Web != nil && c.Web.URI != "":
			out = append(out, types.Source{URI: c.Web.URI, Title: c.Web.Title})
		case c.RetrievedContext != nil && c.RetrievedContext.URI != "":
			out = append(out, types.Source{URI: c.RetrievedContext.URI, Title: c.RetrievedContext.Title})
		}
	}
	return out
}

func finishReason(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	return string(resp.Candidates[0].FinishReason)
}

func blockReason(resp *genai.GenerateContentResponse) string {
	if resp == nil || resp.PromptFeedback == nil {
		return ""
	}
	return string(resp.PromptFeedback.BlockReason)
}

// mapError classifies SDK errors into core kinds.
func mapError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		kind := core.KindUnknown
		switch {
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED":
			kind = core.KindRateLimited
		case apiErr.Code == http.StatusServiceUnavailable || apiErr.Status == "UNAVAILABLE":
			kind = core.KindNetwork
		}
		return &core.Error{Kind: kind, Op: op, Message: apiErr.Message, Code: apiErr.Status, Err: err}
	}
	return core.NewNetworkError(op, err)
}
