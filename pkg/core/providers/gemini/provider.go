// Package gemini implements the Google Gemini API provider.
// Text turns stream over SSE, image and speech turns are single-shot REST
// calls, and live sessions use the BidiGenerateContent websocket.
package gemini

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-wellness/pkg/core"
	"github.com/vango-go/vai-wellness/pkg/core/audio"
	"github.com/vango-go/vai-wellness/pkg/core/types"
)

const (
	// DefaultBaseURL is the default Gemini API endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultLiveURL is the default live websocket endpoint.
	DefaultLiveURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
)

// Provider implements core.Provider against the Gemini REST and live APIs.
type Provider struct {
	apiKey     string
	baseURL    string
	liveURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     *slog.Logger
}

var _ core.Provider = (*Provider)(nil)

// New creates a new Gemini provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		liveURL:    DefaultLiveURL,
		httpClient: &http.Client{},
		dialer:     websocket.DefaultDialer,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "gemini"
}

// StreamText starts a streaming text turn.
func (p *Provider) StreamText(ctx context.Context, req *types.TextRequest) (core.ChunkStream, error) {
	model := stripProviderPrefix(req.Model)
	body, err := p.doStreamRequest(ctx, model, buildTextRequest(req))
	if err != nil {
		return nil, err
	}
	return newChunkStream(body), nil
}

// GenerateImage runs a single image generation turn.
func (p *Provider) GenerateImage(ctx context.Context, req *types.ImageRequest) (*types.ImageResponse, error) {
	model := stripProviderPrefix(req.Model)
	respBody, err := p.doRequest(ctx, "generate image", model, buildImageRequest(req))
	if err != nil {
		return nil, err
	}
	resp, err := parseResponse(respBody)
	if err != nil {
		return nil, err
	}
	return resp.imageResponse(), nil
}

// SynthesizeSpeech converts text to PCM audio with a prebuilt voice.
func (p *Provider) SynthesizeSpeech(ctx context.Context, req *types.SpeechRequest) (*types.SpeechResponse, error) {
	model := stripProviderPrefix(req.Model)
	respBody, err := p.doRequest(ctx, "synthesize speech", model, buildSpeechRequest(req))
	if err != nil {
		return nil, err
	}
	resp, err := parseResponse(respBody)
	if err != nil {
		return nil, err
	}
	if reason := resp.blockReason(); reason != "" {
		return nil, core.NewSafetyBlockedError("synthesize speech", reason)
	}
	blob := resp.firstInline("audio/")
	if blob == nil {
		return &types.SpeechResponse{}, nil
	}
	return &types.SpeechResponse{
		Audio:      blob.Data,
		MIMEType:   blob.MIMEType,
		SampleRate: audio.ParsePCMRate(blob.MIMEType, 0),
	}, nil
}

// stripProviderPrefix removes a "gemini/" prefix from a model name.
func stripProviderPrefix(model string) string {
	if i := strings.Index(model, "/"); i >= 0 && !strings.HasPrefix(model, "models/") {
		return model[i+1:]
	}
	return model
}
