package core

import (
	"context"
	"errors"
	"testing"

	"github.com/vango-go/vai-wellness/pkg/core/types"
)

type recordingProvider struct {
	name      string
	lastModel string
}

func (p *recordingProvider) Name() string { return p.name }

func (p *recordingProvider) StreamText(_ context.Context, req *types.TextRequest) (ChunkStream, error) {
	p.lastModel = req.Model
	return nil, nil
}

func (p *recordingProvider) GenerateImage(_ context.Context, req *types.ImageRequest) (*types.ImageResponse, error) {
	p.lastModel = req.Model
	return &types.ImageResponse{}, nil
}

func (p *recordingProvider) SynthesizeSpeech(_ context.Context, req *types.SpeechRequest) (*types.SpeechResponse, error) {
	p.lastModel = req.Model
	return &types.SpeechResponse{}, nil
}

func (p *recordingProvider) ConnectLive(_ context.Context, cfg *types.LiveConfig) (LiveConn, error) {
	p.lastModel = cfg.Model
	return nil, errors.New("not supported")
}

func TestEngine_RoutesByPrefixAndDefault(t *testing.T) {
	gemini := &recordingProvider{name: "gemini"}
	genai := &recordingProvider{name: "genai"}
	engine := NewEngine("gemini")
	engine.RegisterProvider(gemini)
	engine.RegisterProvider(genai)

	if _, err := engine.StreamText(context.Background(), &types.TextRequest{Model: "gemini-2.5-flash"}); err != nil {
		t.Fatalf("StreamText error = %v", err)
	}
	if gemini.lastModel != "gemini-2.5-flash" {
		t.Fatalf("default provider model = %q", gemini.lastModel)
	}

	req := &types.ImageRequest{Model: "genai/gemini-2.5-flash-image"}
	if _, err := engine.GenerateImage(context.Background(), req); err != nil {
		t.Fatalf("GenerateImage error = %v", err)
	}
	if genai.lastModel != "gemini-2.5-flash-image" {
		t.Fatalf("prefixed provider model = %q", genai.lastModel)
	}
	if req.Model != "genai/gemini-2.5-flash-image" {
		t.Fatalf("request mutated: %q", req.Model)
	}

	if got := engine.ProviderNames(); len(got) != 2 || got[0] != "gemini" || got[1] != "genai" {
		t.Fatalf("ProviderNames() = %v", got)
	}
}

func TestEngine_UnknownProvider(t *testing.T) {
	engine := NewEngine("gemini")
	_, err := engine.SynthesizeSpeech(context.Background(), &types.SpeechRequest{Model: "openai/tts-1"})
	if err == nil {
		t.Fatal("expected error for unregistered provider")
	}
}

func TestParseModelString(t *testing.T) {
	provider, model, err := ParseModelString("gemini/gemini-2.5-flash")
	if err != nil || provider != "gemini" || model != "gemini-2.5-flash" {
		t.Fatalf("ParseModelString() = %q, %q, %v", provider, model, err)
	}
	for _, bad := range []string{"", "gemini", "/model", "gemini/"} {
		if _, _, err := ParseModelString(bad); err == nil {
			t.Errorf("ParseModelString(%q) error = nil, want error", bad)
		}
	}
}
