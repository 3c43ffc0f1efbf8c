package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/vango-go/vai-wellness/pkg/core/types"
)

// Engine routes requests to registered providers.
// Model strings may carry a "provider/" prefix; unprefixed models go to the
// default provider.
type Engine struct {
	registry        ProviderRegistry
	defaultProvider string
}

// NewEngine creates an Engine whose unprefixed models route to defaultProvider.
func NewEngine(defaultProvider string) *Engine {
	return &Engine{
		registry:        NewProviderRegistry(),
		defaultProvider: defaultProvider,
	}
}

// RegisterProvider adds a provider to the engine.
func (e *Engine) RegisterProvider(provider Provider) {
	e.registry.Register(provider)
}

// GetProvider returns a provider by name.
func (e *Engine) GetProvider(name string) (Provider, bool) {
	return e.registry.Get(name)
}

// ProviderNames returns the list of registered provider names.
func (e *Engine) ProviderNames() []string {
	return e.registry.List()
}

// Name implements Provider.
func (e *Engine) Name() string {
	return "engine"
}

// StreamText routes a streaming text request.
func (e *Engine) StreamText(ctx context.Context, req *types.TextRequest) (ChunkStream, error) {
	p, model, err := e.resolve(req.Model)
	if err != nil {
		return nil, err
	}
	reqCopy := *req
	reqCopy.Model = model
	return p.StreamText(ctx, &reqCopy)
}

// GenerateImage routes an image request.
func (e *Engine) GenerateImage(ctx context.Context, req *types.ImageRequest) (*types.ImageResponse, error) {
	p, model, err := e.resolve(req.Model)
	if err != nil {
		return nil, err
	}
	reqCopy := *req
	reqCopy.Model = model
	return p.GenerateImage(ctx, &reqCopy)
}

// SynthesizeSpeech routes a speech request.
func (e *Engine) SynthesizeSpeech(ctx context.Context, req *types.SpeechRequest) (*types.SpeechResponse, error) {
	p, model, err := e.resolve(req.Model)
	if err != nil {
		return nil, err
	}
	reqCopy := *req
	reqCopy.Model = model
	return p.SynthesizeSpeech(ctx, &reqCopy)
}

// ConnectLive routes a live session request.
func (e *Engine) ConnectLive(ctx context.Context, cfg *types.LiveConfig) (LiveConn, error) {
	p, model, err := e.resolve(cfg.Model)
	if err != nil {
		return nil, err
	}
	cfgCopy := *cfg
	cfgCopy.Model = model
	return p.ConnectLive(ctx, &cfgCopy)
}

func (e *Engine) resolve(model string) (Provider, string, error) {
	providerName, modelName := e.defaultProvider, model
	if strings.Contains(model, "/") {
		var err error
		providerName, modelName, err = ParseModelString(model)
		if err != nil {
			return nil, "", err
		}
	}
	p, ok := e.registry.Get(providerName)
	if !ok {
		return nil, "", fmt.Errorf("provider %q not registered", providerName)
	}
	return p, modelName, nil
}

// ParseModelString parses a model string in the format "provider/model-name".
func ParseModelString(model string) (provider string, modelName string, err error) {
	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid model format: %q, expected 'provider/model-name'", model)
	}
	return parts[0], parts[1], nil
}
