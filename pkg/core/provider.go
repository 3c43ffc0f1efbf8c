package core

import (
	"context"
	"sort"

	"github.com/vango-go/vai-wellness/pkg/core/types"
)

// Provider is the interface that generative model backends implement.
type Provider interface {
	// Name returns the provider identifier (e.g., "gemini", "genai").
	Name() string

	// StreamText starts a streaming text turn.
	StreamText(ctx context.Context, req *types.TextRequest) (ChunkStream, error)

	// GenerateImage runs a single-shot image generation turn.
	GenerateImage(ctx context.Context, req *types.ImageRequest) (*types.ImageResponse, error)

	// SynthesizeSpeech converts text to raw PCM audio.
	SynthesizeSpeech(ctx context.Context, req *types.SpeechRequest) (*types.SpeechResponse, error)

	// ConnectLive opens a duplex voice session.
	ConnectLive(ctx context.Context, cfg *types.LiveConfig) (LiveConn, error)
}

// ChunkStream is a finite, non-restartable iterator over response chunks.
type ChunkStream interface {
	// Next returns the next chunk. Returns nil, io.EOF when done.
	Next() (*types.Chunk, error)

	// Close releases resources.
	Close() error
}

// LiveConn is an open duplex voice session.
type LiveConn interface {
	// SendAudio forwards one captured audio frame.
	SendAudio(ctx context.Context, blob types.Blob) error

	// Receive blocks for the next inbound event. Returns io.EOF once the
	// remote side has closed and all events were delivered.
	Receive(ctx context.Context) (types.LiveEvent, error)

	// Close ends the session. Safe to call more than once.
	Close() error
}

// ProviderRegistry manages available providers.
type ProviderRegistry interface {
	// Register adds a provider to the registry.
	Register(provider Provider)

	// Get returns a provider by name.
	Get(name string) (Provider, bool)

	// List returns all registered provider names.
	List() []string
}

type defaultRegistry struct {
	providers map[string]Provider
}

// NewProviderRegistry creates a new provider registry.
func NewProviderRegistry() ProviderRegistry {
	return &defaultRegistry{
		providers: make(map[string]Provider),
	}
}

func (r *defaultRegistry) Register(provider Provider) {
	r.providers[provider.Name()] = provider
}

func (r *defaultRegistry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

func (r *defaultRegistry) List() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
