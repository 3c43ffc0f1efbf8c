// Package coretest provides scripted core.Provider, core.ChunkStream and
// core.LiveConn implementations for tests.
package coretest

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/vango-go/vai-wellness/pkg/core"
	"github.com/vango-go/vai-wellness/pkg/core/types"
)

// ErrNotScripted is returned by Provider methods without a function set.
var ErrNotScripted = errors.New("coretest: call not scripted")

// Stream replays Chunks, then returns Err or io.EOF. When Gate is non-nil
// the first Next blocks until Gate is closed.
type Stream struct {
	Chunks []*types.Chunk
	Err    error
	Gate   chan struct{}

	pos    int
	gated  bool
	closed atomic.Bool
}

// TextStream returns a stream of text-only chunks.
func TextStream(parts ...string) *Stream {
	s := &Stream{}
	for _, p := range parts {
		s.Chunks = append(s.Chunks, &types.Chunk{Text: p})
	}
	return s
}

// Next implements core.ChunkStream.
func (s *Stream) Next() (*types.Chunk, error) {
	if s.Gate != nil && !s.gated {
		<-s.Gate
		s.gated = true
	}
	if s.pos >= len(s.Chunks) {
		if s.Err != nil {
			return nil, s.Err
		}
		return nil, io.EOF
	}
	c := s.Chunks[s.pos]
	s.pos++
	return c, nil
}

// Close implements core.ChunkStream.
func (s *Stream) Close() error {
	s.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool { return s.closed.Load() }

// Provider is a core.Provider whose behavior is set per method.
type Provider struct {
	StreamFunc func(ctx context.Context, req *types.TextRequest) (core.ChunkStream, error)
	ImageFunc  func(ctx context.Context, req *types.ImageRequest) (*types.ImageResponse, error)
	SpeechFunc func(ctx context.Context, req *types.SpeechRequest) (*types.SpeechResponse, error)
	LiveFunc   func(ctx context.Context, cfg *types.LiveConfig) (core.LiveConn, error)

	mu     sync.Mutex
	text   []*types.TextRequest
	image  []*types.ImageRequest
	speech []*types.SpeechRequest
	live   []*types.LiveConfig
}

var _ core.Provider = (*Provider)(nil)

// Name implements core.Provider.
func (p *Provider) Name() string { return "coretest" }

// StreamText implements core.Provider.
func (p *Provider) StreamText(ctx context.Context, req *types.TextRequest) (core.ChunkStream, error) {
	p.mu.Lock()
	p.text = append(p.text, req)
	fn := p.StreamFunc
	p.mu.Unlock()
	if fn == nil {
		return nil, ErrNotScripted
	}
	return fn(ctx, req)
}

// GenerateImage implements core.Provider.
func (p *Provider) GenerateImage(ctx context.Context, req *types.ImageRequest) (*types.ImageResponse, error) {
	p.mu.Lock()
	p.image = append(p.image, req)
	fn := p.ImageFunc
	p.mu.Unlock()
	if fn == nil {
		return nil, ErrNotScripted
	}
	return fn(ctx, req)
}

// SynthesizeSpeech implements core.Provider.
func (p *Provider) SynthesizeSpeech(ctx context.Context, req *types.SpeechRequest) (*types.SpeechResponse, error) {
	p.mu.Lock()
	p.speech = append(p.speech, req)
	fn := p.SpeechFunc
	p.mu.Unlock()
	if fn == nil {
		return nil, ErrNotScripted
	}
	return fn(ctx, req)
}

// ConnectLive implements core.Provider.
func (p *Provider) ConnectLive(ctx context.Context, cfg *types.LiveConfig) (core.LiveConn, error) {
	p.mu.Lock()
	p.live = append(p.live, cfg)
	fn := p.LiveFunc
	p.mu.Unlock()
	if fn == nil {
		return nil, ErrNotScripted
	}
	return fn(ctx, cfg)
}

// TextRequests returns every StreamText request in order.
func (p *Provider) TextRequests() []*types.TextRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*types.TextRequest(nil), p.text...)
}

// ImageRequests returns every GenerateImage request in order.
func (p *Provider) ImageRequests() []*types.ImageRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*types.ImageRequest(nil), p.image...)
}

// SpeechRequests returns every SynthesizeSpeech request in order.
func (p *Provider) SpeechRequests() []*types.SpeechRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*types.SpeechRequest(nil), p.speech...)
}

// LiveConfigs returns every ConnectLive config in order.
func (p *Provider) LiveConfigs() []*types.LiveConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*types.LiveConfig(nil), p.live...)
}
