package audiotest

import (
	"context"
	"sync"

	"github.com/vango-go/vai-wellness/pkg/core/audio"
)

// Microphone is a scripted audio.Microphone.
type Microphone struct {
	// Err, when set, is returned by Open.
	Err error

	mu      sync.Mutex
	streams []*CaptureStream
	lastCfg audio.CaptureConfig
}

var _ audio.Microphone = (*Microphone)(nil)

// Open implements audio.Microphone.
func (m *Microphone) Open(_ context.Context, cfg audio.CaptureConfig) (audio.CaptureStream, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &CaptureStream{frames: make(chan []float32, 16)}
	m.streams = append(m.streams, s)
	m.lastCfg = cfg
	return s, nil
}

// Stream returns the most recently opened stream, or nil.
func (m *Microphone) Stream() *CaptureStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.streams) == 0 {
		return nil
	}
	return m.streams[len(m.streams)-1]
}

// LastConfig returns the config passed to the latest Open.
func (m *Microphone) LastConfig() audio.CaptureConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCfg
}

// CaptureStream is a capture stream fed by Push.
type CaptureStream struct {
	mu         sync.Mutex
	frames     chan []float32
	closed     bool
	closeCalls int
}

// Push delivers a frame. It is a no-op after Close.
func (s *CaptureStream) Push(frame []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.frames <- frame
}

// Frames implements audio.CaptureStream.
func (s *CaptureStream) Frames() <-chan []float32 { return s.frames }

// Close implements audio.CaptureStream.
func (s *CaptureStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	if !s.closed {
		s.closed = true
		close(s.frames)
	}
	return nil
}

// Closed reports whether Close was called.
func (s *CaptureStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
