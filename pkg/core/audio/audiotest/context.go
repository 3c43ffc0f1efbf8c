// Package audiotest provides a manually clocked audio Context for tests.
package audiotest

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/vango-go/vai-wellness/pkg/core/audio"
)

// Window is one scheduled playback interval.
type Window struct {
	Start    float64
	Duration float64
	Source   *Source
}

// End returns Start + Duration.
func (w Window) End() float64 { return w.Start + w.Duration }

// Source is a scheduled buffer on a Context.
type Source struct {
	once    sync.Once
	done    chan struct{}
	stopped atomic.Bool
}

func newSource() *Source {
	return &Source{done: make(chan struct{})}
}

// Stop implements audio.Source.
func (s *Source) Stop() {
	s.stopped.Store(true)
	s.finish()
}

// Stopped reports whether Stop was called.
func (s *Source) Stopped() bool { return s.stopped.Load() }

// Done implements audio.Source.
func (s *Source) Done() <-chan struct{} { return s.done }

func (s *Source) finish() {
	s.once.Do(func() { close(s.done) })
}

// Context is an audio.OutputContext whose clock only moves on Advance.
type Context struct {
	mu         sync.Mutex
	now        float64
	rate       int
	gain       float64
	closed     bool
	closeCalls int
	windows    []Window
	failNext   error
}

var _ audio.OutputContext = (*Context)(nil)

// NewContext returns a context at the given sample rate with its clock at zero.
func NewContext(sampleRate int) *Context {
	return &Context{rate: sampleRate, gain: 1}
}

// Factory returns an audio.OutputFactory that always yields c.
func (c *Context) Factory() audio.OutputFactory {
	return func(int) (audio.OutputContext, error) { return c, nil }
}

// CurrentTime implements audio.Context.
func (c *Context) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Schedule implements audio.Context.
func (c *Context) Schedule(buf *audio.Buffer, at float64) (audio.Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("audiotest: context closed")
	}
	if err := c.failNext; err != nil {
		c.failNext = nil
		return nil, err
	}
	src := newSource()
	c.windows = append(c.windows, Window{Start: at, Duration: buf.Duration(), Source: src})
	return src, nil
}

// FailNext makes the next Schedule call return err.
func (c *Context) FailNext(err error) {
	c.mu.Lock()
	c.failNext = err
	c.mu.Unlock()
}

// Advance moves the clock forward and finishes sources that have ended.
func (c *Context) Advance(seconds float64) {
	c.mu.Lock()
	c.now += seconds
	var finished []*Source
	for _, w := range c.windows {
		if w.End() <= c.now {
			finished = append(finished, w.Source)
		}
	}
	c.mu.Unlock()
	for _, src := range finished {
		src.finish()
	}
}

// Windows returns every window scheduled so far.
func (c *Context) Windows() []Window {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Window(nil), c.windows...)
}

// SampleRate implements audio.OutputContext.
func (c *Context) SampleRate() int { return c.rate }

// SetGain implements audio.OutputContext.
func (c *Context) SetGain(gain float64) {
	c.mu.Lock()
	c.gain = gain
	c.mu.Unlock()
}

// Gain returns the last gain set.
func (c *Context) Gain() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gain
}

// Close implements audio.OutputContext.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	if c.closed {
		return errors.New("audiotest: context already closed")
	}
	c.closed = true
	return nil
}

// Closed implements audio.OutputContext.
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// CloseCalls returns how many times Close was called.
func (c *Context) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}
