// Package device holds the audio and camera backends behind the
// interfaces in pkg/core/audio. Mixer is the shared scheduling clock;
// the portaudio and ffmpeg subpackages drive it from real devices.
package device

import (
	"math"
	"sync"

	"github.com/vango-go/vai-wellness/pkg/core/audio"
)

// Mixer is a software audio.Context. Scheduled buffers are summed into
// the frames pulled by Fill, and the clock advances by exactly the number
// of frames pulled.
type Mixer struct {
	rate int

	mu      sync.Mutex
	played  int64
	gain    float64
	sources []*mixSource
}

var _ audio.Context = (*Mixer)(nil)

// NewMixer creates a mixer running at rate Hz.
func NewMixer(rate int) *Mixer {
	return &Mixer{rate: rate, gain: 1}
}

// SampleRate returns the output rate.
func (m *Mixer) SampleRate() int { return m.rate }

// CurrentTime returns the seconds of audio pulled so far.
func (m *Mixer) CurrentTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.played) / float64(m.rate)
}

// Schedule queues buf to start at the given clock time. Buffers at another
// rate are resampled; start times in the past play immediately.
func (m *Mixer) Schedule(buf *audio.Buffer, at float64) (audio.Source, error) {
	src := &mixSource{mixer: m, done: make(chan struct{})}
	samples := audio.Resample(buf.Mono(), buf.SampleRate, m.rate)
	if len(samples) == 0 {
		src.finish()
		return src, nil
	}
	src.samples = samples

	m.mu.Lock()
	defer m.mu.Unlock()
	src.start = int64(math.Round(at * float64(m.rate)))
	if src.start < m.played {
		src.start = m.played
	}
	m.sources = append(m.sources, src)
	return src, nil
}

// SetGain scales all output. Negative values are treated as 0.
func (m *Mixer) SetGain(gain float64) {
	if gain < 0 {
		gain = 0
	}
	m.mu.Lock()
	m.gain = gain
	m.mu.Unlock()
}

// Gain returns the output gain.
func (m *Mixer) Gain() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gain
}

// Pending reports how many sources are scheduled or playing.
func (m *Mixer) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sources)
}

// Fill writes the next len(out) mono frames and advances the clock.
func (m *Mixer) Fill(out []float32) {
	clear(out)

	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.played
	to := from + int64(len(out))
	live := m.sources[:0]
	for _, src := range m.sources {
		if src.stopped {
			continue
		}
		end := src.start + int64(len(src.samples))
		lo, hi := max(src.start, from), min(end, to)
		for t := lo; t < hi; t++ {
			out[t-from] += src.samples[t-src.start]
		}
		if end <= to {
			src.finish()
			continue
		}
		live = append(live, src)
	}
	clear(m.sources[len(live):])
	m.sources = live
	m.played = to

	g := float32(m.gain)
	for i, s := range out {
		s *= g
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		out[i] = s
	}
}

// StopAll stops every scheduled source.
func (m *Mixer) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, src := range m.sources {
		src.stopped = true
		src.finish()
	}
	m.sources = nil
}

type mixSource struct {
	mixer   *Mixer
	samples []float32
	start   int64

	// stopped is guarded by mixer.mu.
	stopped bool
	once    sync.Once
	done    chan struct{}
}

// Stop implements audio.Source.
func (s *mixSource) Stop() {
	s.mixer.mu.Lock()
	s.stopped = true
	s.mixer.mu.Unlock()
	s.finish()
}

// Done implements audio.Source.
func (s *mixSource) Done() <-chan struct{} { return s.done }

func (s *mixSource) finish() {
	s.once.Do(func() { close(s.done) })
}
