package audio

import "context"

// Context is an audio output clock that plays buffers at scheduled times.
type Context interface {
	// CurrentTime returns the context clock in seconds.
	CurrentTime() float64

	// Schedule plays buf starting at time at (seconds on the context clock).
	// A start time in the past plays immediately.
	Schedule(buf *Buffer, at float64) (Source, error)
}

// Source is a handle to one scheduled buffer.
type Source interface {
	// Stop silences the source. Safe to call more than once.
	Stop()

	// Done is closed once the source has finished or was stopped.
	Done() <-chan struct{}
}

// OutputContext is a speaker-backed Context owned by one session.
type OutputContext interface {
	Context

	// SampleRate is the device rate; buffers at other rates are resampled.
	SampleRate() int

	// SetGain sets the output gain (0 mutes).
	SetGain(gain float64)

	// Close releases the device. Safe to call more than once.
	Close() error

	// Closed reports whether Close has been called.
	Closed() bool
}

// OutputFactory opens a new OutputContext at the given sample rate.
type OutputFactory func(sampleRate int) (OutputContext, error)

// CaptureConfig configures microphone capture.
type CaptureConfig struct {
	SampleRate int
	// FrameSize is the number of samples per delivered frame.
	FrameSize int
}

// Microphone acquires capture streams.
type Microphone interface {
	// Open acquires the device. Failures are *core.Error values of kind
	// PermissionDenied or DeviceNotFound.
	Open(ctx context.Context, cfg CaptureConfig) (CaptureStream, error)
}

// CaptureStream delivers fixed-size mono frames until closed.
type CaptureStream interface {
	// Frames is closed when capture ends.
	Frames() <-chan []float32

	// Close stops capture and releases the device. Safe to call more than once.
	Close() error
}
