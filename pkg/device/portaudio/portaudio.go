// Package portaudio implements microphone capture and speaker output on
// the PortAudio library.
package portaudio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/hashicorp/go-multierror"

	"github.com/vango-go/vai-wellness/pkg/core"
	"github.com/vango-go/vai-wellness/pkg/core/audio"
	"github.com/vango-go/vai-wellness/pkg/device"
)

// OutputFramesPerBuffer is the callback size for speaker streams.
const OutputFramesPerBuffer = 512

// Microphone opens the default input device.
type Microphone struct {
	logger *slog.Logger
}

var _ audio.Microphone = (*Microphone)(nil)

// NewMicrophone creates a Microphone. A nil logger discards output.
func NewMicrophone(logger *slog.Logger) *Microphone {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Microphone{logger: logger}
}

// Open implements audio.Microphone.
func (m *Microphone) Open(ctx context.Context, cfg audio.CaptureConfig) (audio.CaptureStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, core.NewDeviceNotFoundError(core.DeviceMicrophone, fmt.Errorf("initialize portaudio: %w", err))
	}
	if dev, err := portaudio.DefaultInputDevice(); err != nil || dev == nil || dev.MaxInputChannels < 1 {
		_ = portaudio.Terminate()
		if err == nil {
			err = fmt.Errorf("default input device has no input channels")
		}
		return nil, core.NewDeviceNotFoundError(core.DeviceMicrophone, err)
	}

	buf := make([]float32, cfg.FrameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(cfg.SampleRate), cfg.FrameSize, buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, core.NewPermissionError(core.DeviceMicrophone, fmt.Errorf("open input stream: %w", err))
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, core.NewPermissionError(core.DeviceMicrophone, fmt.Errorf("start input stream: %w", err))
	}

	s := &captureStream{
		stream: stream,
		buf:    buf,
		frames: make(chan []float32, 16),
		done:   make(chan struct{}),
		logger: m.logger,
	}
	go s.readLoop()
	m.logger.Debug("microphone opened", "sample_rate", cfg.SampleRate, "frame_size", cfg.FrameSize)
	return s, nil
}

type captureStream struct {
	stream *portaudio.Stream
	buf    []float32
	frames chan []float32
	done   chan struct{}
	logger *slog.Logger

	closeOnce sync.Once
	closed    atomic.Bool
	closeErr  error
}

// Frames implements audio.CaptureStream.
func (s *captureStream) Frames() <-chan []float32 { return s.frames }

// Close implements audio.CaptureStream.
func (s *captureStream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		var result *multierror.Error
		if err := s.stream.Abort(); err != nil {
			result = multierror.Append(result, fmt.Errorf("abort input stream: %w", err))
		}
		<-s.done
		if err := s.stream.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close input stream: %w", err))
		}
		if err := portaudio.Terminate(); err != nil {
			result = multierror.Append(result, fmt.Errorf("terminate portaudio: %w", err))
		}
		s.closeErr = result.ErrorOrNil()
	})
	return s.closeErr
}

func (s *captureStream) readLoop() {
	defer close(s.done)
	defer close(s.frames)
	for !s.closed.Load() {
		if err := s.stream.Read(); err != nil {
			if s.closed.Load() {
				return
			}
			// Overflow only means frames were lost; keep reading.
			if err == portaudio.InputOverflowed {
				s.logger.Debug("microphone overflow")
				continue
			}
			s.logger.Warn("microphone read failed", "err", err)
			return
		}
		frame := make([]float32, len(s.buf))
		copy(frame, s.buf)
		select {
		case s.frames <- frame:
		default:
			s.logger.Debug("microphone frame dropped")
		}
	}
}

// Output is a speaker-backed audio.OutputContext. The device pulls mixed
// frames from a device.Mixer, so the mixer clock is the playback clock.
type Output struct {
	*device.Mixer
	stream *portaudio.Stream

	closeOnce sync.Once
	closed    atomic.Bool
	closeErr  error
}

var _ audio.OutputContext = (*Output)(nil)

// OpenOutput opens the default output device at rate Hz.
func OpenOutput(rate int) (*Output, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	mixer := device.NewMixer(rate)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(rate), OutputFramesPerBuffer, mixer.Fill)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("start output stream: %w", err)
	}
	return &Output{Mixer: mixer, stream: stream}, nil
}

// OutputFactory returns an audio.OutputFactory opening speaker outputs.
func OutputFactory() audio.OutputFactory {
	return func(rate int) (audio.OutputContext, error) {
		return OpenOutput(rate)
	}
}

// Close implements audio.OutputContext.
func (o *Output) Close() error {
	o.closeOnce.Do(func() {
		o.closed.Store(true)
		o.Mixer.StopAll()
		var result *multierror.Error
		if err := o.stream.Stop(); err != nil {
			result = multierror.Append(result, fmt.Errorf("stop output stream: %w", err))
		}
		if err := o.stream.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close output stream: %w", err))
		}
		if err := portaudio.Terminate(); err != nil {
			result = multierror.Append(result, fmt.Errorf("terminate portaudio: %w", err))
		}
		o.closeErr = result.ErrorOrNil()
	})
	return o.closeErr
}

// Closed implements audio.OutputContext.
func (o *Output) Closed() bool { return o.closed.Load() }
