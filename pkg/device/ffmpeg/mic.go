package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/vango-go/vai-wellness/pkg/core"
	"github.com/vango-go/vai-wellness/pkg/core/audio"
)

// Microphone captures through an ffmpeg child process.
type Microphone struct {
	opts options
}

var _ audio.Microphone = (*Microphone)(nil)

// NewMicrophone creates a Microphone.
func NewMicrophone(opts ...Option) *Microphone {
	return &Microphone{opts: newOptions(opts)}
}

// Open starts ffmpeg and waits for the first frame, so device and
// permission failures are reported here rather than as an early EOF.
func (m *Microphone) Open(ctx context.Context, cfg audio.CaptureConfig) (audio.CaptureStream, error) {
	bin, err := exec.LookPath(m.opts.ffmpeg)
	if err != nil {
		return nil, classify(core.DeviceMicrophone, "", err)
	}
	args, err := MicArgs(m.opts.goos, m.opts.input, cfg.SampleRate)
	if err != nil {
		return nil, core.NewDeviceNotFoundError(core.DeviceMicrophone, err)
	}

	cmd := exec.Command(bin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, classify(core.DeviceMicrophone, "", err)
	}

	s := &captureStream{
		cmd:    cmd,
		stdout: stdout,
		raw:    make([]byte, cfg.FrameSize*audio.BytesPerSample),
		rate:   cfg.SampleRate,
		frames: make(chan []float32, 16),
		done:   make(chan struct{}),
		logger: m.opts.logger,
	}

	first, err := s.firstFrame(ctx, m.opts)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classify(core.DeviceMicrophone, stderr.String(), err)
	}
	s.frames <- first
	go s.readLoop()
	m.opts.logger.Debug("ffmpeg microphone opened", "sample_rate", cfg.SampleRate, "frame_size", cfg.FrameSize)
	return s, nil
}

type captureStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	raw    []byte
	rate   int
	frames chan []float32
	done   chan struct{}
	logger *slog.Logger

	closeOnce sync.Once
}

func (s *captureStream) firstFrame(ctx context.Context, opts options) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.startTimeout)
	defer cancel()

	type result struct {
		frame []float32
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		frame, err := s.read()
		ch <- result{frame, err}
	}()
	select {
	case r := <-ch:
		return r.frame, r.err
	case <-ctx.Done():
		// The reader unblocks once the caller kills the process.
		return nil, fmt.Errorf("no audio from ffmpeg: %w", ctx.Err())
	}
}

func (s *captureStream) read() ([]float32, error) {
	if _, err := io.ReadFull(s.stdout, s.raw); err != nil {
		return nil, err
	}
	buf, err := audio.DecodePCM16(s.raw, s.rate, 1)
	if err != nil {
		return nil, err
	}
	return buf.Mono(), nil
}

func (s *captureStream) readLoop() {
	defer close(s.done)
	defer close(s.frames)
	for {
		frame, err := s.read()
		if err != nil {
			return
		}
		select {
		case s.frames <- frame:
		default:
			s.logger.Debug("microphone frame dropped")
		}
	}
}

// Frames implements audio.CaptureStream.
func (s *captureStream) Frames() <-chan []float32 { return s.frames }

// Close implements audio.CaptureStream.
func (s *captureStream) Close() error {
	s.closeOnce.Do(func() {
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		<-s.done
		_ = s.cmd.Wait()
	})
	return nil
}
