package ffmpeg

import (
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-go/vai-wellness/pkg/core/audio"
	"github.com/vango-go/vai-wellness/pkg/device"
)

// Output plays a device.Mixer through ffplay. A pump writes mixed PCM at
// wall-clock pace, so the mixer clock tracks real time.
type Output struct {
	*device.Mixer

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	tick   time.Duration
	logger *slog.Logger

	quit chan struct{}
	done chan struct{}

	closeOnce sync.Once
	closed    atomic.Bool
}

var _ audio.OutputContext = (*Output)(nil)

// OpenOutput starts ffplay at rate Hz.
func OpenOutput(rate int, opts ...Option) (*Output, error) {
	o := newOptions(opts)
	bin, err := exec.LookPath(o.ffplay)
	if err != nil {
		return nil, fmt.Errorf("ffplay is required for playback (install ffmpeg/ffplay and ensure it is in PATH): %w", err)
	}
	cmd := exec.Command(bin, PlayerArgs(rate)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffplay stdin: %w", err)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffplay: %w", err)
	}

	out := &Output{
		Mixer:  device.NewMixer(rate),
		cmd:    cmd,
		stdin:  stdin,
		tick:   o.tick,
		logger: o.logger,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go out.pump()
	return out, nil
}

// OutputFactory returns an audio.OutputFactory opening ffplay outputs.
func OutputFactory(opts ...Option) audio.OutputFactory {
	return func(rate int) (audio.OutputContext, error) {
		return OpenOutput(rate, opts...)
	}
}

func (o *Output) pump() {
	defer close(o.done)
	ticker := time.NewTicker(o.tick)
	defer ticker.Stop()

	rate := float64(o.SampleRate())
	start := time.Now()
	var written int64
	for {
		select {
		case <-o.quit:
			return
		case <-ticker.C:
		}
		due := int64(time.Since(start).Seconds()*rate) - written
		if due <= 0 {
			continue
		}
		buf := make([]float32, due)
		o.Fill(buf)
		written += due
		if _, err := o.stdin.Write(audio.EncodePCM16(buf)); err != nil {
			if !o.closed.Load() {
				o.logger.Warn("ffplay write failed", "err", err)
			}
			return
		}
	}
}

// Close implements audio.OutputContext.
func (o *Output) Close() error {
	o.closeOnce.Do(func() {
		o.closed.Store(true)
		close(o.quit)
		o.StopAll()
		_ = o.stdin.Close()
		<-o.done
		if o.cmd.Process != nil {
			_ = o.cmd.Process.Kill()
		}
		_ = o.cmd.Wait()
	})
	return nil
}

// Closed implements audio.OutputContext.
func (o *Output) Closed() bool { return o.closed.Load() }
