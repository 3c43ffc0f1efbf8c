// Package ffmpeg implements microphone capture, camera capture and speaker
// output by running the ffmpeg and ffplay binaries.
package ffmpeg

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/vango-go/vai-wellness/pkg/core"
)

// DefaultStartTimeout bounds how long Open waits for the first frame.
const DefaultStartTimeout = 5 * time.Second

type options struct {
	ffmpeg       string
	ffplay       string
	goos         string
	input        string
	startTimeout time.Duration
	tick         time.Duration
	logger       *slog.Logger
}

// Option configures the ffmpeg devices.
type Option func(*options)

// WithBinary sets the ffmpeg executable.
func WithBinary(path string) Option {
	return func(o *options) {
		o.ffmpeg = path
	}
}

// WithPlayer sets the ffplay executable.
func WithPlayer(path string) Option {
	return func(o *options) {
		o.ffplay = path
	}
}

// WithPlatform overrides runtime.GOOS when choosing input formats.
func WithPlatform(goos string) Option {
	return func(o *options) {
		o.goos = goos
	}
}

// WithInputDevice selects a non-default capture device.
func WithInputDevice(device string) Option {
	return func(o *options) {
		o.input = device
	}
}

// WithStartTimeout bounds the wait for the first microphone frame.
func WithStartTimeout(d time.Duration) Option {
	return func(o *options) {
		o.startTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func newOptions(opts []Option) options {
	o := options{
		ffmpeg:       "ffmpeg",
		ffplay:       "ffplay",
		goos:         runtime.GOOS,
		startTimeout: DefaultStartTimeout,
		tick:         20 * time.Millisecond,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// deniedMarkers are stderr fragments ffmpeg prints when the OS refuses
// device access.
var deniedMarkers = []string{
	"permission denied",
	"not authorized",
	"operation not permitted",
	"access denied",
}

// classify maps a failed capture to PermissionDenied or DeviceNotFound.
func classify(device string, stderr string, err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return core.NewDeviceNotFoundError(device, fmt.Errorf("install ffmpeg and ensure it is in PATH: %w", err))
	}
	lower := strings.ToLower(stderr)
	for _, marker := range deniedMarkers {
		if strings.Contains(lower, marker) {
			return core.NewPermissionError(device, withStderr(err, stderr))
		}
	}
	return core.NewDeviceNotFoundError(device, withStderr(err, stderr))
}

func withStderr(err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return err
	}
	if err == nil {
		return errors.New(stderr)
	}
	return fmt.Errorf("%w: %s", err, stderr)
}
