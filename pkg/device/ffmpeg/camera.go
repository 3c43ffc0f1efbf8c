package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	"github.com/vango-go/vai-wellness/pkg/core"
	"github.com/vango-go/vai-wellness/pkg/device"
)

// Camera grabs single JPEG frames with ffmpeg.
type Camera struct {
	opts options
}

var _ device.Camera = (*Camera)(nil)

// NewCamera creates a Camera.
func NewCamera(opts ...Option) *Camera {
	return &Camera{opts: newOptions(opts)}
}

// Capture implements device.Camera.
func (c *Camera) Capture(ctx context.Context) ([]byte, error) {
	bin, err := exec.LookPath(c.opts.ffmpeg)
	if err != nil {
		return nil, classify(core.DeviceCamera, "", err)
	}
	args, err := CameraArgs(c.opts.goos, c.opts.input)
	if err != nil {
		return nil, core.NewDeviceNotFoundError(core.DeviceCamera, err)
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classify(core.DeviceCamera, stderr.String(), err)
	}

	frame := stdout.Bytes()
	if !isJPEG(frame) {
		return nil, classify(core.DeviceCamera, stderr.String(), errors.New("camera returned no JPEG frame"))
	}
	c.opts.logger.Debug("camera frame captured", "bytes", len(frame))
	return frame, nil
}

func isJPEG(b []byte) bool {
	return len(b) > 3 && b[0] == 0xFF && b[1] == 0xD8 && b[2] == 0xFF
}
