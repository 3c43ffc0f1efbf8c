package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-go/vai-wellness/pkg/core"
	"github.com/vango-go/vai-wellness/pkg/core/audio"
)

// fakeBinary writes an executable shell script standing in for ffmpeg or
// ffplay.
func fakeBinary(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "fake")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestMicArgs(t *testing.T) {
	args, err := MicArgs("linux", "", 16000)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "pulse", "-i", "default",
		"-ac", "1", "-ar", "16000",
		"-f", "s16le", "-",
	}, args)

	args, err = MicArgs("darwin", ":1", 24000)
	require.NoError(t, err)
	assert.Contains(t, args, "avfoundation")
	assert.Contains(t, args, ":1")
	assert.Contains(t, args, "24000")

	_, err = MicArgs("windows", "", 16000)
	assert.Error(t, err)
}

func TestCameraArgs(t *testing.T) {
	args, err := CameraArgs("linux", "")
	require.NoError(t, err)
	assert.Contains(t, args, "/dev/video0")
	assert.Contains(t, args, "mjpeg")

	args, err = CameraArgs("darwin", "")
	require.NoError(t, err)
	assert.Contains(t, args, "avfoundation")

	_, err = CameraArgs("plan9", "")
	assert.Error(t, err)
}

func TestPlayerArgs(t *testing.T) {
	args := PlayerArgs(24000)
	assert.Contains(t, args, "24000")
	assert.Equal(t, "pipe:0", args[len(args)-1])
}

func TestMicrophone_DeliversFrames(t *testing.T) {
	half := `\000\100\000\100\000\100\000\100`
	bin := fakeBinary(t, "printf '"+half+half+"'\nexec sleep 5")
	mic := NewMicrophone(WithBinary(bin), WithPlatform("linux"))

	stream, err := mic.Open(context.Background(), audio.CaptureConfig{SampleRate: 16000, FrameSize: 4})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		select {
		case frame := <-stream.Frames():
			assert.InDeltaSlice(t, []float32{0.5, 0.5, 0.5, 0.5}, frame, 1e-6)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for frame")
		}
	}

	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())
	_, ok := <-stream.Frames()
	assert.False(t, ok)
}

func TestMicrophone_Failures(t *testing.T) {
	tests := []struct {
		name string
		body string
		want core.Kind
	}{
		{"permission", "echo 'Permission denied' >&2\nexit 1", core.KindPermissionDenied},
		{"macOS consent", "echo 'Failed: not authorized to capture audio' >&2\nexit 1", core.KindPermissionDenied},
		{"no device", "echo 'default: No such device' >&2\nexit 1", core.KindDeviceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mic := NewMicrophone(WithBinary(fakeBinary(t, tt.body)), WithPlatform("linux"))
			_, err := mic.Open(context.Background(), audio.CaptureConfig{SampleRate: 16000, FrameSize: 4})
			require.Error(t, err)
			assert.Equal(t, tt.want, core.KindOf(err))
		})
	}
}

func TestMicrophone_MissingBinary(t *testing.T) {
	mic := NewMicrophone(WithBinary("vai-wellness-no-such-ffmpeg"))
	_, err := mic.Open(context.Background(), audio.CaptureConfig{SampleRate: 16000, FrameSize: 4})
	require.Error(t, err)
	assert.Equal(t, core.KindDeviceNotFound, core.KindOf(err))
	assert.Contains(t, err.Error(), "install ffmpeg")
	assert.Equal(t, "No microphone was found. Connect one and try again.", core.UserMessage(err))
}

func TestMicrophone_StartTimeout(t *testing.T) {
	mic := NewMicrophone(
		WithBinary(fakeBinary(t, "exec sleep 5")),
		WithPlatform("linux"),
		WithStartTimeout(50*time.Millisecond),
	)
	start := time.Now()
	_, err := mic.Open(context.Background(), audio.CaptureConfig{SampleRate: 16000, FrameSize: 4})
	require.Error(t, err)
	assert.Equal(t, core.KindDeviceNotFound, core.KindOf(err))
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestMicrophone_ContextCanceled(t *testing.T) {
	mic := NewMicrophone(WithBinary(fakeBinary(t, "exec sleep 5")), WithPlatform("linux"))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := mic.Open(ctx, audio.CaptureConfig{SampleRate: 16000, FrameSize: 4})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCamera_Capture(t *testing.T) {
	cam := NewCamera(WithBinary(fakeBinary(t, `printf '\377\330\377\340JFIF'`)), WithPlatform("linux"))
	frame, err := cam.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xE0, 'J', 'F', 'I', 'F'}, frame)
}

func TestCamera_Failures(t *testing.T) {
	tests := []struct {
		name string
		body string
		want core.Kind
	}{
		{"denied", "echo 'Permission denied' >&2\nexit 1", core.KindPermissionDenied},
		{"missing", "echo '/dev/video0: No such file or directory' >&2\nexit 1", core.KindDeviceNotFound},
		{"not jpeg", "printf 'hello'", core.KindDeviceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := NewCamera(WithBinary(fakeBinary(t, tt.body)), WithPlatform("linux"))
			_, err := cam.Capture(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.want, core.KindOf(err))
			assert.Equal(t, core.DeviceCamera, err.(*core.Error).Device)
		})
	}
}

func TestOutput_PlaysScheduledAudio(t *testing.T) {
	sink := filepath.Join(t.TempDir(), "out.raw")
	player := fakeBinary(t, "exec cat > '"+sink+"'")

	out, err := OpenOutput(1000, WithPlayer(player))
	require.NoError(t, err)
	assert.Equal(t, 1000, out.SampleRate())

	samples := make([]float32, 50)
	for i := range samples {
		samples[i] = 0.25
	}
	src, err := out.Schedule(&audio.Buffer{SampleRate: 1000, Channels: [][]float32{samples}}, out.CurrentTime())
	require.NoError(t, err)

	select {
	case <-src.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled audio never finished")
	}
	assert.Greater(t, out.CurrentTime(), 0.04)

	require.NoError(t, out.Close())
	require.NoError(t, out.Close())
	assert.True(t, out.Closed())

	data, err := os.ReadFile(sink)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Zero(t, len(data)%audio.BytesPerSample)
}

func TestOutputFactory_MissingPlayer(t *testing.T) {
	_, err := OutputFactory(WithPlayer("vai-wellness-no-such-ffplay"))(24000)
	assert.Error(t, err)
}
