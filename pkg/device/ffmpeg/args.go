package ffmpeg

import (
	"fmt"
	"strconv"
)

// MicArgs builds the ffmpeg arguments for mono s16le capture on goos.
// An empty device selects the platform default input.
func MicArgs(goos, device string, rate int) ([]string, error) {
	var input []string
	switch goos {
	case "darwin":
		if device == "" {
			device = ":0"
		}
		input = []string{"-f", "avfoundation", "-i", device}
	case "linux":
		if device == "" {
			device = "default"
		}
		input = []string{"-f", "pulse", "-i", device}
	default:
		return nil, fmt.Errorf("mic capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, input...)
	return append(args,
		"-ac", "1", "-ar", strconv.Itoa(rate),
		"-f", "s16le", "-",
	), nil
}

// CameraArgs builds the ffmpeg arguments that write one JPEG frame to
// stdout.
func CameraArgs(goos, device string) ([]string, error) {
	var input []string
	switch goos {
	case "darwin":
		if device == "" {
			device = "0"
		}
		input = []string{"-f", "avfoundation", "-framerate", "30", "-i", device}
	case "linux":
		if device == "" {
			device = "/dev/video0"
		}
		input = []string{"-f", "v4l2", "-i", device}
	default:
		return nil, fmt.Errorf("camera capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, input...)
	return append(args,
		"-frames:v", "1",
		"-f", "image2pipe", "-vcodec", "mjpeg", "-",
	), nil
}

// PlayerArgs builds the ffplay arguments for mono s16le playback from
// stdin.
func PlayerArgs(rate int) []string {
	return []string{
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(rate),
		"-ac", "1",
		"-i", "pipe:0",
	}
}
