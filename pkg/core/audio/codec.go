package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"mime"
	"strconv"
	"strings"

	"github.com/vango-go/vai-wellness/pkg/core/types"
)

// BytesPerSample is the width of one 16-bit PCM sample.
const BytesPerSample = 2

// Buffer is decoded audio: one float slice per channel, values in [-1, 1].
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// Frames returns the number of sample frames per channel.
func (b *Buffer) Frames() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Mono returns the first channel, or nil.
func (b *Buffer) Mono() []float32 {
	if b == nil || len(b.Channels) == 0 {
		return nil
	}
	return b.Channels[0]
}

// EncodePCM16 converts normalized float samples to little-endian 16-bit PCM.
// Samples are scaled by 32768 and clamped to the int16 range.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		v := math.Round(float64(s) * 32768)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(int16(v)))
	}
	return out
}

// DecodePCM16 converts interleaved little-endian 16-bit PCM into a Buffer,
// dividing each sample by 32768.
func DecodePCM16(pcm []byte, sampleRate, channels int) (*Buffer, error) {
	if channels <= 0 {
		channels = 1
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("decode pcm16: invalid sample rate %d", sampleRate)
	}
	if len(pcm)%(BytesPerSample*channels) != 0 {
		return nil, fmt.Errorf("decode pcm16: %d bytes is not a whole number of %d-channel frames", len(pcm), channels)
	}
	frames := len(pcm) / (BytesPerSample * channels)
	buf := &Buffer{SampleRate: sampleRate, Channels: make([][]float32, channels)}
	for c := range buf.Channels {
		buf.Channels[c] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * BytesPerSample
			sample := int16(binary.LittleEndian.Uint16(pcm[off:]))
			buf.Channels[c][i] = float32(sample) / 32768.0
		}
	}
	return buf, nil
}

// PCMMIMEType returns the MIME type tag for raw PCM at rate, e.g. "audio/pcm;rate=16000".
func PCMMIMEType(rate int) string {
	return "audio/pcm;rate=" + strconv.Itoa(rate)
}

// ParsePCMRate extracts the rate parameter of a PCM MIME type.
// It returns fallback when the type carries no usable rate.
func ParsePCMRate(mimeType string, fallback int) int {
	_, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return fallback
	}
	rate, err := strconv.Atoi(strings.TrimSpace(params["rate"]))
	if err != nil || rate <= 0 {
		return fallback
	}
	return rate
}

// EncodeFrame packs one captured frame for a live session.
func EncodeFrame(samples []float32, sampleRate int) types.Blob {
	return types.Blob{
		MIMEType: PCMMIMEType(sampleRate),
		Data:     EncodePCM16(samples),
	}
}

// DecodeBlob decodes an inbound PCM blob, taking the rate from its MIME type.
func DecodeBlob(blob types.Blob, fallbackRate int) (*Buffer, error) {
	return DecodePCM16(blob.Data, ParsePCMRate(blob.MIMEType, fallbackRate), 1)
}

// Resample converts mono samples between rates with linear interpolation.
func Resample(samples []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 || len(samples) == 0 {
		return samples
	}
	n := int(math.Round(float64(len(samples)) * float64(to) / float64(from)))
	out := make([]float32, n)
	step := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = samples[j]*(1-frac) + samples[j+1]*frac
	}
	return out
}
