package audio

import (
	"math"
	"testing"
)

func TestEncodePCM16(t *testing.T) {
	tests := []struct {
		name    string
		samples []float32
		want    []int16
	}{
		{"silence", []float32{0, 0}, []int16{0, 0}},
		{"half", []float32{0.5, -0.5}, []int16{16384, -16384}},
		{"full scale clamps", []float32{1, -1}, []int16{32767, -32768}},
		{"overdriven clamps", []float32{1.5, -2}, []int16{32767, -32768}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pcm := EncodePCM16(tt.samples)
			if len(pcm) != len(tt.samples)*2 {
				t.Fatalf("len = %d, want %d", len(pcm), len(tt.samples)*2)
			}
			for i, want := range tt.want {
				got := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
				if got != want {
					t.Errorf("sample %d = %d, want %d", i, got, want)
				}
			}
		})
	}
}

func TestDecodePCM16_RoundTrip(t *testing.T) {
	in := []float32{0, 0.25, -0.25, 0.5, -0.999}
	buf, err := DecodePCM16(EncodePCM16(in), 16000, 1)
	if err != nil {
		t.Fatalf("DecodePCM16 error = %v", err)
	}
	out := buf.Mono()
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if math.Abs(float64(out[i]-in[i])) > 1.0/32768 {
			t.Errorf("sample %d = %f, want %f", i, out[i], in[i])
		}
	}
}

func TestDecodePCM16_Stereo(t *testing.T) {
	pcm := EncodePCM16([]float32{0.5, -0.5, 0.25, -0.25})
	buf, err := DecodePCM16(pcm, 24000, 2)
	if err != nil {
		t.Fatalf("DecodePCM16 error = %v", err)
	}
	if buf.Frames() != 2 {
		t.Fatalf("Frames() = %d, want 2", buf.Frames())
	}
	if buf.Channels[0][1] != 0.25 || buf.Channels[1][1] != -0.25 {
		t.Fatalf("channels = %v", buf.Channels)
	}
}

func TestDecodePCM16_RejectsPartialFrames(t *testing.T) {
	if _, err := DecodePCM16([]byte{1, 2, 3}, 24000, 1); err == nil {
		t.Fatal("expected error for odd byte count")
	}
	if _, err := DecodePCM16([]byte{1, 2}, 0, 1); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}

func TestBuffer_Duration(t *testing.T) {
	buf, err := DecodePCM16(make([]byte, 24000*2), 24000, 1)
	if err != nil {
		t.Fatalf("DecodePCM16 error = %v", err)
	}
	if buf.Duration() != 1.0 {
		t.Fatalf("Duration() = %f, want 1.0", buf.Duration())
	}
	var nilBuf *Buffer
	if nilBuf.Duration() != 0 || nilBuf.Frames() != 0 {
		t.Fatal("nil buffer should be empty")
	}
}

func TestPCMMIMEType(t *testing.T) {
	if got := PCMMIMEType(16000); got != "audio/pcm;rate=16000" {
		t.Fatalf("PCMMIMEType = %q", got)
	}
	tests := []struct {
		mime string
		want int
	}{
		{"audio/pcm;rate=24000", 24000},
		{"audio/pcm; rate=16000", 16000},
		{"audio/pcm", 24000},
		{"audio/pcm;rate=abc", 24000},
		{"", 24000},
	}
	for _, tt := range tests {
		if got := ParsePCMRate(tt.mime, 24000); got != tt.want {
			t.Errorf("ParsePCMRate(%q) = %d, want %d", tt.mime, got, tt.want)
		}
	}
}

func TestEncodeFrame(t *testing.T) {
	blob := EncodeFrame(make([]float32, 4096), 16000)
	if blob.MIMEType != "audio/pcm;rate=16000" || len(blob.Data) != 8192 {
		t.Fatalf("EncodeFrame = %s, %d bytes", blob.MIMEType, len(blob.Data))
	}
}

func TestResample(t *testing.T) {
	in := make([]float32, 16000)
	out := Resample(in, 16000, 24000)
	if len(out) != 24000 {
		t.Fatalf("len = %d, want 24000", len(out))
	}
	if same := Resample(in, 24000, 24000); len(same) != len(in) {
		t.Fatal("same-rate resample should be identity")
	}
}
