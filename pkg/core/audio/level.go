package audio

import (
	"math"
)

// CalculateRMSEnergy computes the root-mean-square energy of PCM audio.
// Input is assumed to be 16-bit signed little-endian PCM.
// Returns a value between 0.0 and 1.0.
func CalculateRMSEnergy(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < len(pcm)-1; i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		normalized := float64(sample) / 32768.0
		sum += normalized * normalized
	}

	return math.Sqrt(sum / float64(samples))
}

// RMS computes the root-mean-square level of normalized samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Peak returns the maximum absolute amplitude of normalized samples.
func Peak(samples []float32) float64 {
	var maxAbs float64
	for _, s := range samples {
		if abs := math.Abs(float64(s)); abs > maxAbs {
			maxAbs = abs
		}
	}
	return maxAbs
}

// ApplyGain scales samples in place and clamps them to [-1, 1].
func ApplyGain(samples []float32, gain float64) {
	if gain == 1 {
		return
	}
	g := float32(gain)
	for i, s := range samples {
		v := s * g
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		samples[i] = v
	}
}
