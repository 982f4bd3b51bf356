package audio

import (
	"fmt"
	"math"
)

// BytesToSamples converts little-endian 16-bit PCM bytes to samples
func BytesToSamples(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even (16-bit samples), got %d", len(data))
	}
	samples := make([]int16, len(data)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples, nil
}

// SamplesToBytes converts samples to little-endian 16-bit PCM bytes
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}

// Resample performs linear-interpolation resampling between rates.
// Adequate for decision features; not intended for playback-quality audio.
func Resample(samples []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]int16, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio
		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}
		fraction := srcPos - float64(idx0)
		output[i] = int16(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction)
	}

	return output
}

// CalculateRMS returns the root-mean-square amplitude of raw samples
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// NormalizedRMS returns RMS scaled to [0, 1] against full int16 range
func NormalizedRMS(samples []int16) float64 {
	return CalculateRMS(samples) / 32768.0
}

// ApplyGain scales samples by a linear gain in [0, 1], returning a new
// slice. Used for ducking and low-volume acknowledgment playback.
func ApplyGain(samples []int16, gain float64) []int16 {
	if gain >= 1.0 {
		return samples
	}
	if gain < 0 {
		gain = 0
	}
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = int16(float64(s) * gain)
	}
	return out
}
