package normalize

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/Skryldev/ivr-studio/domain/model"
)

// ErrNoSamples is returned when a decoded buffer holds no samples
var ErrNoSamples = errors.New("decoded audio contains no samples")

// DecodePCM16LE converts signed 16-bit little-endian PCM into samples on the
// int16 scale. A trailing odd byte is ignored.
func DecodePCM16LE(data []byte) []float64 {
	n := len(data) / 2
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		samples[i] = float64(int16(binary.LittleEndian.Uint16(data[2*i:])))
	}
	return samples
}

// RMS returns the root mean square of samples; zero for an empty buffer
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Loudness returns 20*log10(rms). All-zero input yields -Inf.
func Loudness(samples []float64) (float64, error) {
	if len(samples) == 0 {
		return 0, ErrNoSamples
	}
	rms := RMS(samples)
	if rms == 0 {
		return math.Inf(-1), nil
	}
	return 20 * math.Log10(rms), nil
}

// Measure builds the loudness profile of samples against targetDB
func Measure(targetDB float64, samples []float64) (model.LoudnessProfile, error) {
	current, err := Loudness(samples)
	if err != nil {
		return model.LoudnessProfile{}, err
	}
	return model.LoudnessProfile{TargetDB: targetDB, CurrentDB: current}, nil
}

// GainFactor converts a dB gain into a linear amplitude factor
func GainFactor(gainDB float64) float64 {
	return math.Pow(10, gainDB/20)
}
