package audio

import (
	"encoding/binary"
	"math"
)

func clip(sample float32) float32 {
	switch {
	case sample > 1:
		return 1
	case sample < -1:
		return -1
	}
	return sample
}

// Int16ToFloat32 normalizes signed 16-bit samples into [-1, 1].
func Int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, sample := range samples {
		out[i] = float32(sample) / math.MaxInt16
	}
	return out
}

// Float32ToInt16 converts normalized samples to signed 16-bit, clipping
// anything outside [-1, 1].
func Float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, sample := range samples {
		out[i] = int16(math.Round(float64(clip(sample)) * math.MaxInt16))
	}
	return out
}

// EncodeLinear16 returns samples as little-endian linear16 PCM bytes.
func EncodeLinear16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, sample := range Float32ToInt16(samples) {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out
}

// DecodeLinear16 reads little-endian linear16 PCM bytes. A trailing odd byte
// is ignored.
func DecodeLinear16(data []byte) []float32 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return Int16ToFloat32(samples)
}
