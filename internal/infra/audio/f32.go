package audio

import (
	"encoding/binary"
	"math"
)

const bytesPerF32 = 4

// decodeF32 reads interleaved little-endian float32 frames, keeping only the
// first channel.
func decodeF32(data []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	stride := bytesPerF32 * channels
	out := make([]float32, len(data)/stride)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*stride:]))
	}
	return out
}

// encodeF32 writes mono samples into an interleaved float32 buffer,
// duplicating each sample across channels.
func encodeF32(dst []byte, samples []float32, channels int) {
	if channels < 1 {
		channels = 1
	}
	stride := bytesPerF32 * channels
	for i, s := range samples {
		bits := math.Float32bits(s)
		for c := 0; c < channels; c++ {
			off := i*stride + c*bytesPerF32
			if off+bytesPerF32 > len(dst) {
				return
			}
			binary.LittleEndian.PutUint32(dst[off:], bits)
		}
	}
}
