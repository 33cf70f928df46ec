// Package pcm converts between normalized float samples and base64-encoded
// signed 16-bit little-endian PCM, the framing used on the realtime wire.
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// MaxInt16 is the scale factor in both directions.
	MaxInt16 = 32767

	BytesPerSample = 2

	InputSampleRate  = 16000
	OutputSampleRate = 24000
)

var (
	ErrEmpty     = errors.New("empty audio payload")
	ErrAlignment = errors.New("audio payload not aligned to 16-bit samples")
)

// MIMEType returns the content type announced for raw PCM at rate.
func MIMEType(rate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", rate)
}

// Quantize maps one float sample to int16 as round(clamp(x,-1,1) * 32767).
func Quantize(x float32) int16 {
	v := float64(x)
	if v > 1 || math.IsInf(v, 1) {
		v = 1
	} else if v < -1 || math.IsInf(v, -1) {
		v = -1
	} else if math.IsNaN(v) {
		v = 0
	}
	return int16(math.Round(v * MaxInt16))
}

func FloatToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = Quantize(s)
	}
	return out
}

func Int16ToFloat(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / MaxInt16
	}
	return out
}

func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(s))
	}
	return out
}

func BytesToInt16(data []byte) ([]int16, error) {
	if len(data)%BytesPerSample != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrAlignment, len(data))
	}
	out := make([]int16, len(data)/BytesPerSample)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*BytesPerSample:]))
	}
	return out, nil
}

// Encode quantizes float samples and returns them as base64 PCM16 LE.
func Encode(samples []float32) string {
	return base64.StdEncoding.EncodeToString(Int16ToBytes(FloatToInt16(samples)))
}

// Decode reverses Encode, yielding samples scaled by 1/32767.
func Decode(chunk string) ([]float32, error) {
	if chunk == "" {
		return nil, ErrEmpty
	}
	raw, err := base64.StdEncoding.DecodeString(chunk)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 audio: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrEmpty
	}
	ints, err := BytesToInt16(raw)
	if err != nil {
		return nil, err
	}
	return Int16ToFloat(ints), nil
}

// Duration is the playback length of n mono samples at rate.
func Duration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}

// Frames converts a clock offset to the nearest sample index at rate, so
// Frames(Duration(n, rate), rate) == n.
func Frames(d time.Duration, rate int) int64 {
	return (int64(d)*int64(rate) + int64(time.Second)/2) / int64(time.Second)
}
