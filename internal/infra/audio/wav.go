package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"voice-companion/internal/pcm"
)

var ErrUnsupportedWAV = errors.New("unsupported wav format")

// encodeWAV writes mono 16-bit PCM with a canonical 44-byte header.
func encodeWAV(samples []int16, sampleRate int) []byte {
	var buf bytes.Buffer

	dataSize := len(samples) * pcm.BytesPerSample
	fileSize := 36 + dataSize

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, int32(fileSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, int32(16))
	binary.Write(&buf, binary.LittleEndian, int16(1))
	binary.Write(&buf, binary.LittleEndian, int16(1))
	binary.Write(&buf, binary.LittleEndian, int32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, int32(sampleRate*pcm.BytesPerSample))
	binary.Write(&buf, binary.LittleEndian, int16(pcm.BytesPerSample))
	binary.Write(&buf, binary.LittleEndian, int16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, int32(dataSize))
	buf.Write(pcm.Int16ToBytes(samples))

	return buf.Bytes()
}

// decodeWAV reads a mono 16-bit PCM file, skipping chunks it does not need.
func decodeWAV(data []byte) ([]int16, int, error) {
	r := bytes.NewReader(data)

	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, 0, fmt.Errorf("reading header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("%w: not a RIFF/WAVE file", ErrUnsupportedWAV)
	}

	var (
		sampleRate int
		haveFormat bool
	)
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, 0, fmt.Errorf("%w: no data chunk", ErrUnsupportedWAV)
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))

		switch id {
		case "fmt ":
			var f struct {
				AudioFormat   uint16
				Channels      uint16
				SampleRate    uint32
				ByteRate      uint32
				BlockAlign    uint16
				BitsPerSample uint16
			}
			if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
				return nil, 0, fmt.Errorf("reading fmt chunk: %w", err)
			}
			if f.AudioFormat != 1 || f.Channels != 1 || f.BitsPerSample != 16 {
				return nil, 0, fmt.Errorf("%w: need mono 16-bit PCM, got format=%d channels=%d bits=%d",
					ErrUnsupportedWAV, f.AudioFormat, f.Channels, f.BitsPerSample)
			}
			sampleRate = int(f.SampleRate)
			haveFormat = true
			if _, err := r.Seek(size-16, io.SeekCurrent); err != nil {
				return nil, 0, fmt.Errorf("skipping fmt extension: %w", err)
			}

		case "data":
			if !haveFormat {
				return nil, 0, fmt.Errorf("%w: data before fmt", ErrUnsupportedWAV)
			}
			size = min(size, int64(r.Len()))
			body := make([]byte, size-size%pcm.BytesPerSample)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, 0, fmt.Errorf("reading data chunk: %w", err)
			}
			samples, err := pcm.BytesToInt16(body)
			if err != nil {
				return nil, 0, err
			}
			return samples, sampleRate, nil

		default:
			if _, err := r.Seek(size+size%2, io.SeekCurrent); err != nil {
				return nil, 0, fmt.Errorf("skipping %q chunk: %w", id, err)
			}
		}
	}
}
