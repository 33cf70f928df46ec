package application

import (
	"context"
	"time"

	"voice-companion/internal/pcm"
)

type AudioFormat struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// InputAudioFormat is what the realtime endpoint expects from the microphone.
func InputAudioFormat() AudioFormat {
	return AudioFormat{
		SampleRate: pcm.InputSampleRate,
		Channels:   1,
		BitDepth:   16,
	}
}

// OutputAudioFormat is what the realtime endpoint speaks back.
func OutputAudioFormat() AudioFormat {
	return AudioFormat{
		SampleRate: pcm.OutputSampleRate,
		Channels:   1,
		BitDepth:   16,
	}
}

// CaptureOptions are the constraints requested when acquiring the microphone.
// Backends that cannot honour a processing flag ignore it.
type CaptureOptions struct {
	Format           AudioFormat
	FramesPerBuffer  int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

func DefaultCaptureOptions() CaptureOptions {
	return CaptureOptions{
		Format:           InputAudioFormat(),
		FramesPerBuffer:  DefaultBlockSize,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

type Microphone interface {
	Open(ctx context.Context, opts CaptureOptions) (AudioStream, error)
	Name() string
}

// AudioStream delivers mono float samples in [-1, 1] in capture order.
// Frames may have any length; the channel is closed when the stream ends.
type AudioStream interface {
	Samples() <-chan []float32
	Close() error
}

type Speaker interface {
	Open(ctx context.Context, format AudioFormat) (AudioOutput, error)
	Name() string
}

// AudioOutput plays buffers on its own clock. Now reports how much audio the
// device has rendered since Open; Schedule queues samples to start at that
// clock offset.
type AudioOutput interface {
	Now() time.Duration
	Schedule(at time.Duration, samples []float32) error
	Close() error
}

// Flusher is implemented by outputs that can drop audio already scheduled.
type Flusher interface {
	Flush()
}
