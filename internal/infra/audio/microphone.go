//go:build portaudio
// +build portaudio

package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"voice-companion/internal/application"
)

// PortAudioMicrophone captures through PortAudio's default input stream.
type PortAudioMicrophone struct {
	logger *slog.Logger
}

func NewPortAudioMicrophone(logger *slog.Logger) *PortAudioMicrophone {
	return &PortAudioMicrophone{logger: logger}
}

func (m *PortAudioMicrophone) Name() string {
	return "portaudio"
}

func (m *PortAudioMicrophone) Open(_ context.Context, opts application.CaptureOptions) (application.AudioStream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}

	framesPerBuffer := opts.FramesPerBuffer
	if framesPerBuffer <= 0 {
		framesPerBuffer = 1024
	}
	buffer := make([]float32, framesPerBuffer)

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(opts.Format.SampleRate), framesPerBuffer, buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("opening stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("starting stream: %w", err)
	}

	s := &portAudioStream{
		stream: stream,
		buffer: buffer,
		out:    make(chan []float32, 16),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
		logger: m.logger,
	}
	go s.run()

	m.logger.Info("microphone started", "sampleRate", opts.Format.SampleRate)
	return s, nil
}

type portAudioStream struct {
	stream *portaudio.Stream
	buffer []float32
	out    chan []float32
	done   chan struct{}
	exited chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func (s *portAudioStream) Samples() <-chan []float32 {
	return s.out
}

func (s *portAudioStream) run() {
	defer close(s.exited)
	defer close(s.out)

	for {
		if err := s.stream.Read(); err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Error("reading from stream", "error", err)
			}
			return
		}

		block := make([]float32, len(s.buffer))
		copy(block, s.buffer)

		select {
		case <-s.done:
			return
		case s.out <- block:
		}
	}
}

func (s *portAudioStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		if stopErr := s.stream.Stop(); stopErr != nil {
			err = fmt.Errorf("stopping stream: %w", stopErr)
		}
		<-s.exited
		s.stream.Close()
		portaudio.Terminate()
	})
	return err
}
