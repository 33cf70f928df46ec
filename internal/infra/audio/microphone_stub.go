//go:build !portaudio
// +build !portaudio

package audio

import (
	"context"
	"fmt"
	"log/slog"

	"voice-companion/internal/application"
)

// PortAudioMicrophone stub when portaudio is not available
type PortAudioMicrophone struct {
	logger *slog.Logger
}

func NewPortAudioMicrophone(logger *slog.Logger) *PortAudioMicrophone {
	return &PortAudioMicrophone{logger: logger}
}

func (m *PortAudioMicrophone) Name() string {
	return "portaudio"
}

func (m *PortAudioMicrophone) Open(_ context.Context, _ application.CaptureOptions) (application.AudioStream, error) {
	return nil, fmt.Errorf("portaudio microphone not available: rebuild with -tags portaudio")
}
