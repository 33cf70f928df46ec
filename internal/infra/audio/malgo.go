package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"voice-companion/internal/application"
)

func initContext() (*malgo.AllocatedContext, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing malgo context: %w", err)
	}
	return ctx, nil
}

func freeContext(ctx *malgo.AllocatedContext) {
	_ = ctx.Uninit()
	ctx.Free()
}

// MalgoMicrophone captures from the default input device through miniaudio.
type MalgoMicrophone struct {
	logger *slog.Logger
}

func NewMalgoMicrophone(logger *slog.Logger) *MalgoMicrophone {
	return &MalgoMicrophone{logger: logger}
}

func (m *MalgoMicrophone) Name() string {
	return "malgo"
}

func (m *MalgoMicrophone) Open(_ context.Context, opts application.CaptureOptions) (application.AudioStream, error) {
	if opts.EchoCancellation || opts.NoiseSuppression || opts.AutoGainControl {
		m.logger.Debug("capture processing not available on this backend",
			"echo_cancellation", opts.EchoCancellation,
			"noise_suppression", opts.NoiseSuppression,
			"auto_gain", opts.AutoGainControl,
		)
	}

	actx, err := initContext()
	if err != nil {
		return nil, err
	}

	s := &malgoStream{
		actx:   actx,
		out:    make(chan []float32, 16),
		logger: m.logger,
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(max(opts.Format.Channels, 1))
	cfg.SampleRate = uint32(opts.Format.SampleRate)
	if opts.FramesPerBuffer > 0 {
		cfg.PeriodSizeInFrames = uint32(opts.FramesPerBuffer)
	}
	channels := int(cfg.Capture.Channels)

	device, err := malgo.InitDevice(actx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			s.deliver(decodeF32(input, channels))
		},
	})
	if err != nil {
		freeContext(actx)
		return nil, fmt.Errorf("initializing capture device: %w", err)
	}
	s.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		freeContext(actx)
		return nil, fmt.Errorf("starting capture device: %w", err)
	}

	m.logger.Info("microphone started", "sample_rate", opts.Format.SampleRate, "period", cfg.PeriodSizeInFrames)
	return s, nil
}

type malgoStream struct {
	actx   *malgo.AllocatedContext
	device *malgo.Device
	out    chan []float32
	logger *slog.Logger

	mu      sync.Mutex
	closed  bool
	dropped atomic.Int64
}

func (s *malgoStream) Samples() <-chan []float32 {
	return s.out
}

// deliver runs on the audio thread and must never block it.
func (s *malgoStream) deliver(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.out <- samples:
	default:
		s.dropped.Add(1)
	}
}

func (s *malgoStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.out)
	s.mu.Unlock()

	var err error
	if stopErr := s.device.Stop(); stopErr != nil {
		err = fmt.Errorf("stopping capture device: %w", stopErr)
	}
	s.device.Uninit()
	freeContext(s.actx)

	if n := s.dropped.Load(); n > 0 {
		s.logger.Warn("microphone buffers dropped", "count", n)
	}
	return err
}

// MalgoSpeaker plays through the default output device. Its clock is the
// number of frames the device has pulled.
type MalgoSpeaker struct {
	logger *slog.Logger
}

func NewMalgoSpeaker(logger *slog.Logger) *MalgoSpeaker {
	return &MalgoSpeaker{logger: logger}
}

func (m *MalgoSpeaker) Name() string {
	return "malgo"
}

func (m *MalgoSpeaker) Open(_ context.Context, format application.AudioFormat) (application.AudioOutput, error) {
	actx, err := initContext()
	if err != nil {
		return nil, err
	}

	out := &malgoOutput{
		Timeline: NewTimeline(format.SampleRate),
		actx:     actx,
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = uint32(max(format.Channels, 1))
	cfg.SampleRate = uint32(format.SampleRate)
	channels := int(cfg.Playback.Channels)

	device, err := malgo.InitDevice(actx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frames uint32) {
			out.render(output, int(frames), channels)
		},
	})
	if err != nil {
		freeContext(actx)
		return nil, fmt.Errorf("initializing playback device: %w", err)
	}
	out.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		freeContext(actx)
		return nil, fmt.Errorf("starting playback device: %w", err)
	}

	m.logger.Info("speaker started", "sample_rate", format.SampleRate)
	return out, nil
}

type malgoOutput struct {
	*Timeline
	actx   *malgo.AllocatedContext
	device *malgo.Device

	// buf is only touched by the audio callback.
	buf       []float32
	closeOnce sync.Once
}

func (o *malgoOutput) render(output []byte, frames, channels int) {
	if cap(o.buf) < frames {
		o.buf = make([]float32, frames)
	}
	buf := o.buf[:frames]
	o.Render(buf)
	encodeF32(output, buf, channels)
}

func (o *malgoOutput) Close() error {
	var err error
	o.closeOnce.Do(func() {
		if stopErr := o.device.Stop(); stopErr != nil {
			err = fmt.Errorf("stopping playback device: %w", stopErr)
		}
		o.device.Uninit()
		freeContext(o.actx)
	})
	return err
}
