package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"voice-companion/internal/application"
	"voice-companion/internal/pcm"
)

// FileMicrophone replays a mono 16-bit WAV file as microphone input. The
// file's sample rate must match the requested capture rate.
type FileMicrophone struct {
	path     string
	realtime bool
	loop     bool
	logger   *slog.Logger
}

func NewFileMicrophone(path string, realtime, loop bool, logger *slog.Logger) *FileMicrophone {
	return &FileMicrophone{
		path:     path,
		realtime: realtime,
		loop:     loop,
		logger:   logger,
	}
}

func (f *FileMicrophone) Name() string {
	return "file"
}

func (f *FileMicrophone) Open(_ context.Context, opts application.CaptureOptions) (application.AudioStream, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.path, err)
	}
	samples, rate, err := decodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", f.path, err)
	}
	if rate != opts.Format.SampleRate {
		return nil, fmt.Errorf("%w: %s is %d Hz, need %d Hz", ErrUnsupportedWAV, f.path, rate, opts.Format.SampleRate)
	}

	frames := opts.FramesPerBuffer
	if frames <= 0 {
		frames = application.DefaultBlockSize
	}

	s := &fileStream{
		samples: pcm.Int16ToFloat(samples),
		frames:  frames,
		period:  pcm.Duration(frames, rate),
		out:     make(chan []float32, 4),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
	go s.run(f.realtime, f.loop)

	f.logger.Info("replaying audio file", "path", f.path, "samples", len(samples), "sample_rate", rate)
	return s, nil
}

type fileStream struct {
	samples []float32
	frames  int
	period  time.Duration
	out     chan []float32
	done    chan struct{}
	exited  chan struct{}
	once    sync.Once
}

func (s *fileStream) Samples() <-chan []float32 {
	return s.out
}

func (s *fileStream) Close() error {
	s.once.Do(func() { close(s.done) })
	<-s.exited
	return nil
}

func (s *fileStream) run(realtime, loop bool) {
	defer close(s.exited)
	defer close(s.out)

	var tick <-chan time.Time
	if realtime {
		ticker := time.NewTicker(s.period)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		for off := 0; off < len(s.samples); off += s.frames {
			if tick != nil {
				select {
				case <-s.done:
					return
				case <-tick:
				}
			}

			block := make([]float32, min(s.frames, len(s.samples)-off))
			copy(block, s.samples[off:])

			select {
			case <-s.done:
				return
			case s.out <- block:
			}
		}
		if !loop || len(s.samples) == 0 {
			return
		}
	}
}

// WAVSpeaker renders scheduled playback against the wall clock and, when a
// path is set, writes everything rendered to a WAV file on Close. Each Open
// gets its own file: the first uses path as given, later ones insert -2, -3
// and so on before the extension. With no path it is a silent sink.
type WAVSpeaker struct {
	path   string
	tick   time.Duration
	logger *slog.Logger
	opens  atomic.Int64
}

func NewWAVSpeaker(path string, tick time.Duration, logger *slog.Logger) *WAVSpeaker {
	if tick <= 0 {
		tick = 20 * time.Millisecond
	}
	return &WAVSpeaker{path: path, tick: tick, logger: logger}
}

func (w *WAVSpeaker) Name() string {
	if w.path == "" {
		return "null"
	}
	return "wav"
}

func (w *WAVSpeaker) Open(_ context.Context, format application.AudioFormat) (application.AudioOutput, error) {
	if w.path != "" {
		if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
			return nil, fmt.Errorf("creating output dir: %w", err)
		}
	}

	out := &wavOutput{
		Timeline: NewTimeline(format.SampleRate),
		path:     w.outputPath(w.opens.Add(1)),
		rate:     format.SampleRate,
		logger:   w.logger,
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	go out.run(w.tick)
	return out, nil
}

func (w *WAVSpeaker) outputPath(n int64) string {
	if w.path == "" || n == 1 {
		return w.path
	}
	ext := filepath.Ext(w.path)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(w.path, ext), n, ext)
}

type wavOutput struct {
	*Timeline
	path   string
	rate   int
	logger *slog.Logger

	rendered []int16
	done     chan struct{}
	exited   chan struct{}
	once     sync.Once
}

func (o *wavOutput) run(tick time.Duration) {
	defer close(o.exited)

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	started := time.Now()
	var frames int64
	for {
		select {
		case <-o.done:
			return
		case <-ticker.C:
			due := pcm.Frames(time.Since(started), o.rate)
			if due <= frames {
				continue
			}
			buf := make([]float32, due-frames)
			o.Render(buf)
			frames = due
			if o.path != "" {
				o.rendered = append(o.rendered, pcm.FloatToInt16(buf)...)
			}
		}
	}
}

func (o *wavOutput) Close() error {
	var err error
	o.once.Do(func() {
		close(o.done)
		<-o.exited

		if o.path == "" {
			return
		}
		if werr := os.WriteFile(o.path, encodeWAV(o.rendered, o.rate), 0644); werr != nil {
			err = fmt.Errorf("writing %s: %w", o.path, werr)
			return
		}
		o.logger.Info("playback written", "path", o.path, "samples", len(o.rendered))
	})
	return err
}
