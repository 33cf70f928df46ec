package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"voice-companion/internal/pcm"
)

// PlaybackScheduler chains decoded chunks back to back on the output clock.
// The output is opened on the first chunk and kept for the session. It is not
// safe for concurrent use; the owning session calls it from its loop only.
type PlaybackScheduler struct {
	speaker     Speaker
	format      AudioFormat
	flushOnStop bool
	stats       *Stats
	logger      *slog.Logger

	out  AudioOutput
	next time.Duration
}

func NewPlaybackScheduler(speaker Speaker, flushOnStop bool, stats *Stats, logger *slog.Logger) *PlaybackScheduler {
	if stats == nil {
		stats = &Stats{}
	}
	return &PlaybackScheduler{
		speaker:     speaker,
		format:      OutputAudioFormat(),
		flushOnStop: flushOnStop,
		stats:       stats,
		logger:      logger,
	}
}

// Play decodes one base64 PCM16 chunk and schedules it at
// max(now, end of the previously scheduled chunk). It returns the start time.
func (p *PlaybackScheduler) Play(ctx context.Context, chunk string) (time.Duration, error) {
	samples, err := pcm.Decode(chunk)
	if err != nil {
		p.stats.ChunksRejected.Add(1)
		return 0, fmt.Errorf("decoding audio chunk: %w", err)
	}

	if err := p.ensureOutput(ctx); err != nil {
		p.stats.ChunksRejected.Add(1)
		return 0, err
	}

	start := max(p.out.Now(), p.next)
	if err := p.out.Schedule(start, samples); err != nil {
		p.stats.ChunksRejected.Add(1)
		return 0, fmt.Errorf("scheduling audio chunk: %w", err)
	}
	p.next = start + pcm.Duration(len(samples), p.format.SampleRate)
	p.stats.ChunksScheduled.Add(1)

	return start, nil
}

// Stop forgets the backlog so the next chunk starts at the current clock.
// Audio already handed to the output keeps playing unless flushing is on.
func (p *PlaybackScheduler) Stop() {
	p.next = 0
	if !p.flushOnStop || p.out == nil {
		return
	}
	if f, ok := p.out.(Flusher); ok {
		f.Flush()
	}
}

// Cursor is the end of the last scheduled chunk, zero after Stop.
func (p *PlaybackScheduler) Cursor() time.Duration {
	return p.next
}

func (p *PlaybackScheduler) Close() error {
	p.next = 0
	if p.out == nil {
		return nil
	}
	out := p.out
	p.out = nil
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing audio output: %w", err)
	}
	return nil
}

func (p *PlaybackScheduler) ensureOutput(ctx context.Context) error {
	if p.out != nil {
		return nil
	}
	out, err := p.speaker.Open(ctx, p.format)
	if err != nil {
		return fmt.Errorf("opening audio output %s: %w", p.speaker.Name(), err)
	}
	p.logger.Debug("audio output opened", "speaker", p.speaker.Name(), "sample_rate", p.format.SampleRate)
	p.out = out
	return nil
}
