package audio

import (
	"sort"
	"sync"
	"time"

	"voice-companion/internal/pcm"
)

type segment struct {
	start   int64
	samples []float32
}

func (s segment) end() int64 {
	return s.start + int64(len(s.samples))
}

// Timeline is a mono mixer driven by a frame clock. Chunks are placed at an
// absolute position and Render pulls whatever overlaps the next frames,
// advancing the clock. It backs every speaker implementation.
type Timeline struct {
	rate int

	mu       sync.Mutex
	frame    int64
	segments []segment
}

func NewTimeline(rate int) *Timeline {
	return &Timeline{rate: rate}
}

// Now is the amount of audio rendered so far.
func (t *Timeline) Now() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return pcm.Duration(int(t.frame), t.rate)
}

// Schedule places samples at the given clock position. A position already
// in the past plays from the current frame.
func (t *Timeline) Schedule(at time.Duration, samples []float32) error {
	if len(samples) == 0 {
		return nil
	}
	buf := make([]float32, len(samples))
	copy(buf, samples)

	t.mu.Lock()
	defer t.mu.Unlock()

	start := max(pcm.Frames(at, t.rate), t.frame)
	i := sort.Search(len(t.segments), func(i int) bool { return t.segments[i].start > start })
	t.segments = append(t.segments, segment{})
	copy(t.segments[i+1:], t.segments[i:])
	t.segments[i] = segment{start: start, samples: buf}
	return nil
}

// Render mixes the next len(out) frames into out and advances the clock.
func (t *Timeline) Render(out []float32) {
	clear(out)

	t.mu.Lock()
	defer t.mu.Unlock()

	from := t.frame
	to := from + int64(len(out))

	kept := t.segments[:0]
	for _, seg := range t.segments {
		if seg.start < to {
			lo := max(seg.start, from)
			hi := min(seg.end(), to)
			for f := lo; f < hi; f++ {
				out[f-from] += seg.samples[f-seg.start]
			}
		}
		if seg.end() > to {
			kept = append(kept, seg)
		}
	}
	clear(t.segments[len(kept):])
	t.segments = kept
	t.frame = to

	for i, v := range out {
		if v > 1 {
			out[i] = 1
		} else if v < -1 {
			out[i] = -1
		}
	}
}

// Flush drops everything not yet rendered.
func (t *Timeline) Flush() {
	t.mu.Lock()
	clear(t.segments)
	t.segments = t.segments[:0]
	t.mu.Unlock()
}

// Pending is the number of frames still queued after the clock.
func (t *Timeline) Pending() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var last int64
	for _, seg := range t.segments {
		last = max(last, seg.end())
	}
	return max(last-t.frame, 0)
}
