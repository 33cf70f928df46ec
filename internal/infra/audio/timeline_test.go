package audio_test

import (
	"testing"
	"time"

	"voice-companion/internal/infra/audio"
)

func ones(n int, v float32) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func TestTimeline_BackToBack(t *testing.T) {
	tl := audio.NewTimeline(1000)

	tl.Schedule(0, ones(4, 0.5))
	tl.Schedule(4*time.Millisecond, ones(4, -0.5))

	out := make([]float32, 10)
	tl.Render(out)

	want := []float32{0.5, 0.5, 0.5, 0.5, -0.5, -0.5, -0.5, -0.5, 0, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("frame %d: got %v, want %v", i, out[i], want[i])
		}
	}
	if got := tl.Now(); got != 10*time.Millisecond {
		t.Errorf("Now: got %v, want 10ms", got)
	}
	if tl.Pending() != 0 {
		t.Errorf("expected nothing pending, got %d", tl.Pending())
	}
}

func TestTimeline_SpansRenders(t *testing.T) {
	tl := audio.NewTimeline(1000)
	tl.Schedule(2*time.Millisecond, ones(6, 0.25))

	first := make([]float32, 4)
	tl.Render(first)
	second := make([]float32, 4)
	tl.Render(second)

	if first[0] != 0 || first[1] != 0 || first[2] != 0.25 || first[3] != 0.25 {
		t.Errorf("first render: %v", first)
	}
	for i, v := range second {
		if v != 0.25 {
			t.Errorf("second render frame %d: %v", i, v)
		}
	}
}

func TestTimeline_LateChunkStartsNow(t *testing.T) {
	tl := audio.NewTimeline(1000)
	tl.Render(make([]float32, 5))

	tl.Schedule(0, ones(2, 1))
	if got := tl.Pending(); got != 2 {
		t.Fatalf("pending: got %d, want 2", got)
	}

	out := make([]float32, 3)
	tl.Render(out)
	if out[0] != 1 || out[1] != 1 || out[2] != 0 {
		t.Errorf("render: %v", out)
	}
}

func TestTimeline_MixesAndClamps(t *testing.T) {
	tl := audio.NewTimeline(1000)
	tl.Schedule(0, ones(2, 0.75))
	tl.Schedule(0, ones(2, 0.75))

	out := make([]float32, 2)
	tl.Render(out)
	if out[0] != 1 || out[1] != 1 {
		t.Errorf("expected clamped output, got %v", out)
	}
}

func TestTimeline_Flush(t *testing.T) {
	tl := audio.NewTimeline(1000)
	tl.Schedule(0, ones(100, 0.5))
	tl.Flush()

	out := make([]float32, 10)
	tl.Render(out)
	for _, v := range out {
		if v != 0 {
			t.Fatalf("expected silence after flush, got %v", out)
		}
	}
}
