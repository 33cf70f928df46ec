package audio

import "testing"

func TestF32RoundTrip(t *testing.T) {
	samples := []float32{0, 0.5, -1, 1}

	buf := make([]byte, len(samples)*bytesPerF32*2)
	encodeF32(buf, samples, 2)

	got := decodeF32(buf, 2)
	if len(got) != len(samples) {
		t.Fatalf("length: got %d, want %d", len(got), len(samples))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], samples[i])
		}
	}

	if mono := decodeF32(buf, 1); mono[1] != samples[0] {
		t.Errorf("second channel should duplicate the first: got %v", mono[1])
	}
}

func TestEncodeF32_ShortBuffer(t *testing.T) {
	buf := make([]byte, 6)
	encodeF32(buf, []float32{1, 1}, 1)
	if decodeF32(buf, 1)[0] != 1 {
		t.Error("first sample not written")
	}
}
