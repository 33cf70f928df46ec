package application

import "voice-companion/internal/pcm"

const (
	DefaultBlockSize   = 4096
	DefaultCaptureGain = 5.0
)

type CaptureConfig struct {
	Gain      float32
	BlockSize int
}

func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		Gain:      DefaultCaptureGain,
		BlockSize: DefaultBlockSize,
	}
}

// CapturePipeline boosts microphone samples and cuts them into fixed-size
// blocks encoded for the wire. Devices deliver whatever period they like;
// a partial block is held until the next Process call.
type CapturePipeline struct {
	gain      float32
	blockSize int
	pending   []float32
}

func NewCapturePipeline(cfg CaptureConfig) *CapturePipeline {
	if cfg.Gain == 0 {
		cfg.Gain = DefaultCaptureGain
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	return &CapturePipeline{
		gain:      cfg.Gain,
		blockSize: cfg.BlockSize,
		pending:   make([]float32, 0, cfg.BlockSize),
	}
}

func (p *CapturePipeline) BlockSize() int {
	return p.blockSize
}

// Process returns one base64 PCM16 frame per completed block.
func (p *CapturePipeline) Process(samples []float32) []string {
	var frames []string
	for _, s := range samples {
		p.pending = append(p.pending, s*p.gain)
		if len(p.pending) == p.blockSize {
			frames = append(frames, pcm.Encode(p.pending))
			p.pending = p.pending[:0]
		}
	}
	return frames
}

// Reset discards a partially filled block.
func (p *CapturePipeline) Reset() {
	p.pending = p.pending[:0]
}
