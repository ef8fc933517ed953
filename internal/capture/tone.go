package capture

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"github.com/tphakala/streambridge/internal/logger"
)

// ToneConfig configures a generated test signal
type ToneConfig struct {
	Format
	// Frequency of the sine in Hz; zero produces silence
	Frequency float64
	// Amplitude relative to full scale, 0..1; zero means 0.5
	Amplitude float64
	// ChunkDuration per feed; zero means DefaultChunkDuration
	ChunkDuration time.Duration
	// Duration of the whole signal; zero runs until cancelled
	Duration time.Duration
	// Paced delivers chunks in real time instead of as fast as the sink takes them
	Paced bool
}

// ToneSource generates a sine wave or silence
type ToneSource struct {
	cfg ToneConfig
	log logger.Logger
}

// NewToneSource validates cfg and returns a tone generator
func NewToneSource(cfg ToneConfig) (*ToneSource, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Frequency < 0 || cfg.Frequency > float64(cfg.SampleRate)/2 {
		return nil, validationError("frequency", cfg.Frequency, "frequency must be between 0 and the Nyquist limit")
	}
	if cfg.Amplitude < 0 || cfg.Amplitude > 1 {
		return nil, validationError("amplitude", cfg.Amplitude, "amplitude must be between 0 and 1")
	}
	if cfg.Amplitude == 0 {
		cfg.Amplitude = 0.5
	}
	if cfg.ChunkDuration <= 0 {
		cfg.ChunkDuration = DefaultChunkDuration
	}
	return &ToneSource{cfg: cfg, log: GetLogger()}, nil
}

// Format returns the generated PCM format
func (s *ToneSource) Format() Format {
	return s.cfg.Format
}

// Run generates chunks until Duration is reached or ctx is done
func (s *ToneSource) Run(ctx context.Context, sink Sink) error {
	chunkBytes := s.cfg.ChunkBytes(s.cfg.ChunkDuration)
	frameBytes := s.cfg.BytesPerFrame()
	remaining := -1
	if s.cfg.Duration > 0 {
		remaining = s.cfg.ChunkBytes(s.cfg.Duration)
	}

	p := newPacer(s.cfg.Paced, s.cfg.ChunkDuration)
	defer p.stop()

	var n int64
	for remaining != 0 {
		if err := p.wait(ctx); err != nil {
			return nil
		}

		size := chunkBytes
		if remaining > 0 && remaining < size {
			size = remaining
		}
		chunk := make([]byte, size)
		for off := 0; off+frameBytes <= size; off += frameBytes {
			sample := s.sample(n)
			for ch := range s.cfg.Channels {
				binary.LittleEndian.PutUint16(chunk[off+ch*2:], uint16(sample))
			}
			n++
		}

		if err := deliver(ctx, sink, chunk, s.log); err != nil {
			return nil
		}
		if remaining > 0 {
			remaining -= size
		}
	}
	return nil
}

func (s *ToneSource) sample(n int64) int16 {
	if s.cfg.Frequency == 0 {
		return 0
	}
	phase := 2 * math.Pi * s.cfg.Frequency * float64(n) / float64(s.cfg.SampleRate)
	return int16(math.Round(s.cfg.Amplitude * math.MaxInt16 * math.Sin(phase)))
}
