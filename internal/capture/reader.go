package capture

import (
	"context"
	"io"
	"time"

	"github.com/tphakala/streambridge/internal/logger"
)

// ReaderSource forwards raw interleaved S16LE PCM from a reader, such as
// standard input fed by another capture tool
type ReaderSource struct {
	format Format
	r      io.Reader
	chunk  time.Duration
	paced  bool
	log    logger.Logger
}

// NewReaderSource wraps r. chunk is the amount of audio per feed, zero
// meaning DefaultChunkDuration.
func NewReaderSource(r io.Reader, format Format, chunk time.Duration, paced bool) (*ReaderSource, error) {
	if err := format.validate(); err != nil {
		return nil, err
	}
	if chunk <= 0 {
		chunk = DefaultChunkDuration
	}
	return &ReaderSource{format: format, r: r, chunk: chunk, paced: paced, log: GetLogger()}, nil
}

// Format returns the format the reader is declared to carry
func (s *ReaderSource) Format() Format {
	return s.format
}

// Run reads until EOF or ctx is done. A trailing partial frame is dropped.
func (s *ReaderSource) Run(ctx context.Context, sink Sink) error {
	size := s.format.ChunkBytes(s.chunk)
	frameBytes := s.format.BytesPerFrame()

	p := newPacer(s.paced, s.chunk)
	defer p.stop()

	for {
		if err := p.wait(ctx); err != nil {
			return nil
		}

		chunk := make([]byte, size)
		n, err := io.ReadFull(s.r, chunk)
		n -= n % frameBytes
		if n > 0 {
			if derr := deliver(ctx, sink, chunk[:n], s.log); derr != nil {
				return nil
			}
		}

		switch {
		case err == nil:
		case err == io.EOF || err == io.ErrUnexpectedEOF:
			return nil
		default:
			return sourceError(err, "read_pcm")
		}
	}
}
