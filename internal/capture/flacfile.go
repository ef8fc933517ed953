package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"os"
	"time"

	"github.com/tphakala/flac"
	"github.com/tphakala/streambridge/internal/errors"
	"github.com/tphakala/streambridge/internal/logger"
)

// FLACFileSource plays back a FLAC file. 24 and 32-bit streams are
// truncated to 16 bits.
type FLACFileSource struct {
	path           string
	file           *os.File
	decoder        *flac.Decoder
	format         Format
	bytesPerSample int
	chunk          time.Duration
	paced          bool
	log            logger.Logger
}

// OpenFLACFile opens path and reads its stream info
func OpenFLACFile(path string, chunk time.Duration, paced bool) (*FLACFileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component(componentCapture).
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Context("operation", "open_flac").
			Build()
	}

	decoder, err := flac.NewDecoder(f)
	if err != nil {
		_ = f.Close()
		return nil, errors.New(err).
			Component(componentCapture).
			Category(errors.CategoryValidation).
			Context("path", path).
			Context("operation", "read_flac_header").
			Build()
	}

	switch decoder.BitsPerSample {
	case 16, 24, 32:
	default:
		_ = f.Close()
		return nil, errors.Newf("unsupported FLAC bit depth: %d", decoder.BitsPerSample).
			Component(componentCapture).
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}

	format := Format{SampleRate: decoder.SampleRate, Channels: decoder.NChannels}
	if err := format.validate(); err != nil {
		_ = f.Close()
		return nil, err
	}

	if chunk <= 0 {
		chunk = DefaultChunkDuration
	}
	return &FLACFileSource{
		path:           path,
		file:           f,
		decoder:        decoder,
		format:         format,
		bytesPerSample: decoder.BitsPerSample / 8,
		chunk:          chunk,
		paced:          paced,
		log:            GetLogger().With(logger.String("path", path)),
	}, nil
}

// Format returns the stream's sample rate and channel count
func (s *FLACFileSource) Format() Format {
	return s.format
}

// Run decodes FLAC frames and regroups them into chunk-sized pieces
func (s *FLACFileSource) Run(ctx context.Context, sink Sink) error {
	chunkBytes := s.format.ChunkBytes(s.chunk)

	p := newPacer(s.paced, s.chunk)
	defer p.stop()

	var (
		pending []byte
		total   int
	)
	send := func(chunk []byte) error {
		if err := p.wait(ctx); err != nil {
			return err
		}
		total += len(chunk)
		return deliver(ctx, sink, chunk, s.log)
	}

	for {
		frame, err := s.decoder.Next()
		if errors.Is(err, io.EOF) {
			if len(pending) > 0 && send(pending) != nil {
				return nil
			}
			s.log.Debug("flac playback finished", logger.Int("bytes", total))
			return nil
		}
		if err != nil {
			return sourceError(err, "decode_flac")
		}

		pending = append(pending, s.toS16(frame)...)
		for len(pending) >= chunkBytes {
			if send(bytes.Clone(pending[:chunkBytes])) != nil {
				return nil
			}
			pending = pending[chunkBytes:]
		}
	}
}

// toS16 keeps the most significant 16 bits of each little-endian sample
func (s *FLACFileSource) toS16(frame []byte) []byte {
	if s.bytesPerSample == 2 {
		return frame
	}
	n := len(frame) / s.bytesPerSample
	out := make([]byte, n*2)
	for i := range n {
		hi := frame[(i+1)*s.bytesPerSample-2:]
		binary.LittleEndian.PutUint16(out[i*2:], uint16(hi[0])|uint16(hi[1])<<8)
	}
	return out
}

// Close releases the file
func (s *FLACFileSource) Close() error {
	return s.file.Close()
}
