package capture

import (
	"context"
	"encoding/binary"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/tphakala/streambridge/internal/errors"
	"github.com/tphakala/streambridge/internal/logger"
)

// WAVFileSource plays back a 16-bit PCM WAV file
type WAVFileSource struct {
	path    string
	file    *os.File
	decoder *wav.Decoder
	format  Format
	chunk   time.Duration
	paced   bool
	log     logger.Logger
}

// OpenWAVFile opens path and reads its header. Only 16-bit PCM is
// accepted since that is what sessions ingest.
func OpenWAVFile(path string, chunk time.Duration, paced bool) (*WAVFileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component(componentCapture).
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Context("operation", "open_wav").
			Build()
	}

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		_ = f.Close()
		return nil, errors.New(errors.NewStd("not a valid WAV file")).
			Component(componentCapture).
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}
	if decoder.WavAudioFormat != 1 || decoder.BitDepth != 16 {
		_ = f.Close()
		return nil, errors.Newf("unsupported WAV encoding: format %d, %d bits", decoder.WavAudioFormat, decoder.BitDepth).
			Component(componentCapture).
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}

	if chunk <= 0 {
		chunk = DefaultChunkDuration
	}
	return &WAVFileSource{
		path:    path,
		file:    f,
		decoder: decoder,
		format:  Format{SampleRate: int(decoder.SampleRate), Channels: int(decoder.NumChans)},
		chunk:   chunk,
		paced:   paced,
		log:     GetLogger().With(logger.String("path", path)),
	}, nil
}

// Format returns the file's sample rate and channel count
func (s *WAVFileSource) Format() Format {
	return s.format
}

// Run decodes the file chunk by chunk
func (s *WAVFileSource) Run(ctx context.Context, sink Sink) error {
	frames := s.format.ChunkBytes(s.chunk) / s.format.BytesPerFrame()
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: s.format.Channels, SampleRate: s.format.SampleRate},
		Data:           make([]int, frames*s.format.Channels),
		SourceBitDepth: 16,
	}

	p := newPacer(s.paced, s.chunk)
	defer p.stop()

	var total int
	for {
		if err := p.wait(ctx); err != nil {
			return nil
		}

		n, err := s.decoder.PCMBuffer(buf)
		if err != nil {
			return sourceError(err, "decode_wav")
		}
		n -= n % s.format.Channels
		if n == 0 {
			s.log.Debug("wav playback finished", logger.Int("bytes", total))
			return nil
		}

		chunk := make([]byte, n*2)
		for i, v := range buf.Data[:n] {
			binary.LittleEndian.PutUint16(chunk[i*2:], uint16(int16(v)))
		}
		total += len(chunk)

		if err := deliver(ctx, sink, chunk, s.log); err != nil {
			return nil
		}
	}
}

// Close releases the file
func (s *WAVFileSource) Close() error {
	return s.file.Close()
}
