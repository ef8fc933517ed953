package record

import (
	"os"
	"time"

	"github.com/tphakala/streambridge/internal/capture"
	"github.com/tphakala/streambridge/internal/conf"
	"github.com/tphakala/streambridge/internal/errors"
)

// newSource builds the configured capture source. File sources dictate
// the session format from their header; all others use the session
// sample rate and channel count.
func newSource(c *conf.CaptureSettings, s *conf.SessionSettings) (capture.Source, func(), error) {
	format := capture.Format{SampleRate: s.SampleRate, Channels: s.Channels}
	chunk := chunkDuration(c.ChunkFrames, s.SampleRate)
	noop := func() {}

	var (
		src capture.Source
		err error
	)
	switch c.Source {
	case "tone", "silence":
		hz := c.ToneHz
		if c.Source == "silence" {
			hz = 0
		}
		src, err = capture.NewToneSource(capture.ToneConfig{
			Format:        format,
			Frequency:     hz,
			ChunkDuration: chunk,
			Paced:         true,
		})
	case "stdin":
		src, err = capture.NewReaderSource(os.Stdin, format, chunk, false)
	case "file":
		var fileSrc capture.FileSource
		fileSrc, err = capture.OpenFile(c.File, chunk, false)
		if err == nil {
			return fileSrc, func() { _ = fileSrc.Close() }, nil
		}
	case "soundcard":
		src, err = capture.NewSoundcardSource(capture.SoundcardConfig{
			Format:       format,
			Device:       c.Device,
			PeriodFrames: uint32(max(c.ChunkFrames, 0)),
			Gain:         c.Gain,
		})
	default:
		err = errors.Newf("unknown capture source %q", c.Source).
			Component("capture").
			Category(errors.CategoryValidation).
			Build()
	}
	if err != nil {
		return nil, noop, err
	}
	return src, noop, nil
}

func chunkDuration(frames, rate int) time.Duration {
	if frames <= 0 || rate <= 0 {
		return capture.DefaultChunkDuration
	}
	return time.Duration(frames) * time.Second / time.Duration(rate)
}
