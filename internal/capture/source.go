// Package capture produces interleaved signed 16-bit little-endian PCM
// and hands it to a session in fixed-size chunks. Sources cover a
// generated tone, raw PCM from any reader, WAV files and soundcards.
package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/tphakala/streambridge/internal/errors"
	"github.com/tphakala/streambridge/internal/logger"
)

// DefaultChunkDuration is the amount of audio delivered per feed
const DefaultChunkDuration = 20 * time.Millisecond

// Format describes the PCM a source produces
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerFrame returns the size of one interleaved sample frame
func (f Format) BytesPerFrame() int {
	return f.Channels * 2
}

// ChunkBytes returns the byte size of d worth of audio, never less than
// one frame
func (f Format) ChunkBytes(d time.Duration) int {
	frames := int(int64(f.SampleRate) * int64(d) / int64(time.Second))
	if frames < 1 {
		frames = 1
	}
	return frames * f.BytesPerFrame()
}

// Duration returns the play time of n bytes
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	frames := n / f.BytesPerFrame()
	return time.Duration(int64(frames) * int64(time.Second) / int64(f.SampleRate))
}

// String formats the rate and channel count for display
func (f Format) String() string {
	return fmt.Sprintf("%d Hz, %d ch", f.SampleRate, f.Channels)
}

func (f Format) validate() error {
	switch {
	case f.SampleRate <= 0:
		return validationError("sample_rate", f.SampleRate, "sample rate must be positive")
	case f.Channels <= 0:
		return validationError("channels", f.Channels, "channel count must be positive")
	}
	return nil
}

// Sink accepts PCM chunks. *session.Manager satisfies it.
type Sink interface {
	FeedContext(ctx context.Context, data []byte) error
}

// Source produces PCM until it is exhausted or ctx is done. Run returns
// nil in both cases and an error only when the source itself fails.
type Source interface {
	Format() Format
	Run(ctx context.Context, sink Sink) error
}

// deliver feeds one chunk. A rejected chunk is lost and capture carries
// on; only cancellation stops the caller.
func deliver(ctx context.Context, sink Sink, chunk []byte, log logger.Logger) error {
	err := sink.FeedContext(ctx, chunk)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	log.Warn("chunk rejected by sink",
		logger.Int("bytes", len(chunk)),
		logger.Error(err))
	return nil
}

// pacer releases one chunk per interval when real-time pacing is on
type pacer struct {
	ticker *time.Ticker
}

func newPacer(paced bool, interval time.Duration) *pacer {
	if !paced || interval <= 0 {
		return &pacer{}
	}
	return &pacer{ticker: time.NewTicker(interval)}
}

func (p *pacer) wait(ctx context.Context) error {
	if p.ticker == nil {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ticker.C:
		return nil
	}
}

func (p *pacer) stop() {
	if p.ticker != nil {
		p.ticker.Stop()
	}
}

func validationError(key string, value any, msg string) error {
	return errors.New(errors.NewStd(msg)).
		Component(componentCapture).
		Category(errors.CategoryValidation).
		Context(key, value).
		Build()
}

func sourceError(err error, op string) error {
	return errors.New(err).
		Component(componentCapture).
		Category(errors.CategoryAudioSource).
		Context("operation", op).
		Build()
}

const componentCapture = "capture"
