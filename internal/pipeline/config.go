// Package pipeline turns a session configuration into a linked engine
// pipeline. Describe decides which stages a destination needs; Build makes
// and links them, returning either a complete graph or nothing.
package pipeline

import (
	"time"

	"github.com/tphakala/streambridge/internal/engine"
)

// Defaults applied when a Configuration leaves a field at zero
const (
	DefaultFrameDuration    = 20 * time.Millisecond
	DefaultQueueDuration    = 2 * time.Second
	DefaultFileNameTemplate = "{session}_{timestamp}{ext}"
)

// Configuration is the immutable per-session description of the input
// format and output. Sample rate, channels and bitrate are not checked
// here; the engine rejects values it cannot handle while building.
type Configuration struct {
	SampleRate  int
	Channels    int
	Bitrate     int
	Destination string

	FrameDuration time.Duration // appsrc read granularity
	QueueDuration time.Duration // ingestion queue capacity in audio time

	SessionID        string // substituted into FileNameTemplate
	FileNameTemplate string // used when Destination is a directory
}

// Caps returns the raw input format: S16LE interleaved at the configured
// rate and channel count
func (c Configuration) Caps() engine.Caps {
	return engine.RawAudioCaps(c.SampleRate, c.Channels)
}

// QueueBytes is the ingestion queue size in bytes
func (c Configuration) QueueBytes() int {
	d := c.QueueDuration
	if d <= 0 {
		d = DefaultQueueDuration
	}
	return int(int64(c.SampleRate) * int64(c.Channels) * 2 * int64(d) / int64(time.Second))
}

func (c Configuration) frameDuration() time.Duration {
	if c.FrameDuration <= 0 {
		return DefaultFrameDuration
	}
	return c.FrameDuration
}
