package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tphakala/streambridge/internal/errors"
)

// Media types negotiated between elements
const (
	MediaRawAudio = "audio/x-raw"
	MediaOpus     = "audio/x-opus"
	MediaOgg      = "application/ogg"
	MediaWAV      = "audio/x-wav"
	MediaRTP      = "application/x-rtp"
	MediaAny      = "application/octet-stream"
)

// FormatS16LE is the only raw sample format accepted at ingestion
const FormatS16LE = "S16LE"

// LayoutInterleaved is the only raw channel layout supported
const LayoutInterleaved = "interleaved"

// Caps describes the stream an element produces
type Caps struct {
	Media    string
	Format   string
	Rate     int
	Channels int
	Layout   string
}

// RawAudioCaps returns S16LE interleaved caps for rate and channels
func RawAudioCaps(rate, channels int) Caps {
	return Caps{
		Media:    MediaRawAudio,
		Format:   FormatS16LE,
		Rate:     rate,
		Channels: channels,
		Layout:   LayoutInterleaved,
	}
}

// ParseCaps parses a caps string such as
// "audio/x-raw,format=S16LE,rate=48000,channels=2,layout=interleaved".
// Field values may carry a type annotation like "(int)48000".
func ParseCaps(s string) (Caps, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	caps := Caps{Media: strings.TrimSpace(parts[0])}
	if caps.Media == "" {
		return Caps{}, capsError(s, "missing media type")
	}

	for _, part := range parts[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return Caps{}, capsError(s, fmt.Sprintf("malformed field %q", part))
		}
		value = stripTypeAnnotation(strings.TrimSpace(value))

		switch strings.TrimSpace(key) {
		case "format":
			caps.Format = value
		case "layout":
			caps.Layout = value
		case "rate":
			n, err := strconv.Atoi(value)
			if err != nil {
				return Caps{}, capsError(s, fmt.Sprintf("invalid rate %q", value))
			}
			caps.Rate = n
		case "channels":
			n, err := strconv.Atoi(value)
			if err != nil {
				return Caps{}, capsError(s, fmt.Sprintf("invalid channels %q", value))
			}
			caps.Channels = n
		}
	}

	if caps.IsRaw() {
		if caps.Layout == "" {
			caps.Layout = LayoutInterleaved
		}
		if err := caps.Validate(); err != nil {
			return Caps{}, err
		}
	}

	return caps, nil
}

func stripTypeAnnotation(value string) string {
	if strings.HasPrefix(value, "(") {
		if _, rest, ok := strings.Cut(value, ")"); ok {
			return rest
		}
	}
	return value
}

// IsRaw reports whether caps describe raw PCM
func (c Caps) IsRaw() bool {
	return c.Media == MediaRawAudio
}

// IsZero reports whether caps are unset
func (c Caps) IsZero() bool {
	return c == Caps{}
}

// Validate checks raw audio caps for a supported format, rate and channel count
func (c Caps) Validate() error {
	if !c.IsRaw() {
		return nil
	}
	switch {
	case c.Format != FormatS16LE:
		return capsError(c.String(), fmt.Sprintf("unsupported sample format %q", c.Format))
	case c.Layout != LayoutInterleaved:
		return capsError(c.String(), fmt.Sprintf("unsupported channel layout %q", c.Layout))
	case c.Rate <= 0:
		return capsError(c.String(), fmt.Sprintf("sample rate must be positive, got %d", c.Rate))
	case c.Channels <= 0:
		return capsError(c.String(), fmt.Sprintf("channel count must be positive, got %d", c.Channels))
	}
	return nil
}

// BytesPerFrame returns the size of one interleaved sample frame
func (c Caps) BytesPerFrame() int {
	return c.Channels * 2
}

// String formats caps in the same syntax ParseCaps accepts
func (c Caps) String() string {
	var sb strings.Builder
	sb.WriteString(c.Media)
	if c.Format != "" {
		fmt.Fprintf(&sb, ",format=%s", c.Format)
	}
	if c.Rate > 0 {
		fmt.Fprintf(&sb, ",rate=%d", c.Rate)
	}
	if c.Channels > 0 {
		fmt.Fprintf(&sb, ",channels=%d", c.Channels)
	}
	if c.Layout != "" {
		fmt.Fprintf(&sb, ",layout=%s", c.Layout)
	}
	return sb.String()
}

func capsError(caps, reason string) error {
	return errors.Newf("invalid caps %q: %s", caps, reason).
		Component(ComponentEngine).
		Category(errors.CategoryConstruction).
		Context("operation", "parse_caps").
		Build()
}
