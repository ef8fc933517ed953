package elements

import (
	"fmt"
	"math"
	"time"

	"github.com/tphakala/streambridge/internal/engine"
)

const (
	defaultResampleRate = 48000
	minResampleRate     = 4000
	maxResampleRate     = 192000
)

// AudioResample converts the sample rate with linear interpolation.
// The last input frame and the fractional read position carry across
// buffers so chunk boundaries do not click.
type AudioResample struct {
	engine.Base

	rate     int
	inRate   int
	channels int

	step     float64   // input frames per output frame
	position float64   // read position relative to the first frame of the next buffer
	last     []float64 // previous buffer's final frame, index -1
	hasLast  bool
	outTotal int64
}

// NewAudioResample creates a resampler targeting 48 kHz
func NewAudioResample(name string) *AudioResample {
	r := &AudioResample{rate: defaultResampleRate}
	r.Init(FactoryAudioResample, name)
	r.StoreProperty("rate", r.rate)
	return r
}

// SetProperty implements engine.Element
func (r *AudioResample) SetProperty(key string, value any) error {
	if key != "rate" {
		return engine.UnknownPropertyError(r.Name(), key)
	}
	n, err := engine.IntProperty(value)
	if err == nil && (n < minResampleRate || n > maxResampleRate) {
		err = fmt.Errorf("must be between %d and %d", minResampleRate, maxResampleRate)
	}
	if err != nil {
		return engine.InvalidPropertyError(r.Name(), key, value, err)
	}
	r.rate = n
	r.StoreProperty(key, n)
	return nil
}

// Negotiate implements engine.Element
func (r *AudioResample) Negotiate(upstream engine.Caps) (engine.Caps, error) {
	if err := requireRaw(r.Name(), upstream); err != nil {
		return engine.Caps{}, err
	}
	if upstream.Rate < minResampleRate || upstream.Rate > maxResampleRate {
		return engine.Caps{}, fmt.Errorf("%s: unsupported input rate %d Hz (supported %d to %d)",
			r.Name(), upstream.Rate, minResampleRate, maxResampleRate)
	}
	r.inRate = upstream.Rate
	r.channels = upstream.Channels
	r.step = float64(r.inRate) / float64(r.rate)
	r.reset()
	return engine.RawAudioCaps(r.rate, r.channels), nil
}

func (r *AudioResample) reset() {
	r.position = 0
	r.last = make([]float64, r.channels)
	r.hasLast = false
	r.outTotal = 0
}

// Chain implements engine.Element
func (r *AudioResample) Chain(buf *engine.Buffer) engine.FlowReturn {
	if r.inRate == r.rate {
		return r.Push(buf)
	}

	in := bytesToInt16(buf.Data)
	frames := len(in) / r.channels
	if frames == 0 {
		return engine.FlowOK
	}

	// sample returns channel ch of input frame i, where i == -1 is the carried frame
	sample := func(i, ch int) float64 {
		if i < 0 {
			return r.last[ch]
		}
		return float64(in[i*r.channels+ch])
	}

	if !r.hasLast {
		r.position = 0
	}

	estimate := int(math.Ceil(float64(frames)/r.step)) + 1
	out := make([]int16, 0, estimate*r.channels)
	for r.position < float64(frames-1) {
		idx := int(math.Floor(r.position))
		frac := r.position - float64(idx)
		for ch := range r.channels {
			a := sample(idx, ch)
			b := sample(idx+1, ch)
			out = append(out, clampInt16(math.Round(a+(b-a)*frac)))
		}
		r.position += r.step
	}

	r.position -= float64(frames)
	for ch := range r.channels {
		r.last[ch] = float64(in[(frames-1)*r.channels+ch])
	}
	r.hasLast = true

	outFrames := len(out) / r.channels
	if outFrames == 0 {
		return engine.FlowOK
	}
	pts := time.Duration(r.outTotal) * time.Second / time.Duration(r.rate)
	r.outTotal += int64(outFrames)

	return r.Push(&engine.Buffer{
		Data:     int16ToBytes(out),
		PTS:      pts,
		Duration: time.Duration(outFrames) * time.Second / time.Duration(r.rate),
		Samples:  outFrames,
	})
}

// Event implements engine.Element
func (r *AudioResample) Event(ev engine.Event) engine.FlowReturn {
	if ev.Type == engine.EventEOS {
		r.reset()
	}
	return r.PushEvent(ev)
}
