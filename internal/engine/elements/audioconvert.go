package elements

import (
	"fmt"

	"github.com/tphakala/streambridge/internal/engine"
)

const defaultMaxChannels = 2

// AudioConvert reduces interleaved S16LE audio to at most max-channels
// channels. Output channel j is the mean of the input channels i with
// i % out == j, so surround layouts fold to stereo as even/odd pairs.
type AudioConvert struct {
	engine.Base

	maxChannels int
	inChannels  int
	outChannels int
}

// NewAudioConvert creates a converter limited to stereo output
func NewAudioConvert(name string) *AudioConvert {
	c := &AudioConvert{maxChannels: defaultMaxChannels}
	c.Init(FactoryAudioConvert, name)
	c.StoreProperty("max-channels", c.maxChannels)
	return c
}

// SetProperty implements engine.Element. max-channels 0 disables downmixing.
func (c *AudioConvert) SetProperty(key string, value any) error {
	if key != "max-channels" {
		return engine.UnknownPropertyError(c.Name(), key)
	}
	n, err := engine.IntProperty(value)
	if err == nil && n < 0 {
		err = fmt.Errorf("must not be negative")
	}
	if err != nil {
		return engine.InvalidPropertyError(c.Name(), key, value, err)
	}
	c.maxChannels = n
	c.StoreProperty(key, n)
	return nil
}

// Negotiate implements engine.Element
func (c *AudioConvert) Negotiate(upstream engine.Caps) (engine.Caps, error) {
	if err := requireRaw(c.Name(), upstream); err != nil {
		return engine.Caps{}, err
	}
	c.inChannels = upstream.Channels
	c.outChannels = upstream.Channels
	if c.maxChannels > 0 && c.outChannels > c.maxChannels {
		c.outChannels = c.maxChannels
	}
	return engine.RawAudioCaps(upstream.Rate, c.outChannels), nil
}

// Chain implements engine.Element
func (c *AudioConvert) Chain(buf *engine.Buffer) engine.FlowReturn {
	if c.inChannels == c.outChannels {
		return c.Push(buf)
	}

	in := bytesToInt16(buf.Data)
	frames := len(in) / c.inChannels
	out := make([]int16, frames*c.outChannels)
	share := make([]int, c.outChannels)
	for i := range c.inChannels {
		share[i%c.outChannels]++
	}

	for f := range frames {
		frame := in[f*c.inChannels : (f+1)*c.inChannels]
		for j := range c.outChannels {
			var sum int
			for i := j; i < c.inChannels; i += c.outChannels {
				sum += int(frame[i])
			}
			out[f*c.outChannels+j] = int16(sum / share[j])
		}
	}

	return c.Push(&engine.Buffer{
		Data:     int16ToBytes(out),
		PTS:      buf.PTS,
		Duration: buf.Duration,
		Samples:  frames,
	})
}
