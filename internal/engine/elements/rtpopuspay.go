package elements

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/tphakala/streambridge/internal/engine"
)

const (
	defaultPayloadType = 96
	defaultMTU         = 1200
)

// RTPOpusPay packetizes Opus frames as RTP, one marshalled packet per buffer
type RTPOpusPay struct {
	engine.Base

	pt         int
	mtu        int
	ssrc       uint32
	packetizer rtp.Packetizer
}

// NewRTPOpusPay creates a payloader with dynamic payload type 96
func NewRTPOpusPay(name string) *RTPOpusPay {
	p := &RTPOpusPay{pt: defaultPayloadType, mtu: defaultMTU}
	p.Init(FactoryRTPOpusPay, name)
	p.StoreProperty("pt", p.pt)
	p.StoreProperty("mtu", p.mtu)
	return p
}

// SetProperty implements engine.Element. ssrc 0 picks a random SSRC at start.
func (p *RTPOpusPay) SetProperty(key string, value any) error {
	n, err := engine.IntProperty(value)
	if err != nil {
		if key != "pt" && key != "mtu" && key != "ssrc" {
			return engine.UnknownPropertyError(p.Name(), key)
		}
		return engine.InvalidPropertyError(p.Name(), key, value, err)
	}

	switch key {
	case "pt":
		if n < 96 || n > 127 {
			return engine.InvalidPropertyError(p.Name(), key, value, fmt.Errorf("dynamic payload type must be 96 to 127"))
		}
		p.pt = n
	case "mtu":
		if n < 28 || n > 65535 {
			return engine.InvalidPropertyError(p.Name(), key, value, fmt.Errorf("must be between 28 and 65535"))
		}
		p.mtu = n
	case "ssrc":
		if n < 0 || int64(n) > int64(^uint32(0)) {
			return engine.InvalidPropertyError(p.Name(), key, value, fmt.Errorf("out of range"))
		}
		p.ssrc = uint32(n)
	default:
		return engine.UnknownPropertyError(p.Name(), key)
	}
	p.StoreProperty(key, value)
	return nil
}

// Negotiate implements engine.Element
func (p *RTPOpusPay) Negotiate(upstream engine.Caps) (engine.Caps, error) {
	if err := requireMedia(p.Name(), upstream, engine.MediaOpus); err != nil {
		return engine.Caps{}, err
	}
	return engine.Caps{Media: engine.MediaRTP, Rate: opusGranuleRate, Channels: upstream.Channels}, nil
}

// Start creates a packetizer with a random initial sequence number
func (p *RTPOpusPay) Start(context.Context) error {
	ssrc := p.ssrc
	if ssrc == 0 {
		ssrc = rand.Uint32()
	}
	p.packetizer = rtp.NewPacketizer(uint16(p.mtu), uint8(p.pt), ssrc,
		&codecs.OpusPayloader{}, rtp.NewRandomSequencer(), opusGranuleRate)
	return nil
}

// Chain implements engine.Element
func (p *RTPOpusPay) Chain(buf *engine.Buffer) engine.FlowReturn {
	for _, pkt := range p.packetizer.Packetize(buf.Data, uint32(buf.Samples)) {
		raw, err := pkt.Marshal()
		if err != nil {
			p.PostError("Could not payload Opus frame.", err.Error())
			return engine.FlowError
		}
		ret := p.Push(&engine.Buffer{
			Data:     raw,
			PTS:      buf.PTS,
			Duration: buf.Duration,
			Samples:  buf.Samples,
		})
		if ret != engine.FlowOK {
			return ret
		}
	}
	return engine.FlowOK
}
