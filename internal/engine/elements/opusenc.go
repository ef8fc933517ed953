package elements

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/tphakala/streambridge/internal/engine"
	"github.com/tphakala/streambridge/internal/logger"
	"gopkg.in/hraban/opus.v2"
)

const (
	defaultOpusBitrate   = 64000
	defaultFrameSizeMs   = 20.0
	defaultMaxPacketSize = 4000

	// opusGranuleRate is the clock Opus timestamps and Ogg granules use
	// regardless of the input rate
	opusGranuleRate = 48000
)

var (
	opusRates      = []int{8000, 12000, 16000, 24000, 48000}
	opusFrameSizes = []float64{2.5, 5, 10, 20, 40, 60}
)

var opusApplications = map[string]opus.Application{
	"generic":             opus.AppAudio,
	"audio":               opus.AppAudio,
	"voice":               opus.AppVoIP,
	"restricted-lowdelay": opus.AppRestrictedLowdelay,
}

// OpusEnc encodes S16LE PCM into Opus packets, one buffer per frame.
// The libopus encoder is created during negotiation so unsupported rates,
// channel counts or bitrates fail linking.
type OpusEnc struct {
	engine.Base

	bitrate    int
	app        string
	frameMs    float64
	maxPacket  int
	encoder    *opus.Encoder
	channels   int
	rate       int
	frameLen   int // interleaved samples per frame
	pending    []int16
	packet     []byte
	frames     int64
	granuleAdv int // 48 kHz samples per frame
}

// NewOpusEnc creates an encoder with a 20 ms frame
func NewOpusEnc(name string) *OpusEnc {
	e := &OpusEnc{
		bitrate:   defaultOpusBitrate,
		app:       "generic",
		frameMs:   defaultFrameSizeMs,
		maxPacket: defaultMaxPacketSize,
	}
	e.Init(FactoryOpusEnc, name)
	e.StoreProperty("bitrate", e.bitrate)
	e.StoreProperty("audio-type", e.app)
	e.StoreProperty("frame-size", e.frameMs)
	e.StoreProperty("max-packet-bytes", e.maxPacket)
	return e
}

// SetProperty implements engine.Element. The bitrate is validated by
// libopus during negotiation.
func (e *OpusEnc) SetProperty(key string, value any) error {
	switch key {
	case "bitrate":
		n, err := engine.IntProperty(value)
		if err != nil {
			return engine.InvalidPropertyError(e.Name(), key, value, err)
		}
		e.bitrate = n
	case "audio-type":
		s, err := engine.StringProperty(value)
		if err == nil {
			if _, ok := opusApplications[s]; !ok {
				err = fmt.Errorf("must be generic, voice or restricted-lowdelay")
			}
		}
		if err != nil {
			return engine.InvalidPropertyError(e.Name(), key, value, err)
		}
		e.app = s
	case "frame-size":
		ms, err := frameSizeProperty(value)
		if err != nil {
			return engine.InvalidPropertyError(e.Name(), key, value, err)
		}
		e.frameMs = ms
	case "max-packet-bytes":
		n, err := engine.IntProperty(value)
		if err == nil && n <= 0 {
			err = fmt.Errorf("must be positive")
		}
		if err != nil {
			return engine.InvalidPropertyError(e.Name(), key, value, err)
		}
		e.maxPacket = n
	default:
		return engine.UnknownPropertyError(e.Name(), key)
	}
	e.StoreProperty(key, value)
	return nil
}

func frameSizeProperty(value any) (float64, error) {
	var ms float64
	switch v := value.(type) {
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, err
		}
		ms = f
	case time.Duration:
		ms = float64(v) / float64(time.Millisecond)
	default:
		f, err := engine.FloatProperty(value)
		if err != nil {
			return 0, err
		}
		ms = f
	}
	if !slices.Contains(opusFrameSizes, ms) {
		return 0, fmt.Errorf("frame size must be one of %v ms", opusFrameSizes)
	}
	return ms, nil
}

// Negotiate implements engine.Element
func (e *OpusEnc) Negotiate(upstream engine.Caps) (engine.Caps, error) {
	if err := requireRaw(e.Name(), upstream); err != nil {
		return engine.Caps{}, err
	}
	if !slices.Contains(opusRates, upstream.Rate) {
		return engine.Caps{}, fmt.Errorf("%s: unsupported sample rate %d Hz", e.Name(), upstream.Rate)
	}
	if upstream.Channels > 2 {
		return engine.Caps{}, fmt.Errorf("%s: unsupported channel count %d", e.Name(), upstream.Channels)
	}

	enc, err := opus.NewEncoder(upstream.Rate, upstream.Channels, opusApplications[e.app])
	if err != nil {
		return engine.Caps{}, fmt.Errorf("%s: could not create encoder: %w", e.Name(), err)
	}
	if err := enc.SetBitrate(e.bitrate); err != nil {
		return engine.Caps{}, fmt.Errorf("%s: invalid bitrate %d: %w", e.Name(), e.bitrate, err)
	}

	e.encoder = enc
	e.rate = upstream.Rate
	e.channels = upstream.Channels
	e.frameLen = int(float64(upstream.Rate)*e.frameMs/1000) * upstream.Channels
	e.granuleAdv = int(opusGranuleRate * e.frameMs / 1000)
	e.packet = make([]byte, e.maxPacket)
	e.pending = e.pending[:0]
	e.frames = 0

	GetLogger().Debug("opus encoder configured",
		logger.String("element", e.Name()),
		logger.Int("rate", e.rate),
		logger.Int("channels", e.channels),
		logger.Int("bitrate", e.bitrate),
		logger.Float64("frame_ms", e.frameMs))

	return engine.Caps{Media: engine.MediaOpus, Rate: opusGranuleRate, Channels: upstream.Channels}, nil
}

// Chain implements engine.Element
func (e *OpusEnc) Chain(buf *engine.Buffer) engine.FlowReturn {
	e.pending = append(e.pending, bytesToInt16(buf.Data)...)

	for len(e.pending) >= e.frameLen {
		if ret := e.encodeFrame(e.pending[:e.frameLen]); ret != engine.FlowOK {
			return ret
		}
		e.pending = e.pending[e.frameLen:]
	}
	// compact so the backing array does not grow without bound
	e.pending = append(e.pending[:0:0], e.pending...)
	return engine.FlowOK
}

func (e *OpusEnc) encodeFrame(pcm []int16) engine.FlowReturn {
	n, err := e.encoder.Encode(pcm, e.packet)
	if err != nil {
		e.PostError("Could not encode audio.", fmt.Sprintf("opus encode failed: %v", err))
		return engine.FlowError
	}

	pts := time.Duration(e.frames) * time.Duration(e.granuleAdv) * time.Second / opusGranuleRate
	e.frames++

	return e.Push(&engine.Buffer{
		Data:     append([]byte(nil), e.packet[:n]...),
		PTS:      pts,
		Duration: time.Duration(e.granuleAdv) * time.Second / opusGranuleRate,
		Samples:  e.granuleAdv,
	})
}

// Event implements engine.Element. End-of-stream pads the trailing partial
// frame with silence and always yields at least one packet.
func (e *OpusEnc) Event(ev engine.Event) engine.FlowReturn {
	if ev.Type == engine.EventEOS && (len(e.pending) > 0 || e.frames == 0) {
		frame := make([]int16, e.frameLen)
		copy(frame, e.pending)
		e.pending = e.pending[:0]
		if ret := e.encodeFrame(frame); ret != engine.FlowOK {
			return ret
		}
	}
	return e.PushEvent(ev)
}
