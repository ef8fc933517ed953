// Package elements provides the processing stages available to pipelines:
// a push source, PCM conversion and resampling, Opus encoding, Ogg, WAV and
// RTP framing, and file, UDP, TCP and discarding sinks.
package elements

import "github.com/tphakala/streambridge/internal/engine"

// Factory names
const (
	FactoryAppSrc        = "appsrc"
	FactoryAudioConvert  = "audioconvert"
	FactoryAudioResample = "audioresample"
	FactoryOpusEnc       = "opusenc"
	FactoryOggMux        = "oggmux"
	FactoryWAVEnc        = "wavenc"
	FactoryRTPOpusPay    = "rtpopuspay"
	FactoryFileSink      = "filesink"
	FactoryUDPSink       = "udpsink"
	FactoryTCPClientSink = "tcpclientsink"
	FactoryFakeSink      = "fakesink"
)

func init() {
	engine.Register(FactoryAppSrc, func(name string) engine.Element { return NewAppSrc(name) })
	engine.Register(FactoryAudioConvert, func(name string) engine.Element { return NewAudioConvert(name) })
	engine.Register(FactoryAudioResample, func(name string) engine.Element { return NewAudioResample(name) })
	engine.Register(FactoryOpusEnc, func(name string) engine.Element { return NewOpusEnc(name) })
	engine.Register(FactoryOggMux, func(name string) engine.Element { return NewOggMux(name) })
	engine.Register(FactoryWAVEnc, func(name string) engine.Element { return NewWAVEnc(name) })
	engine.Register(FactoryRTPOpusPay, func(name string) engine.Element { return NewRTPOpusPay(name) })
	engine.Register(FactoryFileSink, func(name string) engine.Element { return NewFileSink(name) })
	engine.Register(FactoryUDPSink, func(name string) engine.Element { return NewUDPSink(name) })
	engine.Register(FactoryTCPClientSink, func(name string) engine.Element { return NewTCPClientSink(name) })
	engine.Register(FactoryFakeSink, func(name string) engine.Element { return NewFakeSink(name) })
}
