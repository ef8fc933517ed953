package elements

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3/pkg/media/oggwriter"
	"github.com/tphakala/streambridge/internal/engine"
	"github.com/tphakala/streambridge/internal/logger"
)

// OggMux wraps Opus packets in an Ogg container.
//
// Linked to a filesink it writes the sink's location itself, so closing the
// writer can seek back and flag the final page as end-of-stream. Linked to
// any other sink it pushes page bytes downstream as they are produced.
type OggMux struct {
	engine.Base

	location  string // set when writing straight to a file sink
	channels  int
	writer    *oggwriter.OggWriter
	timestamp uint32
	flow      engine.FlowReturn // result of the last downstream push in stream mode
}

// NewOggMux creates an Ogg/Opus muxer
func NewOggMux(name string) *OggMux {
	m := &OggMux{}
	m.Init(FactoryOggMux, name)
	return m
}

// Negotiate implements engine.Element
func (m *OggMux) Negotiate(upstream engine.Caps) (engine.Caps, error) {
	if err := requireMedia(m.Name(), upstream, engine.MediaOpus); err != nil {
		return engine.Caps{}, err
	}
	m.channels = upstream.Channels
	return engine.Caps{Media: engine.MediaOgg, Rate: upstream.Rate, Channels: upstream.Channels}, nil
}

// OnLinked implements engine.LinkObserver
func (m *OggMux) OnLinked(downstream engine.Element) error {
	target, ok := downstream.(fileTarget)
	if !ok {
		return nil
	}
	location, err := target.claim(m.Name())
	if err != nil {
		return err
	}
	m.location = location
	return nil
}

// Start opens the output file in file mode. Stream mode writes the
// headers together with the first packet.
func (m *OggMux) Start(context.Context) error {
	m.timestamp = 0
	m.flow = engine.FlowOK
	if m.location == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(m.location), 0o755); err != nil {
		m.PostError(fmt.Sprintf("Could not open file %q for writing.", m.location), err.Error())
		return err
	}
	w, err := oggwriter.New(m.location, opusGranuleRate, uint16(m.channels))
	if err != nil {
		m.PostError(fmt.Sprintf("Could not open file %q for writing.", m.location), err.Error())
		return err
	}
	m.writer = w

	GetLogger().Debug("ogg file opened",
		logger.String("element", m.Name()),
		logger.String("location", m.location))
	return nil
}

// Chain implements engine.Element
func (m *OggMux) Chain(buf *engine.Buffer) engine.FlowReturn {
	if ret := m.ensureStreamWriter(); ret != engine.FlowOK {
		return ret
	}

	pkt := &rtp.Packet{
		Header:  rtp.Header{Version: 2, Timestamp: m.timestamp},
		Payload: buf.Data,
	}
	m.timestamp += uint32(buf.Samples)

	if err := m.writer.WriteRTP(pkt); err != nil {
		return m.writeFailed(err)
	}
	return m.flow
}

// ensureStreamWriter creates the writer in stream mode, which emits the
// identification and comment headers downstream immediately
func (m *OggMux) ensureStreamWriter() engine.FlowReturn {
	if m.writer != nil {
		return engine.FlowOK
	}
	if m.location != "" {
		return engine.FlowFlushing
	}

	w, err := oggwriter.NewWith(&pushWriter{mux: m}, opusGranuleRate, uint16(m.channels))
	if err != nil {
		return m.writeFailed(err)
	}
	m.writer = w
	return m.flow
}

func (m *OggMux) writeFailed(err error) engine.FlowReturn {
	if m.flow != engine.FlowOK {
		// downstream already refused the data and reported why
		return m.flow
	}
	if m.location != "" {
		m.PostError(fmt.Sprintf("Error while writing to file %q.", m.location), err.Error())
	} else {
		m.PostError("Could not write Ogg page.", err.Error())
	}
	return engine.FlowError
}

// Event implements engine.Element. End-of-stream finalizes the container
// before forwarding.
func (m *OggMux) Event(ev engine.Event) engine.FlowReturn {
	if ev.Type == engine.EventEOS {
		if ret := m.ensureStreamWriter(); ret != engine.FlowOK {
			return ret
		}
		if err := m.closeWriter(); err != nil {
			return m.writeFailed(err)
		}
	}
	return m.PushEvent(ev)
}

// Stop closes a writer left open when the pipeline stops without end-of-stream
func (m *OggMux) Stop() error {
	return m.closeWriter()
}

func (m *OggMux) closeWriter() error {
	if m.writer == nil {
		return nil
	}
	w := m.writer
	m.writer = nil
	return w.Close()
}

// pushWriter turns oggwriter output into downstream buffers
type pushWriter struct {
	mux *OggMux
}

func (w *pushWriter) Write(p []byte) (int, error) {
	ret := w.mux.Push(&engine.Buffer{Data: append([]byte(nil), p...)})
	if ret != engine.FlowOK {
		w.mux.flow = ret
		return 0, fmt.Errorf("downstream returned %s", ret)
	}
	return len(p), nil
}
