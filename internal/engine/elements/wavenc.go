package elements

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/tphakala/streambridge/internal/engine"
)

const wavBitDepth = 16

// WAVEnc writes 16-bit PCM into a WAV file owned by the downstream
// filesink. The header sizes are patched when end-of-stream arrives, so a
// seekable file is required.
type WAVEnc struct {
	engine.Base

	location string
	format   *audio.Format
	file     *os.File
	encoder  *wav.Encoder
}

// NewWAVEnc creates a WAV encoder
func NewWAVEnc(name string) *WAVEnc {
	e := &WAVEnc{}
	e.Init(FactoryWAVEnc, name)
	return e
}

// Negotiate implements engine.Element
func (e *WAVEnc) Negotiate(upstream engine.Caps) (engine.Caps, error) {
	if err := requireRaw(e.Name(), upstream); err != nil {
		return engine.Caps{}, err
	}
	e.format = &audio.Format{NumChannels: upstream.Channels, SampleRate: upstream.Rate}
	return engine.Caps{Media: engine.MediaWAV, Rate: upstream.Rate, Channels: upstream.Channels}, nil
}

// OnLinked implements engine.LinkObserver
func (e *WAVEnc) OnLinked(downstream engine.Element) error {
	target, ok := downstream.(fileTarget)
	if !ok {
		return fmt.Errorf("%s requires a seekable file sink, got %s", e.Name(), downstream.Factory())
	}
	location, err := target.claim(e.Name())
	if err != nil {
		return err
	}
	e.location = location
	return nil
}

// Start creates the file and writes a provisional header
func (e *WAVEnc) Start(context.Context) error {
	if err := os.MkdirAll(filepath.Dir(e.location), 0o755); err != nil {
		e.PostError(fmt.Sprintf("Could not open file %q for writing.", e.location), err.Error())
		return err
	}
	f, err := os.Create(e.location)
	if err != nil {
		e.PostError(fmt.Sprintf("Could not open file %q for writing.", e.location), err.Error())
		return err
	}
	e.file = f
	e.encoder = wav.NewEncoder(f, e.format.SampleRate, wavBitDepth, e.format.NumChannels, 1)
	return nil
}

// Chain implements engine.Element
func (e *WAVEnc) Chain(buf *engine.Buffer) engine.FlowReturn {
	if e.encoder == nil {
		return engine.FlowFlushing
	}

	samples := bytesToInt16(buf.Data)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	err := e.encoder.Write(&audio.IntBuffer{Data: data, Format: e.format, SourceBitDepth: wavBitDepth})
	if err != nil {
		e.PostError(fmt.Sprintf("Error while writing to file %q.", e.location), err.Error())
		return engine.FlowError
	}
	return engine.FlowOK
}

// Event implements engine.Element
func (e *WAVEnc) Event(ev engine.Event) engine.FlowReturn {
	if ev.Type == engine.EventEOS && e.encoder != nil {
		if err := e.finish(); err != nil {
			e.PostError(fmt.Sprintf("Error while writing to file %q.", e.location), err.Error())
			return engine.FlowError
		}
	}
	return e.PushEvent(ev)
}

// Stop finalizes the file if end-of-stream never arrived
func (e *WAVEnc) Stop() error {
	if e.encoder == nil {
		return nil
	}
	return e.finish()
}

func (e *WAVEnc) finish() error {
	enc, f := e.encoder, e.file
	e.encoder, e.file = nil, nil

	encErr := enc.Close()
	closeErr := f.Close()
	if encErr != nil {
		return encErr
	}
	return closeErr
}
