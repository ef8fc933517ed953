package elements

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pion/webrtc/v3/pkg/media/oggreader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/streambridge/internal/engine"
)

// readOggPages parses an Ogg/Opus stream and returns its identification
// header and the payload of every following page
func readOggPages(t *testing.T, r io.Reader) (*oggreader.OggHeader, [][]byte) {
	t.Helper()

	reader, header, err := oggreader.NewWith(r)
	require.NoError(t, err)

	var pages [][]byte
	for {
		payload, _, err := reader.ParseNextPage()
		if err == io.EOF {
			return header, pages
		}
		require.NoError(t, err)
		pages = append(pages, payload)
	}
}

// lastPageIsEOS reports whether the final page carries the end-of-stream flag
func lastPageIsEOS(data []byte) bool {
	idx := bytes.LastIndex(data, []byte("OggS"))
	if idx < 0 || idx+5 >= len(data) {
		return false
	}
	return data[idx+5]&0x04 != 0
}

func TestOggMuxWritesFile(t *testing.T) {
	t.Parallel()

	location := filepath.Join(t.TempDir(), "nested", "out.ogg")

	src := newSource(t, 48000, 2, nil)
	enc := NewOpusEnc("encoder")
	require.NoError(t, enc.SetProperty("bitrate", 256000))
	mux := NewOggMux("muxer")
	sink := NewFileSink("file-output")
	require.NoError(t, sink.SetProperty("location", location))
	p := newTestPipeline(t, src, enc, mux, sink)

	play(t, p)
	require.Equal(t, engine.FlowOK, src.PushBuffer(context.Background(), sinePCM(48000, 2, 4800, 440)))
	require.Equal(t, engine.FlowOK, src.EndOfStream())
	waitEOS(t, p)
	require.NoError(t, p.SetState(context.Background(), engine.StateNull))

	data, err := os.ReadFile(location)
	require.NoError(t, err)

	header, pages := readOggPages(t, bytes.NewReader(data))
	assert.EqualValues(t, 2, header.Channels)
	assert.EqualValues(t, 48000, header.SampleRate)

	// comment header followed by one page per 20 ms packet
	require.Len(t, pages, 6)
	assert.True(t, bytes.HasPrefix(pages[0], []byte("OpusTags")))
	assert.True(t, lastPageIsEOS(data), "final page must carry end-of-stream")
}

func TestOggMuxStreamsPages(t *testing.T) {
	t.Parallel()

	src := newSource(t, 48000, 1, nil)
	enc := NewOpusEnc("encoder")
	mux := NewOggMux("muxer")
	sink := newCollectSink("sink")
	p := newTestPipeline(t, src, enc, mux, sink)
	assert.Equal(t, engine.MediaOgg, sink.Caps().Media)

	play(t, p)
	require.Equal(t, engine.FlowOK, src.PushBuffer(context.Background(), sinePCM(48000, 1, 2400, 440)))
	require.Equal(t, engine.FlowOK, src.EndOfStream())
	waitEOS(t, p)

	// two full 20 ms frames and a padded half frame
	header, pages := readOggPages(t, bytes.NewReader(sink.bytes()))
	assert.EqualValues(t, 1, header.Channels)
	assert.Len(t, pages, 4)
}

func TestOggMuxHeadersWithoutAudio(t *testing.T) {
	t.Parallel()

	src := newSource(t, 48000, 1, nil)
	mux := NewOggMux("muxer")
	sink := newCollectSink("sink")
	p := newTestPipeline(t, src, NewOpusEnc("encoder"), mux, sink)

	play(t, p)
	require.Equal(t, engine.FlowOK, src.EndOfStream())
	waitEOS(t, p)

	_, pages := readOggPages(t, bytes.NewReader(sink.bytes()))
	// comment header plus the single padded frame
	assert.Len(t, pages, 2)
}

func TestOggMuxLacesLargePackets(t *testing.T) {
	t.Parallel()

	mux := NewOggMux("muxer")
	mux.SetCaps(engine.Caps{Media: engine.MediaOpus, Rate: 48000, Channels: 2})
	sink := newCollectSink("sink")
	p := newTestPipeline(t, mux, sink)
	play(t, p)

	// a 20 ms packet at 256 kbps spans several 255-byte lacing segments
	packet := make([]byte, 640)
	for i := range packet {
		packet[i] = byte(i)
	}
	require.Equal(t, engine.FlowOK, mux.Chain(&engine.Buffer{Data: packet, Samples: 960}))
	require.Equal(t, engine.FlowOK, mux.Event(engine.Event{Type: engine.EventEOS}))
	waitEOS(t, p)

	_, pages := readOggPages(t, bytes.NewReader(sink.bytes()))
	require.Len(t, pages, 2)
	assert.Equal(t, packet, pages[1])

	_, err := mux.Negotiate(engine.RawAudioCaps(48000, 2))
	assert.Error(t, err)
}

func TestOggMuxDownstreamFailure(t *testing.T) {
	t.Parallel()

	src := newSource(t, 48000, 1, nil)
	mux := NewOggMux("muxer")
	sink := newCollectSink("sink")
	sink.setReturn(engine.FlowError)
	p := newTestPipeline(t, src, NewOpusEnc("encoder"), mux, sink)

	play(t, p)
	require.Equal(t, engine.FlowOK, src.PushBuffer(context.Background(), sinePCM(48000, 1, 960, 440)))

	msg := waitError(t, p)
	assert.Equal(t, "audio-source", msg.Source)
}
