package elements

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/streambridge/internal/engine"
)

func TestWAVEncWritesReadableFile(t *testing.T) {
	t.Parallel()

	location := filepath.Join(t.TempDir(), "out.wav")

	src := newSource(t, 16000, 1, nil)
	enc := NewWAVEnc("encoder")
	sink := NewFileSink("file-output")
	require.NoError(t, sink.SetProperty("location", location))
	p := newTestPipeline(t, src, enc, sink)

	play(t, p)
	pcm := sinePCM(16000, 1, 1600, 440)
	require.Equal(t, engine.FlowOK, src.PushBuffer(context.Background(), pcm))
	require.Equal(t, engine.FlowOK, src.EndOfStream())
	waitEOS(t, p)

	f, err := os.Open(location)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.EqualValues(t, 16000, dec.SampleRate)
	assert.EqualValues(t, 1, dec.NumChans)

	want := bytesToInt16(pcm)
	require.Len(t, buf.Data, len(want))
	for i := range want {
		require.Equal(t, int(want[i]), buf.Data[i], "sample %d", i)
	}
}

func TestWAVEncRequiresFileSink(t *testing.T) {
	t.Parallel()

	src := newSource(t, 16000, 1, nil)
	enc := NewWAVEnc("encoder")
	sink := NewFakeSink("sink")

	p := engine.NewPipeline("wav")
	t.Cleanup(func() { _ = p.Close() })
	require.NoError(t, p.Add(src, enc, sink))
	require.NoError(t, p.Link(src, enc))
	assert.Error(t, p.Link(enc, sink))
	assert.Nil(t, enc.Peer())
}

func TestFileSinkWritesBytes(t *testing.T) {
	t.Parallel()

	location := filepath.Join(t.TempDir(), "raw.pcm")
	src := newSource(t, 8000, 1, nil)
	sink := NewFileSink("file-output")
	require.NoError(t, sink.SetProperty("location", location))
	require.NoError(t, sink.SetProperty("sync", false))
	assert.Equal(t, location, sink.Location())
	p := newTestPipeline(t, src, sink)

	play(t, p)
	pcm := sinePCM(8000, 1, 500, 200)
	require.Equal(t, engine.FlowOK, src.PushBuffer(context.Background(), pcm))
	require.Equal(t, engine.FlowOK, src.EndOfStream())
	waitEOS(t, p)

	data, err := os.ReadFile(location)
	require.NoError(t, err)
	assert.Equal(t, pcm, data)
}

func TestFileSinkOpenFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	src := newSource(t, 8000, 1, nil)
	sink := NewFileSink("file-output")
	require.NoError(t, sink.SetProperty("location", filepath.Join(blocker, "out.pcm")))
	p := newTestPipeline(t, src, sink)

	require.Error(t, p.SetState(context.Background(), engine.StatePlaying))
	msg, ok := p.Bus().TimedPopFiltered(testTimeout, engine.MessageError)
	require.True(t, ok)
	assert.Equal(t, "file-output", msg.Source)
	assert.Contains(t, msg.Text, "Could not open file")
}

func TestRTPOverUDP(t *testing.T) {
	t.Parallel()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()
	port := conn.LocalAddr().(*net.UDPAddr).Port

	src := newSource(t, 48000, 1, nil)
	enc := NewOpusEnc("encoder")
	pay := NewRTPOpusPay("payloader")
	require.NoError(t, pay.SetProperty("pt", 111))
	require.NoError(t, pay.SetProperty("ssrc", 1234))
	sink := NewUDPSink("network-output")
	require.NoError(t, sink.SetProperty("host", "127.0.0.1"))
	require.NoError(t, sink.SetProperty("port", port))
	p := newTestPipeline(t, src, enc, pay, sink)

	play(t, p)
	require.Equal(t, engine.FlowOK, src.PushBuffer(context.Background(), sinePCM(48000, 1, 2880, 440)))
	require.Equal(t, engine.FlowOK, src.EndOfStream())
	waitEOS(t, p)

	buf := make([]byte, 1500)
	var packets []rtp.Packet
	for range 3 {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(testTimeout)))
		n, _, err := conn.ReadFrom(buf)
		require.NoError(t, err)

		var pkt rtp.Packet
		require.NoError(t, pkt.Unmarshal(append([]byte(nil), buf[:n]...)))
		packets = append(packets, pkt)
	}

	for i, pkt := range packets {
		assert.EqualValues(t, 111, pkt.PayloadType)
		assert.EqualValues(t, 1234, pkt.SSRC)
		assert.NotEmpty(t, pkt.Payload)
		if i > 0 {
			assert.Equal(t, packets[i-1].SequenceNumber+1, pkt.SequenceNumber)
			assert.Equal(t, packets[i-1].Timestamp+960, pkt.Timestamp)
		}
	}
}

func TestRTPOpusPayProperties(t *testing.T) {
	t.Parallel()

	pay := NewRTPOpusPay("payloader")
	assert.Error(t, pay.SetProperty("pt", 8))
	assert.Error(t, pay.SetProperty("mtu", 10))
	assert.Error(t, pay.SetProperty("ssrc", -1))
	assert.Error(t, pay.SetProperty("seqnum-offset", 1))
	assert.NoError(t, pay.SetProperty("mtu", "1400"))

	_, err := pay.Negotiate(engine.RawAudioCaps(48000, 1))
	assert.Error(t, err)
}

func TestTCPClientSinkStreamsOgg(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			received <- nil
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		received <- data
	}()

	src := newSource(t, 48000, 2, nil)
	sink := NewTCPClientSink("network-output")
	require.NoError(t, sink.SetProperty("host", "127.0.0.1"))
	require.NoError(t, sink.SetProperty("port", ln.Addr().(*net.TCPAddr).Port))
	p := newTestPipeline(t, src, NewOpusEnc("encoder"), NewOggMux("muxer"), sink)

	play(t, p)
	require.Equal(t, engine.FlowOK, src.PushBuffer(context.Background(), sinePCM(48000, 2, 960, 440)))
	require.Equal(t, engine.FlowOK, src.EndOfStream())
	waitEOS(t, p)
	require.NoError(t, p.SetState(context.Background(), engine.StateNull))

	var data []byte
	select {
	case data = <-received:
	case <-time.After(testTimeout):
		t.Fatal("server never saw the connection close")
	}

	// comment header and one 20 ms packet
	header, pages := readOggPages(t, bytes.NewReader(data))
	assert.EqualValues(t, 2, header.Channels)
	assert.Len(t, pages, 2)
}

func TestTCPClientSinkConnectionRefused(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	src := newSource(t, 48000, 2, nil)
	sink := NewTCPClientSink("network-output")
	require.NoError(t, sink.SetProperty("host", "127.0.0.1"))
	require.NoError(t, sink.SetProperty("port", port))
	p := newTestPipeline(t, src, NewOpusEnc("encoder"), NewOggMux("muxer"), sink)

	play(t, p)
	msg := waitError(t, p)
	assert.Equal(t, "network-output", msg.Source)
	assert.Contains(t, msg.Text, "Could not connect")

	// data pushed after the failure stops the streaming goroutine
	require.Equal(t, engine.FlowOK, src.PushBuffer(context.Background(), sinePCM(48000, 2, 960, 440)))
	streamErr := waitError(t, p)
	assert.Equal(t, "audio-source", streamErr.Source)
}

func TestNetSinkRequiresPort(t *testing.T) {
	t.Parallel()

	sink := NewUDPSink("network-output")
	assert.Error(t, sink.Start(context.Background()))
	assert.Error(t, sink.SetProperty("port", 70000))
	assert.Error(t, sink.SetProperty("connect-timeout", "0s"))
	assert.Error(t, sink.SetProperty("ttl", 4))
	require.NoError(t, sink.Stop())
}

func TestFakeSinkCounts(t *testing.T) {
	t.Parallel()

	src := newSource(t, 8000, 1, map[string]any{"frame-duration": "1ms"})
	sink := NewFakeSink("sink")
	require.NoError(t, sink.SetProperty("silent", true))
	assert.Error(t, sink.SetProperty("dump", true))
	p := newTestPipeline(t, src, sink)

	play(t, p)
	require.Equal(t, engine.FlowOK, src.PushBuffer(context.Background(), make([]byte, 1000)))
	require.Equal(t, engine.FlowOK, src.EndOfStream())
	waitEOS(t, p)

	buffers, n := sink.Received()
	assert.EqualValues(t, 63, buffers)
	assert.EqualValues(t, 1000, n)
}

func TestFactoriesRegistered(t *testing.T) {
	t.Parallel()

	factories := engine.Factories()
	for _, name := range []string{
		FactoryAppSrc, FactoryAudioConvert, FactoryAudioResample, FactoryOpusEnc,
		FactoryOggMux, FactoryWAVEnc, FactoryRTPOpusPay, FactoryFileSink,
		FactoryUDPSink, FactoryTCPClientSink, FactoryFakeSink,
	} {
		assert.Contains(t, factories, name)
	}

	elem, err := engine.Make(FactoryOpusEnc, "")
	require.NoError(t, err)
	assert.IsType(t, &OpusEnc{}, elem)
	assert.Equal(t, FactoryOpusEnc, elem.Factory())

	_, err = engine.Make("pulsesink", "out")
	assert.Error(t, err)
}
