package elements

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/streambridge/internal/engine"
	"github.com/tphakala/streambridge/internal/errors"
)

func TestAppSrcPushesWholeFramesThenRemainder(t *testing.T) {
	t.Parallel()

	src := newSource(t, 48000, 2, nil)
	sink := newCollectSink("sink")
	p := newTestPipeline(t, src, sink)
	play(t, p)

	// 20 ms at 48 kHz stereo is 3840 bytes
	assert.Equal(t, engine.FlowOK, src.PushBuffer(context.Background(), make([]byte, 10000)))
	assert.Equal(t, engine.FlowOK, src.EndOfStream())
	waitEOS(t, p)

	assert.Equal(t, []int{3840, 3840, 2320}, sink.sizes())
	bufs := sink.buffers()
	assert.Equal(t, 20*time.Millisecond, bufs[1].PTS)
	assert.Equal(t, 960, bufs[0].Samples)

	assert.Equal(t, engine.FlowEOS, src.PushBuffer(context.Background(), []byte{0, 0, 0, 0}))
}

func TestAppSrcDropsTornSampleFrame(t *testing.T) {
	t.Parallel()

	src := newSource(t, 48000, 2, nil)
	sink := newCollectSink("sink")
	p := newTestPipeline(t, src, sink)
	play(t, p)

	require.Equal(t, engine.FlowOK, src.PushBuffer(context.Background(), make([]byte, 3843)))
	require.Equal(t, engine.FlowOK, src.EndOfStream())

	msg, ok := p.Bus().TimedPopFiltered(testTimeout, engine.MessageWarning|engine.MessageError)
	require.True(t, ok, "no warning for the dropped tail")
	assert.Equal(t, engine.MessageWarning, msg.Type, msg.String())
	assert.Equal(t, "audio-source", msg.Source)
	assert.Equal(t, "3 trailing bytes", msg.Debug)
	waitEOS(t, p)

	assert.Equal(t, []int{3840}, sink.sizes())
	assert.Equal(t, 0, src.QueuedBytes())
}

func TestAppSrcCopiesInput(t *testing.T) {
	t.Parallel()

	src := newSource(t, 8000, 1, map[string]any{"frame-duration": "1ms"})
	sink := newCollectSink("sink")
	p := newTestPipeline(t, src, sink)
	play(t, p)

	data := []byte{1, 2, 3, 4}
	require.Equal(t, engine.FlowOK, src.PushBuffer(context.Background(), data))
	data[0] = 99
	require.Equal(t, engine.FlowOK, src.EndOfStream())
	waitEOS(t, p)

	assert.Equal(t, []byte{1, 2, 3, 4}, sink.bytes())
}

func TestAppSrcNonBlockingRejectsWhenFull(t *testing.T) {
	t.Parallel()

	src := newSource(t, 8000, 1, map[string]any{"block": false, "max-bytes": 64})
	sink := newGatedSink("sink")
	p := newTestPipeline(t, src, sink)
	play(t, p)

	ctx := context.Background()
	require.Equal(t, engine.FlowOK, src.PushBuffer(ctx, make([]byte, 64)))
	<-sink.entered // streaming goroutine now holds the first frame

	require.Equal(t, engine.FlowOK, src.PushBuffer(ctx, make([]byte, 64)))
	assert.Equal(t, engine.FlowError, src.PushBuffer(ctx, make([]byte, 2)))

	sink.release()
	require.NoError(t, p.SetState(ctx, engine.StateNull))
}

func TestAppSrcBlocksUntilSpaceFrees(t *testing.T) {
	t.Parallel()

	src := newSource(t, 8000, 1, map[string]any{"max-bytes": 64})
	sink := newGatedSink("sink")
	p := newTestPipeline(t, src, sink)
	play(t, p)

	ctx := context.Background()
	require.Equal(t, engine.FlowOK, src.PushBuffer(ctx, make([]byte, 64)))
	<-sink.entered
	require.Equal(t, engine.FlowOK, src.PushBuffer(ctx, make([]byte, 64)))

	result := make(chan engine.FlowReturn, 1)
	go func() { result <- src.PushBuffer(ctx, make([]byte, 4)) }()

	select {
	case ret := <-result:
		t.Fatalf("push returned %s while the queue was full", ret)
	case <-time.After(50 * time.Millisecond):
	}

	sink.release()
	select {
	case ret := <-result:
		assert.Equal(t, engine.FlowOK, ret)
	case <-time.After(testTimeout):
		t.Fatal("push did not resume after space freed")
	}

	require.Equal(t, engine.FlowOK, src.EndOfStream())
	waitEOS(t, p)
	assert.Equal(t, 132, len(sink.bytes()))
}

func TestAppSrcBlockedPushAborts(t *testing.T) {
	t.Parallel()

	t.Run("context cancelled", func(t *testing.T) {
		t.Parallel()

		src := newSource(t, 8000, 1, map[string]any{"max-bytes": 64})
		sink := newGatedSink("sink")
		p := newTestPipeline(t, src, sink)
		play(t, p)

		require.Equal(t, engine.FlowOK, src.PushBuffer(context.Background(), make([]byte, 64)))
		<-sink.entered
		require.Equal(t, engine.FlowOK, src.PushBuffer(context.Background(), make([]byte, 64)))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		assert.Equal(t, engine.FlowFlushing, src.PushBuffer(ctx, make([]byte, 4)))

		sink.release()
	})

	t.Run("pipeline stopped", func(t *testing.T) {
		t.Parallel()

		src := newSource(t, 8000, 1, map[string]any{"max-bytes": 64})
		sink := newGatedSink("sink")
		p := newTestPipeline(t, src, sink)
		play(t, p)

		require.Equal(t, engine.FlowOK, src.PushBuffer(context.Background(), make([]byte, 64)))
		<-sink.entered
		require.Equal(t, engine.FlowOK, src.PushBuffer(context.Background(), make([]byte, 64)))

		result := make(chan engine.FlowReturn, 1)
		go func() { result <- src.PushBuffer(context.Background(), make([]byte, 4)) }()
		time.Sleep(20 * time.Millisecond)

		require.NoError(t, p.SetState(context.Background(), engine.StateNull))
		select {
		case ret := <-result:
			assert.Equal(t, engine.FlowFlushing, ret)
		case <-time.After(testTimeout):
			t.Fatal("blocked push survived pipeline stop")
		}
	})
}

func TestAppSrcDownstreamErrorPausesStreaming(t *testing.T) {
	t.Parallel()

	src := newSource(t, 8000, 1, map[string]any{"frame-duration": "1ms"})
	sink := newCollectSink("sink")
	sink.setReturn(engine.FlowError)
	p := newTestPipeline(t, src, sink)
	play(t, p)

	require.Equal(t, engine.FlowOK, src.PushBuffer(context.Background(), make([]byte, 16)))

	msg := waitError(t, p)
	assert.Equal(t, "audio-source", msg.Source)
	assert.Contains(t, msg.Debug, "error")

	require.Eventually(t, func() bool {
		return src.PushBuffer(context.Background(), make([]byte, 2)) == engine.FlowFlushing
	}, testTimeout, 5*time.Millisecond)
}

func TestAppSrcRejectsPushWhenNotRunning(t *testing.T) {
	t.Parallel()

	src := newSource(t, 8000, 1, nil)
	assert.Equal(t, engine.FlowFlushing, src.PushBuffer(context.Background(), []byte{0, 0}))
	assert.Equal(t, engine.FlowFlushing, src.EndOfStream())
	assert.Equal(t, 0, src.QueuedBytes())
}

func TestAppSrcAllocateBuffer(t *testing.T) {
	t.Parallel()

	src := newSource(t, 8000, 1, map[string]any{"max-bytes": 100})

	buf, err := src.AllocateBuffer(800)
	require.NoError(t, err)
	assert.Len(t, buf, 800)

	for _, n := range []int{-1, 801} {
		_, err := src.AllocateBuffer(n)
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryBuffer))
	}
}

func TestAppSrcProperties(t *testing.T) {
	t.Parallel()

	src := NewAppSrc("src")
	tests := []struct {
		key   string
		value any
		ok    bool
	}{
		{"caps", "audio/x-raw,format=S16LE,rate=16000,channels=1", true},
		{"caps", "audio/x-raw,format=S16LE,rate=0,channels=1", false},
		{"caps", "audio/x-opus", false},
		{"max-bytes", 0, false},
		{"max-bytes", "4096", true},
		{"block", "maybe", false},
		{"is-live", true, true},
		{"format", "time", true},
		{"format", "buffers", false},
		{"frame-duration", "-1ms", false},
		{"no-such-property", 1, false},
	}
	for _, tt := range tests {
		err := src.SetProperty(tt.key, tt.value)
		if tt.ok {
			assert.NoError(t, err, "%s=%v", tt.key, tt.value)
		} else {
			assert.Error(t, err, "%s=%v", tt.key, tt.value)
		}
	}

	assert.Equal(t, engine.RawAudioCaps(16000, 1), src.Caps())
	v, ok := src.Property("max-bytes")
	require.True(t, ok)
	assert.Equal(t, "4096", v)
}

func TestAppSrcStartRequiresCaps(t *testing.T) {
	t.Parallel()

	src := NewAppSrc("src")
	require.Error(t, src.Start(context.Background()))
}
