package elements

import (
	"bytes"
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tphakala/streambridge/internal/engine"
)

const testTimeout = 5 * time.Second

// collectSink records every buffer. With a gate it blocks in Chain until
// released, signalling entered first.
type collectSink struct {
	engine.Base

	mu      sync.Mutex
	bufs    []*engine.Buffer
	ret     engine.FlowReturn
	gate    chan struct{}
	once    sync.Once
	entered chan struct{}
}

func newCollectSink(name string) *collectSink {
	c := &collectSink{ret: engine.FlowOK}
	c.Init("collectsink", name)
	return c
}

func newGatedSink(name string) *collectSink {
	c := newCollectSink(name)
	c.gate = make(chan struct{})
	c.entered = make(chan struct{}, 1)
	return c
}

func (c *collectSink) Chain(buf *engine.Buffer) engine.FlowReturn {
	if c.entered != nil {
		select {
		case c.entered <- struct{}{}:
		default:
		}
	}
	if c.gate != nil {
		<-c.gate
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.bufs = append(c.bufs, buf)
	return c.ret
}

func (c *collectSink) Event(ev engine.Event) engine.FlowReturn {
	if ev.Type == engine.EventEOS {
		c.PostEOS()
	}
	return engine.FlowOK
}

func (c *collectSink) Unlock() { c.release() }

func (c *collectSink) release() {
	if c.gate != nil {
		c.once.Do(func() { close(c.gate) })
	}
}

func (c *collectSink) setReturn(ret engine.FlowReturn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ret = ret
}

func (c *collectSink) buffers() []*engine.Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*engine.Buffer(nil), c.bufs...)
}

func (c *collectSink) sizes() []int {
	var sizes []int
	for _, b := range c.buffers() {
		sizes = append(sizes, len(b.Data))
	}
	return sizes
}

func (c *collectSink) bytes() []byte {
	var out bytes.Buffer
	for _, b := range c.buffers() {
		out.Write(b.Data)
	}
	return out.Bytes()
}

func newTestPipeline(t *testing.T, elems ...engine.Element) *engine.Pipeline {
	t.Helper()

	p := engine.NewPipeline("test-pipeline")
	require.NoError(t, p.Add(elems...))
	require.NoError(t, p.LinkMany(elems...))
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func play(t *testing.T, p *engine.Pipeline) {
	t.Helper()
	require.NoError(t, p.SetState(context.Background(), engine.StatePlaying))
}

// waitEOS waits for end-of-stream and fails on an error message
func waitEOS(t *testing.T, p *engine.Pipeline) {
	t.Helper()
	msg, ok := p.Bus().TimedPopFiltered(testTimeout, engine.MessageEOS|engine.MessageError)
	require.True(t, ok, "no end-of-stream within timeout")
	require.Equal(t, engine.MessageEOS, msg.Type, msg.String())
}

func waitError(t *testing.T, p *engine.Pipeline) engine.Message {
	t.Helper()
	msg, ok := p.Bus().TimedPopFiltered(testTimeout, engine.MessageError)
	require.True(t, ok, "no error within timeout")
	return msg
}

func newSource(t *testing.T, rate, channels int, props map[string]any) *AppSrc {
	t.Helper()

	src := NewAppSrc("audio-source")
	require.NoError(t, src.SetProperty("caps", engine.RawAudioCaps(rate, channels).String()))
	for k, v := range props {
		require.NoError(t, src.SetProperty(k, v))
	}
	return src
}

// sinePCM returns S16LE interleaved samples of a sine at hz
func sinePCM(rate, channels, frames int, hz float64) []byte {
	samples := make([]int16, frames*channels)
	for f := range frames {
		v := int16(8000 * math.Sin(2*math.Pi*hz*float64(f)/float64(rate)))
		for ch := range channels {
			samples[f*channels+ch] = v
		}
	}
	return int16ToBytes(samples)
}
