package elements

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"
	"github.com/tphakala/streambridge/internal/engine"
	"github.com/tphakala/streambridge/internal/errors"
	"github.com/tphakala/streambridge/internal/logger"
)

const (
	defaultMaxBytes      = 200000
	defaultFrameDuration = 20 * time.Millisecond

	// allocationFactor bounds AllocateBuffer relative to max-bytes
	allocationFactor = 8
)

// AppSrc is the ingestion point of a pipeline. Producers push raw bytes
// into a bounded queue; a streaming goroutine reads whole frames from it
// and drives the rest of the pipeline synchronously.
type AppSrc struct {
	engine.Base

	mu            sync.Mutex
	cond          *sync.Cond
	queue         *ringbuffer.RingBuffer
	maxBytes      int
	block         bool
	isLive        bool
	frameDuration time.Duration

	started  bool
	flushing bool
	eos      bool
	errored  bool

	done      chan struct{}
	stopAfter func() bool
	samples   int64
}

// NewAppSrc creates an appsrc with blocking enabled
func NewAppSrc(name string) *AppSrc {
	s := &AppSrc{
		maxBytes:      defaultMaxBytes,
		block:         true,
		frameDuration: defaultFrameDuration,
	}
	s.cond = sync.NewCond(&s.mu)
	s.Init(FactoryAppSrc, name)
	s.StoreProperty("max-bytes", s.maxBytes)
	s.StoreProperty("block", s.block)
	s.StoreProperty("frame-duration", s.frameDuration)
	return s
}

// SetProperty implements engine.Element
func (s *AppSrc) SetProperty(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return engine.InvalidPropertyError(s.Name(), key, value, fmt.Errorf("element is running"))
	}

	switch key {
	case "caps":
		str, err := engine.StringProperty(value)
		if err != nil {
			return engine.InvalidPropertyError(s.Name(), key, value, err)
		}
		caps, err := engine.ParseCaps(str)
		if err != nil {
			return err
		}
		if err := requireRaw(s.Name(), caps); err != nil {
			return engine.InvalidPropertyError(s.Name(), key, value, err)
		}
		s.SetCaps(caps)
	case "max-bytes":
		n, err := engine.IntProperty(value)
		if err == nil && n <= 0 {
			err = fmt.Errorf("must be positive")
		}
		if err != nil {
			return engine.InvalidPropertyError(s.Name(), key, value, err)
		}
		s.maxBytes = n
	case "block":
		b, err := engine.BoolProperty(value)
		if err != nil {
			return engine.InvalidPropertyError(s.Name(), key, value, err)
		}
		s.block = b
	case "is-live":
		b, err := engine.BoolProperty(value)
		if err != nil {
			return engine.InvalidPropertyError(s.Name(), key, value, err)
		}
		s.isLive = b
	case "frame-duration":
		d, err := engine.DurationProperty(value)
		if err == nil && d <= 0 {
			err = fmt.Errorf("must be positive")
		}
		if err != nil {
			return engine.InvalidPropertyError(s.Name(), key, value, err)
		}
		s.frameDuration = d
	case "format":
		// Timestamps are always derived from byte offsets; both names are accepted
		if str, err := engine.StringProperty(value); err != nil || (str != "bytes" && str != "time") {
			return engine.InvalidPropertyError(s.Name(), key, value, fmt.Errorf("must be bytes or time"))
		}
	default:
		return engine.UnknownPropertyError(s.Name(), key)
	}

	s.StoreProperty(key, value)
	return nil
}

// Chain implements engine.Element; a source has no upstream
func (s *AppSrc) Chain(*engine.Buffer) engine.FlowReturn {
	return engine.FlowNotLinked
}

// Start allocates the queue and launches the streaming goroutine
func (s *AppSrc) Start(ctx context.Context) error {
	caps := s.Caps()
	if caps.IsZero() {
		return engine.ConstructionError(fmt.Errorf("%s has no caps", s.Name()), s.Name(), "start")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.maxBytes < caps.BytesPerFrame() {
		return engine.ConstructionError(fmt.Errorf("max-bytes %d cannot hold one sample frame", s.maxBytes), s.Name(), "start")
	}
	s.queue = ringbuffer.New(s.maxBytes)
	s.started = true
	s.flushing = false
	s.eos = false
	s.errored = false
	s.samples = 0
	s.done = make(chan struct{})
	s.stopAfter = context.AfterFunc(ctx, s.Unlock)

	go s.loop(caps, s.frameBytes(caps), s.done)
	return nil
}

// frameBytes is the read granularity, capped so a frame always fits the queue
func (s *AppSrc) frameBytes(caps engine.Caps) int {
	bpf := caps.BytesPerFrame()
	frames := int(int64(caps.Rate) * int64(s.frameDuration) / int64(time.Second))
	return min(max(frames, 1)*bpf, s.maxBytes-s.maxBytes%bpf)
}

// Unlock wakes blocked producers and the streaming goroutine
func (s *AppSrc) Unlock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushing = true
	s.cond.Broadcast()
}

// Stop joins the streaming goroutine and drops queued data
func (s *AppSrc) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.flushing = true
	s.cond.Broadcast()
	done := s.done
	stopAfter := s.stopAfter
	s.mu.Unlock()

	stopAfter()
	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	s.queue.Reset()
	return nil
}

// AllocateBuffer returns a pipeline-side buffer of n bytes
func (s *AppSrc) AllocateBuffer(n int) ([]byte, error) {
	s.mu.Lock()
	limit := s.maxBytes * allocationFactor
	s.mu.Unlock()

	if n < 0 || n > limit {
		return nil, errors.Newf("cannot allocate buffer of %d bytes (limit %d)", n, limit).
			Component(ComponentElements).
			Category(errors.CategoryBuffer).
			Context("element", s.Name()).
			Context("requested_bytes", n).
			Build()
	}
	return make([]byte, n), nil
}

// PushBuffer queues a copy of data. When the queue is full it blocks
// until space frees up, the element flushes or ctx is done; with block
// disabled a full queue returns FlowError instead.
func (s *AppSrc) PushBuffer(ctx context.Context, data []byte) engine.FlowReturn {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ret := s.acceptingLocked(); ret != engine.FlowOK {
		return ret
	}
	if len(data) == 0 {
		return engine.FlowOK
	}
	if !s.block && s.queue.Free() < len(data) {
		return engine.FlowError
	}

	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	for len(data) > 0 {
		if ret := s.acceptingLocked(); ret != engine.FlowOK {
			return ret
		}
		free := s.queue.Free()
		if free == 0 {
			if ctx.Err() != nil {
				return engine.FlowFlushing
			}
			s.cond.Wait()
			continue
		}

		n, err := s.queue.Write(data[:min(free, len(data))])
		if err != nil {
			GetLogger().Warn("appsrc queue write failed",
				logger.String("element", s.Name()),
				logger.Error(err))
			return engine.FlowError
		}
		data = data[n:]
		s.cond.Broadcast()
	}
	return engine.FlowOK
}

// EndOfStream queues end-of-stream behind the data already pushed
func (s *AppSrc) EndOfStream() engine.FlowReturn {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ret := s.acceptingLocked(); ret != engine.FlowOK {
		return ret
	}
	s.eos = true
	s.cond.Broadcast()
	return engine.FlowOK
}

// QueuedBytes returns the number of bytes waiting in the queue
func (s *AppSrc) QueuedBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue == nil {
		return 0
	}
	return s.queue.Length()
}

func (s *AppSrc) acceptingLocked() engine.FlowReturn {
	switch {
	case !s.started || s.flushing || s.errored:
		return engine.FlowFlushing
	case s.eos:
		return engine.FlowEOS
	}
	return engine.FlowOK
}

func (s *AppSrc) loop(caps engine.Caps, frameBytes int, done chan struct{}) {
	defer close(done)

	bytesPerFrame := caps.BytesPerFrame()
	for {
		chunk, last, ok := s.nextChunk(frameBytes, bytesPerFrame)
		if !ok {
			return
		}

		if len(chunk) > 0 {
			frames := len(chunk) / bytesPerFrame
			buf := &engine.Buffer{
				Data:     chunk,
				PTS:      time.Duration(s.samples) * time.Second / time.Duration(caps.Rate),
				Duration: time.Duration(frames) * time.Second / time.Duration(caps.Rate),
				Samples:  frames,
			}
			s.samples += int64(frames)

			if ret := s.Push(buf); ret != engine.FlowOK {
				s.pause(ret)
				return
			}
		}

		if last {
			if ret := s.PushEvent(engine.Event{Type: engine.EventEOS}); ret != engine.FlowOK && ret != engine.FlowFlushing {
				s.pause(ret)
			}
			return
		}
	}
}

// nextChunk waits for a whole frame, or the remainder once end-of-stream
// is queued. ok is false when the element is flushing.
func (s *AppSrc) nextChunk(frameBytes, bytesPerFrame int) (chunk []byte, last, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for !s.flushing && !s.eos && s.queue.Length() < frameBytes {
		s.cond.Wait()
	}
	if s.flushing {
		return nil, false, false
	}

	avail := s.queue.Length()
	n := frameBytes
	if avail < frameBytes {
		// end of stream: drain whole sample frames, drop a torn tail
		n = avail - avail%bytesPerFrame
		last = true
		if torn := avail % bytesPerFrame; torn > 0 {
			s.PostWarning("Dropped incomplete sample frame at end of stream.",
				fmt.Sprintf("%d trailing bytes", torn))
		}
	}

	chunk = make([]byte, n)
	if n > 0 {
		if _, err := s.queue.Read(chunk); err != nil {
			GetLogger().Warn("appsrc queue read failed",
				logger.String("element", s.Name()),
				logger.Error(err))
			return nil, false, false
		}
	}
	if last {
		s.queue.Reset()
	}
	s.cond.Broadcast()
	return chunk, last, true
}

// pause stops the streaming goroutine after a downstream failure
func (s *AppSrc) pause(ret engine.FlowReturn) {
	s.mu.Lock()
	s.errored = true
	flushing := s.flushing
	s.cond.Broadcast()
	s.mu.Unlock()

	if flushing || ret == engine.FlowFlushing {
		return
	}

	GetLogger().Debug("appsrc streaming stopped",
		logger.String("element", s.Name()),
		logger.String("reason", ret.String()))
	s.PostError("Internal data stream error.", fmt.Sprintf("streaming stopped, reason %s (%d)", ret, int(ret)))
}
