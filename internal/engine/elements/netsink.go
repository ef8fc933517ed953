package elements

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/tphakala/streambridge/internal/engine"
	"github.com/tphakala/streambridge/internal/logger"
)

const defaultConnectTimeout = 2 * time.Second

// netSink sends buffers over a connected socket. Dialing happens in the
// background after Start so resolution and connection failures surface as
// bus errors while the pipeline is already playing.
type netSink struct {
	engine.Base

	network string
	host    string
	port    int
	timeout time.Duration

	mu       sync.Mutex
	conn     net.Conn
	dialErr  error
	ready    chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	failed   bool
	unlocked bool
}

// UDPSink sends each buffer as one datagram
type UDPSink struct{ netSink }

// TCPClientSink streams buffers to a TCP server
type TCPClientSink struct{ netSink }

// NewUDPSink creates a UDP sink
func NewUDPSink(name string) *UDPSink {
	s := &UDPSink{netSink{network: "udp", host: "localhost", timeout: defaultConnectTimeout}}
	s.Init(FactoryUDPSink, name)
	return s
}

// NewTCPClientSink creates a TCP client sink
func NewTCPClientSink(name string) *TCPClientSink {
	s := &TCPClientSink{netSink{network: "tcp", host: "localhost", timeout: defaultConnectTimeout}}
	s.Init(FactoryTCPClientSink, name)
	return s
}

// SetProperty implements engine.Element
func (s *netSink) SetProperty(key string, value any) error {
	switch key {
	case "host":
		h, err := engine.StringProperty(value)
		if err != nil {
			return engine.InvalidPropertyError(s.Name(), key, value, err)
		}
		s.host = h
	case "port":
		p, err := engine.IntProperty(value)
		if err == nil && (p <= 0 || p > 65535) {
			err = fmt.Errorf("must be between 1 and 65535")
		}
		if err != nil {
			return engine.InvalidPropertyError(s.Name(), key, value, err)
		}
		s.port = p
	case "connect-timeout":
		d, err := engine.DurationProperty(value)
		if err == nil && d <= 0 {
			err = fmt.Errorf("must be positive")
		}
		if err != nil {
			return engine.InvalidPropertyError(s.Name(), key, value, err)
		}
		s.timeout = d
	case "sync":
		if _, err := engine.BoolProperty(value); err != nil {
			return engine.InvalidPropertyError(s.Name(), key, value, err)
		}
	default:
		return engine.UnknownPropertyError(s.Name(), key)
	}
	s.StoreProperty(key, value)
	return nil
}

func (s *netSink) address() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// Start begins dialing in the background
func (s *netSink) Start(ctx context.Context) error {
	if s.port == 0 {
		return fmt.Errorf("%s: no port configured", s.Name())
	}

	dialCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.conn = nil
	s.dialErr = nil
	s.failed = false
	s.unlocked = false
	s.ready = make(chan struct{})
	s.cancel = cancel
	ready := s.ready
	s.mu.Unlock()

	s.wg.Go(func() {
		defer close(ready)
		s.dial(dialCtx)
	})
	return nil
}

func (s *netSink) dial(ctx context.Context) {
	dialer := net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, s.network, s.address())

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.dialErr = err
		if ctx.Err() != nil {
			return
		}
		s.failed = true
		GetLogger().Warn("network sink could not connect",
			logger.String("element", s.Name()),
			logger.String("address", s.address()),
			logger.Error(err))
		s.PostError(fmt.Sprintf("Could not connect to host %q on port %d.", s.host, s.port), err.Error())
		return
	}
	s.conn = conn
}

// Unlock aborts a pending dial and any blocked write
func (s *netSink) Unlock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unlocked = true
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		_ = s.conn.SetWriteDeadline(time.Now())
	}
}

// Chain waits for the connection, then writes the buffer
func (s *netSink) Chain(buf *engine.Buffer) engine.FlowReturn {
	s.mu.Lock()
	ready := s.ready
	s.mu.Unlock()
	if ready == nil {
		return engine.FlowFlushing
	}
	<-ready

	s.mu.Lock()
	conn, failed := s.conn, s.failed
	s.mu.Unlock()

	switch {
	case failed:
		return engine.FlowError
	case conn == nil:
		return engine.FlowFlushing
	}

	if _, err := conn.Write(buf.Data); err != nil {
		if s.stopping() {
			return engine.FlowFlushing
		}
		s.PostError(fmt.Sprintf("Error while sending data to %q.", s.address()), err.Error())
		return engine.FlowError
	}
	return engine.FlowOK
}

func (s *netSink) stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unlocked
}

// Event implements engine.Element
func (s *netSink) Event(ev engine.Event) engine.FlowReturn {
	if ev.Type == engine.EventEOS {
		s.PostEOS()
	}
	return engine.FlowOK
}

// Stop cancels dialing and closes the connection
func (s *netSink) Stop() error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = nil
	s.ready = nil
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
