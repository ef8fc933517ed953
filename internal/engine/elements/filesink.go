package elements

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tphakala/streambridge/internal/engine"
	"github.com/tphakala/streambridge/internal/logger"
)

// fileTarget is implemented by sinks whose file an upstream muxer may
// write directly
type fileTarget interface {
	claim(owner string) (string, error)
}

// FileSink writes buffers to a file. When a muxer claims the location the
// sink only confirms end-of-stream.
type FileSink struct {
	engine.Base

	location string
	owner    string
	file     *os.File
}

// NewFileSink creates a file sink
func NewFileSink(name string) *FileSink {
	s := &FileSink{}
	s.Init(FactoryFileSink, name)
	return s
}

// SetProperty implements engine.Element. sync is accepted and ignored.
func (s *FileSink) SetProperty(key string, value any) error {
	switch key {
	case "location":
		loc, err := engine.StringProperty(value)
		if err != nil {
			return engine.InvalidPropertyError(s.Name(), key, value, err)
		}
		s.location = loc
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

// Location returns the configured file path
func (s *FileSink) Location() string { return s.location }

func (s *FileSink) claim(owner string) (string, error) {
	if s.location == "" {
		return "", fmt.Errorf("%s has no location", s.Name())
	}
	s.owner = owner
	return s.location, nil
}

// Start opens the file unless a muxer owns it
func (s *FileSink) Start(context.Context) error {
	if s.owner != "" {
		return nil
	}
	if s.location == "" {
		err := fmt.Errorf("no file name specified for writing")
		s.PostError("No file name specified for writing.", err.Error())
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.location), 0o755); err != nil {
		s.PostError(fmt.Sprintf("Could not open file %q for writing.", s.location), err.Error())
		return err
	}
	f, err := os.Create(s.location)
	if err != nil {
		s.PostError(fmt.Sprintf("Could not open file %q for writing.", s.location), err.Error())
		return err
	}
	s.file = f
	return nil
}

// Chain implements engine.Element
func (s *FileSink) Chain(buf *engine.Buffer) engine.FlowReturn {
	if s.file == nil {
		return engine.FlowFlushing
	}
	if _, err := s.file.Write(buf.Data); err != nil {
		s.PostError(fmt.Sprintf("Error while writing to file %q.", s.location), err.Error())
		return engine.FlowError
	}
	return engine.FlowOK
}

// Event implements engine.Element
func (s *FileSink) Event(ev engine.Event) engine.FlowReturn {
	if ev.Type != engine.EventEOS {
		return engine.FlowOK
	}
	if s.file != nil {
		if err := s.closeFile(); err != nil {
			s.PostError(fmt.Sprintf("Error while writing to file %q.", s.location), err.Error())
			return engine.FlowError
		}
	}

	GetLogger().Debug("file sink reached end of stream",
		logger.String("element", s.Name()),
		logger.String("location", s.location))
	s.PostEOS()
	return engine.FlowOK
}

// Stop closes the file if end-of-stream never arrived
func (s *FileSink) Stop() error {
	if s.file == nil {
		return nil
	}
	return s.closeFile()
}

func (s *FileSink) closeFile() error {
	f := s.file
	s.file = nil
	syncErr := f.Sync()
	closeErr := f.Close()
	if syncErr != nil {
		return syncErr
	}
	return closeErr
}
