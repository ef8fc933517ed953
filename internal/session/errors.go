package session

import (
	"fmt"
	"time"

	"github.com/tphakala/streambridge/internal/engine"
	"github.com/tphakala/streambridge/internal/errors"
)

// ComponentSession identifies errors raised by the session manager
const ComponentSession = "session"

func stateError(operation string, state State) error {
	return errors.Newf("cannot %s while %s", operation, state).
		Component(ComponentSession).
		Category(errors.CategoryState).
		Context("operation", operation).
		Context("state", state.String()).
		Build()
}

func startError(err error) error {
	return errors.New(fmt.Errorf("failed to set pipeline to PLAYING state: %w", err)).
		Component(ComponentSession).
		Category(errors.CategoryState).
		Context("operation", "start").
		Build()
}

func flowError(ret engine.FlowReturn, size int) error {
	return errors.Newf("failed to push buffer to pipeline (flow error: %d %s)", int(ret), ret).
		Component(ComponentSession).
		Category(errors.CategoryIngestion).
		Context("flow", ret.String()).
		Context("chunk_bytes", size).
		Build()
}

func allocationError(err error, size int) error {
	return errors.New(fmt.Errorf("failed to allocate pipeline buffer: %w", err)).
		Component(ComponentSession).
		Category(errors.CategoryIngestion).
		Context("chunk_bytes", size).
		Build()
}

func cancelledError(err error) error {
	return errors.New(err).
		Component(ComponentSession).
		Category(errors.CategoryCancellation).
		Context("operation", "feed").
		Build()
}

func shutdownTimeoutError(timeout time.Duration) error {
	return errors.Newf("did not receive end-of-stream within %s", timeout).
		Component(ComponentSession).
		Category(errors.CategoryTimeout).
		Context("operation", "stop").
		Timing("shutdown_wait", timeout).
		Build()
}
