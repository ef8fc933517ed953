// Package buildinfo carries build-time metadata, kept apart from user
// configuration
package buildinfo

import (
	"fmt"
	"runtime"

	"github.com/google/uuid"
)

// UnknownValue is reported for metadata the build did not inject
const UnknownValue = "unknown"

// Injected with -ldflags "-X github.com/tphakala/streambridge/internal/buildinfo.version=..."
var (
	version   string
	buildDate string
)

// Context holds the version of the running binary and an identifier for
// this process, used to tag telemetry
type Context struct {
	version   string
	buildDate string
	instance  string
}

// NewContext builds a Context from explicit values. An empty instance ID
// is replaced by a fresh UUID.
func NewContext(version, buildDate, instance string) *Context {
	if instance == "" {
		instance = uuid.NewString()
	}
	return &Context{version: version, buildDate: buildDate, instance: instance}
}

// Current returns the metadata injected at link time
func Current() *Context {
	return NewContext(version, buildDate, "")
}

// Version returns the release version
func (c *Context) Version() string {
	if c == nil || c.version == "" {
		return UnknownValue
	}
	return c.version
}

// BuildDate returns when the binary was built
func (c *Context) BuildDate() string {
	if c == nil || c.buildDate == "" {
		return UnknownValue
	}
	return c.buildDate
}

// InstanceID returns the per-process identifier
func (c *Context) InstanceID() string {
	if c == nil || c.instance == "" {
		return UnknownValue
	}
	return c.instance
}

// Release returns the release name reported to Sentry
func (c *Context) Release() string {
	return "streambridge@" + c.Version()
}

// String formats the metadata for the version command
func (c *Context) String() string {
	return fmt.Sprintf("streambridge %s (built %s, %s %s/%s)",
		c.Version(), c.BuildDate(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
