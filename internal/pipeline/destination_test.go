package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/streambridge/internal/errors"
)

func TestParseDestination(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		kind Kind
		path string
		host string
		port int
	}{
		{raw: "/tmp/out.ogg", kind: KindOggFile, path: "/tmp/out.ogg"},
		{raw: "relative/Take.OPUS", kind: KindOggFile, path: "relative/Take.OPUS"},
		{raw: "file:///var/rec/a.wav", kind: KindWAVFile, path: "/var/rec/a.wav"},
		{raw: "out.wav", kind: KindWAVFile, path: "out.wav"},
		{raw: "udp://127.0.0.1:5004", kind: KindRTP, host: "127.0.0.1", port: 5004},
		{raw: "rtp://[::1]:5006", kind: KindRTP, host: "::1", port: 5006},
		{raw: "tcp://stream.local:8000", kind: KindOggTCP, host: "stream.local", port: 8000},
		{raw: "null://", kind: KindNull},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()

			dest, err := ParseDestination(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, dest.Kind)
			assert.Equal(t, tt.path, dest.Path)
			assert.Equal(t, tt.host, dest.Host)
			assert.Equal(t, tt.port, dest.Port)
			assert.Equal(t, tt.raw, dest.Raw)
		})
	}
}

func TestParseDestinationRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw         string
		unsupported bool
	}{
		{"", true},
		{"   ", true},
		{"/tmp/out.mp3", true},
		{"/tmp/noext", true},
		{"srt://host:9000", true},
		{"udp://host", false},
		{"tcp://:8000", false},
		{"udp://host:70000", false},
		{"tcp://host:port", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()

			_, err := ParseDestination(tt.raw)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryConstruction))
			assert.Equal(t, tt.unsupported, errors.Is(err, ErrUnsupportedDestination))
		})
	}
}

func TestResolveDestination(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	now := time.Date(2024, 5, 17, 8, 30, 5, 0, time.UTC)

	got := ResolveDestination(dir, "", "abc", now)
	assert.Equal(t, filepath.Join(dir, "abc_20240517_083005.ogg"), got)

	got = ResolveDestination(dir, "take-{timestamp}.wav", "abc", now)
	assert.Equal(t, filepath.Join(dir, "take-20240517_083005.wav"), got)

	got = ResolveDestination(dir, "{session}{ext}", "", now)
	assert.True(t, strings.HasSuffix(got, ".ogg"))
	assert.Len(t, strings.TrimSuffix(filepath.Base(got), ".ogg"), 36)

	file := filepath.Join(dir, "out.ogg")
	assert.Equal(t, file, ResolveDestination(file, "", "abc", now))

	require.NoError(t, os.WriteFile(file, nil, 0o600))
	assert.Equal(t, file, ResolveDestination(file, "", "abc", now))
	assert.Equal(t, "udp://h:1", ResolveDestination("udp://h:1", "", "abc", now))
}

func TestKindString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ogg-tcp", KindOggTCP.String())
	assert.Equal(t, "kind(42)", Kind(42).String())
	assert.True(t, KindWAVFile.IsFile())
	assert.False(t, KindRTP.IsFile())

	assert.Equal(t, "h:5", Destination{Kind: KindRTP, Host: "h", Port: 5}.String())
	assert.Equal(t, "a.ogg", Destination{Kind: KindOggFile, Path: "a.ogg"}.String())
}
