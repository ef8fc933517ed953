package record

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/streambridge/internal/capture"
	"github.com/tphakala/streambridge/internal/conf"
	"github.com/tphakala/streambridge/internal/errors"
	"github.com/tphakala/streambridge/internal/testutil"
)

func testSettings(t *testing.T, destination string) *conf.Settings {
	t.Helper()

	s := conf.Defaults()
	s.Session.Destination = destination
	s.Session.ShutdownTimeout = time.Second
	s.Capture.Duration = 200 * time.Millisecond
	return s
}

func TestRunToneToOggFile(t *testing.T) {
	t.Parallel()

	location := filepath.Join(t.TempDir(), "tone.ogg")
	s := testSettings(t, location)

	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), s, &out))

	info, err := os.Stat(location)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
	assert.Contains(t, out.String(), "48000 Hz, 2 ch, stopped")
}

func TestRunSilenceWithMetrics(t *testing.T) {
	t.Parallel()

	s := testSettings(t, "null://")
	s.Capture.Source = "silence"
	s.Metrics.Enabled = true
	s.Metrics.Listen = "127.0.0.1:0"

	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), s, &out))
	assert.Contains(t, out.String(), "to null://")
}

func TestRunWAVFileToWAV(t *testing.T) {
	t.Parallel()

	input := testutil.WriteWAV(t, "in.wav", 16000, 1, 16, make([]int, 8000))
	output := filepath.Join(t.TempDir(), "out.wav")
	s := testSettings(t, output)
	s.Capture.Source = "file"
	s.Capture.File = input
	s.Capture.Duration = 0

	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), s, &out))
	assert.Contains(t, out.String(), "16000 bytes")
	assert.Contains(t, out.String(), "16000 Hz, 1 ch")

	info, err := os.Stat(output)
	require.NoError(t, err)
	assert.Equal(t, int64(44+16000), info.Size())
}

func TestRunFLACFileToWAV(t *testing.T) {
	t.Parallel()

	samples := make([]int, 8000)
	for i := range samples {
		samples[i] = (i%400 - 200) * 150
	}
	input := testutil.WriteFLAC(t, "in.flac", 16000, 1, 16, samples)
	output := filepath.Join(t.TempDir(), "out.wav")
	s := testSettings(t, output)
	s.Capture.Source = "file"
	s.Capture.File = input
	s.Capture.Duration = 0

	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), s, &out))
	assert.Contains(t, out.String(), "16000 bytes")
	assert.Contains(t, out.String(), "16000 Hz, 1 ch")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	require.Len(t, data, 44+16000)
	for i, want := range samples {
		got := int16(binary.LittleEndian.Uint16(data[44+i*2:]))
		require.Equal(t, int16(want), got, "sample %d", i)
	}
}

func TestRunUnsupportedDestination(t *testing.T) {
	t.Parallel()

	err := Run(context.Background(), testSettings(t, "ftp://example.com/x.ogg"), &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConstruction), "got %v", err)
}

func TestRunReportsPipelineFailure(t *testing.T) {
	t.Parallel()

	port := testutil.ClosedTCPPort(t)
	err := Run(context.Background(), testSettings(t, fmt.Sprintf("tcp://127.0.0.1:%d", port)), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Could not connect")
	assert.True(t, errors.IsCategory(err, errors.CategoryRuntime))
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	s := testSettings(t, "null://")
	s.Capture.Duration = 0

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	started := time.Now()
	require.NoError(t, Run(ctx, s, &bytes.Buffer{}))
	assert.Less(t, time.Since(started), 5*time.Second)
}

func TestNewSource(t *testing.T) {
	t.Parallel()

	session := &conf.SessionSettings{SampleRate: 16000, Channels: 1}

	tests := []struct {
		name    string
		capture conf.CaptureSettings
		wantErr bool
	}{
		{"tone", conf.CaptureSettings{Source: "tone", ToneHz: 440, ChunkFrames: 320}, false},
		{"silence", conf.CaptureSettings{Source: "silence", ChunkFrames: 320}, false},
		{"stdin", conf.CaptureSettings{Source: "stdin", ChunkFrames: 320}, false},
		{"soundcard config only", conf.CaptureSettings{Source: "soundcard", ChunkFrames: 320, Gain: 1}, false},
		{"missing file", conf.CaptureSettings{Source: "file", File: "/nonexistent/in.wav"}, true},
		{"missing flac file", conf.CaptureSettings{Source: "file", File: "/nonexistent/in.flac"}, true},
		{"unsupported file type", conf.CaptureSettings{Source: "file", File: "/nonexistent/in.mp3"}, true},
		{"tone above nyquist", conf.CaptureSettings{Source: "tone", ToneHz: 9000}, true},
		{"unknown", conf.CaptureSettings{Source: "microphone"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src, closeSource, err := newSource(&tt.capture, session)
			defer closeSource()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, capture.Format{SampleRate: 16000, Channels: 1}, src.Format())
		})
	}
}

func TestChunkDuration(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 10*time.Millisecond, chunkDuration(480, 48000))
	assert.Equal(t, 20*time.Millisecond, chunkDuration(320, 16000))
	assert.Equal(t, capture.DefaultChunkDuration, chunkDuration(0, 48000))
	assert.Equal(t, capture.DefaultChunkDuration, chunkDuration(480, 0))
}
