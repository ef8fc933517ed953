package capture

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	serrors "github.com/tphakala/streambridge/internal/errors"
)

func TestReaderSourceChunksAndDropsPartialFrame(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 1000+3)
	for i := range pcm {
		pcm[i] = byte(i)
	}

	src, err := NewReaderSource(bytes.NewReader(pcm), Format{SampleRate: 8000, Channels: 2}, 0, false)
	require.NoError(t, err)

	sink := &recordingSink{}
	require.NoError(t, src.Run(context.Background(), sink))

	// 20 ms of 8 kHz stereo is 640 bytes; 363 bytes remain, 360 in whole frames
	assert.Equal(t, []int{640, 360}, sink.sizes())
	assert.Equal(t, pcm[:1000], sink.bytes())
}

func TestReaderSourceReadError(t *testing.T) {
	t.Parallel()

	boom := errors.New("device unplugged")
	src, err := NewReaderSource(iotest.ErrReader(boom), Format{SampleRate: 8000, Channels: 1}, 10*time.Millisecond, false)
	require.NoError(t, err)

	err = src.Run(context.Background(), &recordingSink{})
	require.ErrorIs(t, err, boom)
	assert.True(t, serrors.IsCategory(err, serrors.CategoryAudioSource))
}

func TestReaderSourceRejectsBadFormat(t *testing.T) {
	t.Parallel()

	_, err := NewReaderSource(bytes.NewReader(nil), Format{SampleRate: 8000}, 0, false)
	require.Error(t, err)
}
