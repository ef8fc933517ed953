package elements

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/streambridge/internal/engine"
)

func TestAudioConvertDownmix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       int
		max      int
		frame    []int16
		wantCaps int
		want     []int16
	}{
		{"quad folds to stereo pairs", 4, 2, []int16{100, 200, 300, 400}, 2, []int16{200, 300}},
		{"stereo to mono", 2, 1, []int16{-1000, 3000}, 1, []int16{1000}},
		{"mono passes through", 1, 2, []int16{1234}, 1, []int16{1234}},
		{"zero disables downmix", 4, 0, []int16{1, 2, 3, 4}, 4, []int16{1, 2, 3, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src := newSource(t, 8000, tt.in, nil)
			conv := NewAudioConvert("converter")
			require.NoError(t, conv.SetProperty("max-channels", tt.max))
			sink := newCollectSink("sink")
			p := newTestPipeline(t, src, conv, sink)

			assert.Equal(t, engine.RawAudioCaps(8000, tt.wantCaps), sink.Caps())

			play(t, p)
			require.Equal(t, engine.FlowOK, src.PushBuffer(context.Background(), int16ToBytes(tt.frame)))
			require.Equal(t, engine.FlowOK, src.EndOfStream())
			waitEOS(t, p)

			assert.Equal(t, tt.want, bytesToInt16(sink.bytes()))
		})
	}
}

func TestAudioConvertRejectsEncodedInput(t *testing.T) {
	t.Parallel()

	conv := NewAudioConvert("converter")
	_, err := conv.Negotiate(engine.Caps{Media: engine.MediaOpus, Rate: 48000, Channels: 2})
	require.Error(t, err)

	assert.Error(t, conv.SetProperty("max-channels", -1))
	assert.Error(t, conv.SetProperty("channels", 2))
}
