package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/streambridge/internal/errors"
)

func TestParseCaps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Caps
		wantErr bool
	}{
		{
			name:  "full raw caps",
			input: "audio/x-raw,format=S16LE,rate=48000,channels=2,layout=interleaved",
			want:  RawAudioCaps(48000, 2),
		},
		{
			name:  "typed values and default layout",
			input: "audio/x-raw, format=(string)S16LE, rate=(int)16000, channels=(int)1",
			want:  RawAudioCaps(16000, 1),
		},
		{
			name:  "non raw media passes through",
			input: "audio/x-opus,rate=48000,channels=2",
			want:  Caps{Media: MediaOpus, Rate: 48000, Channels: 2},
		},
		{name: "unsupported format", input: "audio/x-raw,format=F32LE,rate=48000,channels=2", wantErr: true},
		{name: "zero rate", input: "audio/x-raw,format=S16LE,rate=0,channels=2", wantErr: true},
		{name: "negative channels", input: "audio/x-raw,format=S16LE,rate=8000,channels=-1", wantErr: true},
		{name: "planar layout", input: "audio/x-raw,format=S16LE,rate=8000,channels=2,layout=non-interleaved", wantErr: true},
		{name: "malformed field", input: "audio/x-raw,format", wantErr: true},
		{name: "non numeric rate", input: "audio/x-raw,format=S16LE,rate=fast,channels=2", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseCaps(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryConstruction))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCapsStringRoundTrip(t *testing.T) {
	t.Parallel()

	caps := RawAudioCaps(44100, 6)
	parsed, err := ParseCaps(caps.String())
	require.NoError(t, err)
	assert.Equal(t, caps, parsed)
	assert.Equal(t, 12, caps.BytesPerFrame())
}

func TestFlowReturnString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ok", FlowOK.String())
	assert.Equal(t, "error", FlowError.String())
	assert.Equal(t, "flushing", FlowFlushing.String())
	assert.Equal(t, "flow(-9)", FlowReturn(-9).String())
}
