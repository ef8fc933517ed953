package elements

import (
	"encoding/binary"
	"fmt"

	"github.com/tphakala/streambridge/internal/engine"
)

// bytesToInt16 decodes S16LE samples, ignoring a trailing odd byte
func bytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// int16ToBytes encodes samples as S16LE
func int16ToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}

func clampInt16(v float64) int16 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	}
	return int16(v)
}

// requireRaw rejects non-PCM upstream caps during negotiation
func requireRaw(element string, upstream engine.Caps) error {
	if !upstream.IsRaw() {
		return fmt.Errorf("%s accepts %s, got %s", element, engine.MediaRawAudio, upstream.Media)
	}
	return upstream.Validate()
}

func requireMedia(element string, upstream engine.Caps, media string) error {
	if upstream.Media != media {
		return fmt.Errorf("%s accepts %s, got %s", element, media, upstream.Media)
	}
	return nil
}
