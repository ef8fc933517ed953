package testutil

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// flacBlockSize is the number of inter-channel samples per FLAC frame
const flacBlockSize = 4096

var flacRateCodes = map[int]byte{
	88200: 0x1, 176400: 0x2, 192000: 0x3, 8000: 0x4, 16000: 0x5, 22050: 0x6,
	24000: 0x7, 32000: 0x8, 44100: 0x9, 48000: 0xA, 96000: 0xB,
}

var flacDepthCodes = map[int]byte{8: 0x1, 16: 0x4, 24: 0x6}

// WriteFLAC writes interleaved samples as an uncompressed FLAC stream
// (verbatim subframes) to name inside a fresh temp dir and returns the
// path. rate must have a FLAC frame-header code.
func WriteFLAC(t *testing.T, name string, rate, channels, bitDepth int, samples []int) string {
	t.Helper()

	rateCode, ok := flacRateCodes[rate]
	require.True(t, ok, "no FLAC rate code for %d Hz", rate)
	depthCode, ok := flacDepthCodes[bitDepth]
	require.True(t, ok, "unsupported FLAC bit depth %d", bitDepth)
	require.True(t, channels >= 1 && channels <= 8, "unsupported channel count %d", channels)
	require.Zero(t, len(samples)%channels, "samples must hold whole frames")

	total := len(samples) / channels
	bytesPerSample := bitDepth / 8

	var out bytes.Buffer
	out.WriteString("fLaC")

	// STREAMINFO, flagged as the last metadata block
	out.Write([]byte{0x80, 0, 0, 34})
	var info [34]byte
	binary.BigEndian.PutUint16(info[0:], flacBlockSize)
	binary.BigEndian.PutUint16(info[2:], flacBlockSize)
	packed := uint64(rate)<<44 | uint64(channels-1)<<41 | uint64(bitDepth-1)<<36 | uint64(total)
	binary.BigEndian.PutUint64(info[10:], packed)
	sum := md5.Sum(flacPCM(samples, bytesPerSample))
	copy(info[18:], sum[:])
	out.Write(info[:])

	for frame, start := 0, 0; start < total; frame, start = frame+1, start+flacBlockSize {
		block := min(flacBlockSize, total-start)

		hdr := []byte{0xFF, 0xF8, 0x70 | rateCode, byte(channels-1)<<4 | depthCode<<1}
		hdr = append(hdr, flacFrameNumber(frame)...)
		hdr = append(hdr, byte((block-1)>>8), byte(block-1))
		hdr = append(hdr, flacCRC8(hdr))

		body := hdr
		for ch := range channels {
			// verbatim subframe, no wasted bits
			body = append(body, 0x02)
			for i := range block {
				v := samples[(start+i)*channels+ch]
				for b := bytesPerSample - 1; b >= 0; b-- {
					body = append(body, byte(v>>(8*b)))
				}
			}
		}
		crc := flacCRC16(body)
		body = append(body, byte(crc>>8), byte(crc))
		out.Write(body)
	}

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, out.Bytes(), 0o600))
	return path
}

// flacPCM lays samples out the way FLAC's MD5 signature covers them:
// interleaved, little-endian, bytesPerSample wide
func flacPCM(samples []int, bytesPerSample int) []byte {
	pcm := make([]byte, 0, len(samples)*bytesPerSample)
	for _, v := range samples {
		for b := range bytesPerSample {
			pcm = append(pcm, byte(v>>(8*b)))
		}
	}
	return pcm
}

// flacFrameNumber encodes n with FLAC's UTF-8 style variable length coding
func flacFrameNumber(n int) []byte {
	if n < 0x80 {
		return []byte{byte(n)}
	}
	var tail []byte
	lead, limit := byte(0x80), 0x40
	for n >= limit {
		tail = append([]byte{0x80 | byte(n&0x3F)}, tail...)
		n >>= 6
		lead = lead>>1 | 0x80
		limit >>= 1
	}
	return append([]byte{lead | byte(n)}, tail...)
}

func flacCRC8(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc ^= b
		for range 8 {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x07
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func flacCRC16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for range 8 {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x8005
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
