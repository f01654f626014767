// Package audio converts between wire formats, WAV files and the normalized
// float32 samples the segmenter consumes.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Encoding is a raw sample format for byte streams.
type Encoding string

// Supported encodings.
const (
	PCM16LE   Encoding = "s16le"
	Float32LE Encoding = "f32le"
	MuLaw     Encoding = "mulaw"
)

// ParseEncoding accepts the canonical names plus a few ffmpeg-style aliases.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "s16le", "pcm16", "pcm_s16le", "linear16":
		return PCM16LE, nil
	case "f32le", "float32", "pcm_f32le":
		return Float32LE, nil
	case "mulaw", "ulaw", "pcm_mulaw", "g711u":
		return MuLaw, nil
	}
	return "", fmt.Errorf("audio: unknown encoding %q", s)
}

// BytesPerSample returns the encoded width of one mono sample.
func (e Encoding) BytesPerSample() int {
	switch e {
	case Float32LE:
		return 4
	case MuLaw:
		return 1
	}
	return 2
}

// Append decodes whole samples from src, appends them to dst and returns
// the number of bytes consumed. A trailing partial sample is left unread.
func (e Encoding) Append(dst []float32, src []byte) ([]float32, int) {
	width := e.BytesPerSample()
	n := len(src) - len(src)%width
	switch e {
	case MuLaw:
		return AppendMuLaw(dst, src[:n]), n
	case Float32LE:
		for i := 0; i < n; i += 4 {
			dst = append(dst, math.Float32frombits(binary.LittleEndian.Uint32(src[i:])))
		}
		return dst, n
	}
	return AppendPCM16(dst, src[:n]), n
}
