package audio

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEncoding(t *testing.T) {
	tests := map[string]Encoding{
		"":          PCM16LE,
		"s16le":     PCM16LE,
		"LINEAR16":  PCM16LE,
		"f32le":     Float32LE,
		"ulaw":      MuLaw,
		"pcm_mulaw": MuLaw,
	}
	for in, want := range tests {
		got, err := ParseEncoding(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseEncoding("opus")
	assert.Error(t, err)
}

func TestEncodingAppendLeavesPartialSample(t *testing.T) {
	pcm := Float32ToPCM16([]float32{0.5, -0.25})

	got, n := PCM16LE.Append(nil, pcm[:3])
	assert.Equal(t, 2, n)
	assert.Equal(t, []float32{0.5}, got)

	got, n = PCM16LE.Append(got, pcm[2:])
	assert.Equal(t, 2, n)
	assert.Equal(t, []float32{0.5, -0.25}, got)
}

func TestEncodingAppendFloat32(t *testing.T) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(0.75))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(-1))

	got, n := Float32LE.Append(nil, buf[:7])
	assert.Equal(t, 4, n)
	assert.Equal(t, []float32{0.75}, got)

	got, n = Float32LE.Append(nil, buf)
	assert.Equal(t, 8, n)
	assert.Equal(t, []float32{0.75, -1}, got)
}

func TestEncodingAppendMuLaw(t *testing.T) {
	got, n := MuLaw.Append(nil, []byte{0xFF, 0x80})
	assert.Equal(t, 2, n)
	assert.Len(t, got, 2)
	assert.Equal(t, float32(0), got[0])
}

func TestPCM16RoundTripClamps(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 1.5, -1.5}
	out := PCM16ToFloat32(Float32ToPCM16(in))

	require.Len(t, out, len(in))
	assert.Equal(t, float32(0), out[0])
	assert.Equal(t, float32(0.5), out[1])
	assert.Equal(t, float32(-0.5), out[2])
	assert.InDelta(t, 32767.0/32768, out[3], 1e-6)
	assert.Equal(t, float32(-1), out[4])
}
