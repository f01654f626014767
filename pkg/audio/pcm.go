package audio

import "encoding/binary"

// AppendPCM16 decodes little-endian 16-bit samples into [-1, 1) floats.
// len(src) must be even.
func AppendPCM16(dst []float32, src []byte) []float32 {
	for i := 0; i+1 < len(src); i += 2 {
		dst = append(dst, float32(int16(binary.LittleEndian.Uint16(src[i:])))/32768)
	}
	return dst
}

// PCM16ToFloat32 decodes a whole little-endian 16-bit buffer.
func PCM16ToFloat32(data []byte) []float32 {
	return AppendPCM16(make([]float32, 0, len(data)/2), data)
}

// FloatToInt16 converts a normalized sample, clamping out-of-range values.
func FloatToInt16(s float32) int16 {
	v := s * 32768
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// Float32ToPCM16 encodes samples as little-endian 16-bit PCM.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(FloatToInt16(s)))
	}
	return out
}
