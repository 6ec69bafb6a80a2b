package viva

// pcm16FromFloat32 converts float32 samples to 16-bit signed little-endian
// PCM, clamping to [-1, 1] before scaling. Negative samples scale by 0x8000
// and positive by 0x7fff so both rails map onto the full int16 range.
func pcm16FromFloat32(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		if sample < -1 {
			sample = -1
		}
		if sample > 1 {
			sample = 1
		}
		var v int16
		if sample < 0 {
			v = int16(sample * 0x8000)
		} else {
			v = int16(sample * 0x7fff)
		}
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
