package audio

import "math"

// FloatToPCM16LE converts normalized float64 samples in [-1, 1] to
// little-endian PCM16 bytes, clipping out-of-range values.
func FloatToPCM16LE(samples []float64) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(math.Round(s * 32767))
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}

// WriteWaveFloat64 writes normalized float64 samples as a mono PCM16 WAV
// file, used for both decomposition wave output and any other
// synthesized-signal artifact.
func WriteWaveFloat64(path string, samples []float64, sampleRate int) error {
	return WriteWAVPCM16LEFile(path, FloatToPCM16LE(samples), sampleRate)
}
