package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// ReadWAVPCM16LEFile reads a mono PCM16LE WAV file back into raw PCM bytes
// and its sample rate. It accepts any canonical RIFF/WAVE/fmt /data layout
// produced by WriteWAVPCM16LETo.
func ReadWAVPCM16LEFile(path string) (pcm []byte, sampleRate int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return ReadWAVPCM16LEFrom(f)
}

// ReadWAVPCM16LEFrom parses a WAV stream, returning its raw PCM16LE data
// and sample rate.
func ReadWAVPCM16LEFrom(r io.Reader) (pcm []byte, sampleRate int, err error) {
	var riffHeader [12]byte
	if _, err := io.ReadFull(r, riffHeader[:]); err != nil {
		return nil, 0, fmt.Errorf("read riff header: %w", err)
	}
	if string(riffHeader[0:4]) != "RIFF" || string(riffHeader[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a RIFF/WAVE file")
	}

	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(r, chunkHeader[:]); err != nil {
			if err == io.EOF {
				return nil, 0, fmt.Errorf("wav missing data chunk")
			}
			return nil, 0, err
		}
		id := string(chunkHeader[0:4])
		size := binary.LittleEndian.Uint32(chunkHeader[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, 0, err
			}
			if len(body) < 16 {
				return nil, 0, fmt.Errorf("fmt chunk too short")
			}
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
		case "data":
			pcm = make([]byte, size)
			if _, err := io.ReadFull(r, pcm); err != nil {
				return nil, 0, err
			}
			return pcm, sampleRate, nil
		default:
			// Skip unknown chunks (padded to even size per RIFF spec).
			skip := int64(size)
			if size%2 == 1 {
				skip++
			}
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return nil, 0, err
			}
		}
	}
}

// PCM16LEToFloat64 converts little-endian PCM16 bytes to normalized
// float64 samples in [-1, 1].
func PCM16LEToFloat64(pcm []byte) []float64 {
	n := len(pcm) / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		out[i] = float64(v) / 32768.0
	}
	return out
}
