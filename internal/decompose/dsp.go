package decompose

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/reflective-resonance/turnengine/internal/audio"
	"github.com/reflective-resonance/turnengine/internal/waveform"
)

// band is a slot-specific carrier-frequency range, used to preserve the
// pitch contour's shape while routing it into the physical frequency band
// the installation hardware expects for that slot's position.
type band struct{ low, high float64 }

var slotBands = map[int]band{
	1: {80, 100}, 6: {80, 100}, // outer
	2: {50, 70}, 5: {50, 70}, // middle
	3: {20, 40}, 4: {20, 40}, // center
}

const (
	frameSizeDefault = 1024
	hopSizeDefault   = 256
	pitchMinHz       = 70.0
	pitchMaxHz       = 500.0
)

// Decompose is the pure DSP function the pool runs. Given a mono WAV input
// and an output directory, it writes job.NWaves WAV files named
// "<basename>_v3_wave<k>.wav" and returns their paths plus informational
// quality metrics. It holds no state and touches no shared memory, so it
// is safe to invoke from any goroutine.
func Decompose(job waveform.DecomposeJob, artifactsRoot string) waveform.DecomposeResult {
	pcm, sampleRate, err := audio.ReadWAVPCM16LEFile(job.InputPath)
	if err != nil {
		return waveform.DecomposeResult{Job: job, Success: false, Error: err.Error()}
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	samples := audio.PCM16LEToFloat64(pcm)
	if len(samples) == 0 {
		return waveform.DecomposeResult{Job: job, Success: false, Error: "empty audio"}
	}

	nWaves := job.NWaves
	if nWaves <= 0 {
		nWaves = 2
	}

	pitch := estimatePitchContour(samples, sampleRate, frameSizeDefault, hopSizeDefault)
	envelope := amplitudeEnvelope(samples, frameSizeDefault, hopSizeDefault)

	b, hasBand := slotBands[job.SlotID]
	mappedPitch := pitch
	if hasBand {
		mappedPitch = mapToBand(pitch, b)
	}

	waves := make([][]float64, nWaves)
	for k := 1; k <= nWaves; k++ {
		freqCurve := scaleFreqForWave(mappedPitch, k, hasBand, b)
		ampCurve := scaleEnvelopeForWave(envelope, k, nWaves)
		waves[k-1] = synthesizeCosine(freqCurve, ampCurve, sampleRate)
	}

	mix := sumWaves(waves, len(samples))
	gain := gainCurve(samples, mix, frameSizeDefault, hopSizeDefault)
	applyGain(waves, gain)
	gainedMix := sumWaves(waves, len(samples))

	wavePaths := make([]string, 0, nWaves)
	wavePathsRel := make([]string, 0, nWaves)
	for k := 1; k <= nWaves; k++ {
		filename := fmt.Sprintf("%s_v3_wave%d.wav", job.TTSBasename, k)
		outPath := filepath.Join(job.OutputDir, filename)
		if err := audio.WriteWaveFloat64(outPath, waves[k-1], sampleRate); err != nil {
			return waveform.DecomposeResult{Job: job, Success: false, Error: err.Error()}
		}
		wavePaths = append(wavePaths, outPath)
		rel, relErr := filepath.Rel(artifactsRoot, outPath)
		if relErr != nil {
			rel = outPath
		}
		wavePathsRel = append(wavePathsRel, rel)
	}

	metrics := computeQualityMetrics(samples, gainedMix, envelope, amplitudeEnvelope(gainedMix, frameSizeDefault, hopSizeDefault))

	return waveform.DecomposeResult{
		Job:            job,
		Success:        true,
		WavePaths:      wavePaths,
		WavePathsRel:   wavePathsRel,
		QualityMetrics: metrics,
	}
}

// estimatePitchContour returns a per-sample fundamental-frequency estimate
// in Hz, built from per-frame autocorrelation and linearly interpolated
// between frame centers.
func estimatePitchContour(samples []float64, sampleRate, frameSize, hop int) []float64 {
	centers, perFrame := make([]int, 0), make([]float64, 0)
	minLag := int(float64(sampleRate) / pitchMaxHz)
	maxLag := int(float64(sampleRate) / pitchMinHz)
	if minLag < 1 {
		minLag = 1
	}

	for start := 0; start+frameSize <= len(samples); start += hop {
		frame := samples[start : start+frameSize]
		f0 := autocorrelationPitch(frame, sampleRate, minLag, maxLag)
		centers = append(centers, start+frameSize/2)
		perFrame = append(perFrame, f0)
	}
	if len(centers) == 0 {
		flat := make([]float64, len(samples))
		for i := range flat {
			flat[i] = (pitchMinHz + pitchMaxHz) / 2
		}
		return flat
	}
	return interpolateToLength(centers, perFrame, len(samples))
}

func autocorrelationPitch(frame []float64, sampleRate, minLag, maxLag int) float64 {
	if maxLag >= len(frame) {
		maxLag = len(frame) - 1
	}
	bestLag, bestVal := -1, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		sum := 0.0
		for i := 0; i+lag < len(frame); i++ {
			sum += frame[i] * frame[i+lag]
		}
		if sum > bestVal {
			bestVal = sum
			bestLag = lag
		}
	}
	if bestLag <= 0 {
		return (pitchMinHz + pitchMaxHz) / 2
	}
	return float64(sampleRate) / float64(bestLag)
}

// amplitudeEnvelope returns a per-sample RMS envelope, interpolated between
// frame centers. This stands in for the spectral-content analysis (STFT)
// the contract names; the contract only requires a time-varying envelope
// derived from the signal, not a specific transform.
func amplitudeEnvelope(samples []float64, frameSize, hop int) []float64 {
	if len(samples) == 0 {
		return nil
	}
	centers, perFrame := make([]int, 0), make([]float64, 0)
	for start := 0; start < len(samples); start += hop {
		end := start + frameSize
		if end > len(samples) {
			end = len(samples)
		}
		frame := samples[start:end]
		perFrame = append(perFrame, rms(frame))
		centers = append(centers, start+(end-start)/2)
		if end == len(samples) {
			break
		}
	}
	return interpolateToLength(centers, perFrame, len(samples))
}

func rms(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x * x
	}
	return math.Sqrt(sum / float64(len(xs)))
}

// interpolateToLength linearly interpolates sparse (center, value) samples
// across a full-length array, clamping at the edges.
func interpolateToLength(centers []int, values []float64, length int) []float64 {
	out := make([]float64, length)
	if len(centers) == 1 {
		for i := range out {
			out[i] = values[0]
		}
		return out
	}
	ci := 0
	for i := 0; i < length; i++ {
		for ci < len(centers)-2 && centers[ci+1] < i {
			ci++
		}
		x0, x1 := centers[ci], centers[ci+1]
		y0, y1 := values[ci], values[ci+1]
		if i <= x0 {
			out[i] = y0
			continue
		}
		if i >= x1 {
			out[i] = y1
			continue
		}
		t := float64(i-x0) / float64(x1-x0)
		out[i] = y0 + t*(y1-y0)
	}
	return out
}

// mapToBand rescales a pitch contour's own min-max range into [low, high],
// preserving its contour shape.
func mapToBand(pitch []float64, b band) []float64 {
	minV, maxV := pitch[0], pitch[0]
	for _, v := range pitch {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	spread := maxV - minV
	out := make([]float64, len(pitch))
	for i, v := range pitch {
		if spread < 1e-9 {
			out[i] = (b.low + b.high) / 2
			continue
		}
		t := (v - minV) / spread
		out[i] = b.low + t*(b.high-b.low)
	}
	return out
}

// scaleFreqForWave raises wave k's frequencies by a factor of
// 1+0.08*(k-1), so downstream hardware sees distinct but related carriers
// per wave. When the slot has a band, results are clamped to
// [0.5*low, 1.5*high], which can lie outside the band itself.
func scaleFreqForWave(freq []float64, waveIndex int, hasBand bool, b band) []float64 {
	if waveIndex == 1 {
		return freq
	}
	factor := 1.0 + 0.08*float64(waveIndex-1)
	out := make([]float64, len(freq))
	for i, f := range freq {
		v := f * factor
		if hasBand {
			if v > b.high*1.5 {
				v = b.high * 1.5
			}
			if v < b.low*0.5 {
				v = b.low * 0.5
			}
		}
		out[i] = v
	}
	return out
}

// scaleEnvelopeForWave gives later waves a progressively smaller share of
// the energy, approximating a harmonic rolloff.
func scaleEnvelopeForWave(env []float64, waveIndex, nWaves int) []float64 {
	weight := 1.0 / float64(waveIndex)
	out := make([]float64, len(env))
	for i, v := range env {
		out[i] = v * weight
	}
	return out
}

// synthesizeCosine builds cos(phase) * amplitude via cumulative phase
// integration, so the instantaneous frequency tracks freqCurve exactly.
func synthesizeCosine(freqCurve, ampCurve []float64, sampleRate int) []float64 {
	n := len(freqCurve)
	out := make([]float64, n)
	phase := 0.0
	for i := 0; i < n; i++ {
		phase += 2 * math.Pi * freqCurve[i] / float64(sampleRate)
		amp := 0.0
		if i < len(ampCurve) {
			amp = ampCurve[i]
		}
		out[i] = amp * math.Cos(phase)
	}
	return out
}

func sumWaves(waves [][]float64, length int) []float64 {
	mix := make([]float64, length)
	for _, w := range waves {
		for i := 0; i < length && i < len(w); i++ {
			mix[i] += w[i]
		}
	}
	return mix
}

// gainCurve is the sample-level ratio of the original RMS envelope to the
// synthetic mix's RMS envelope, clipped to [0, 10].
func gainCurve(original, mix []float64, frameSize, hop int) []float64 {
	origEnv := amplitudeEnvelope(original, frameSize, hop)
	mixEnv := amplitudeEnvelope(mix, frameSize, hop)
	out := make([]float64, len(origEnv))
	for i := range out {
		m := mixEnv[i]
		var g float64
		if m < 1e-9 {
			g = 0
		} else {
			g = origEnv[i] / m
		}
		if g < 0 {
			g = 0
		}
		if g > 10 {
			g = 10
		}
		out[i] = g
	}
	return out
}

func applyGain(waves [][]float64, gain []float64) {
	for _, w := range waves {
		for i := range w {
			if i < len(gain) {
				w[i] *= gain[i]
			}
		}
	}
}

// computeQualityMetrics reports informational figures about how closely
// the gained mix tracks the original signal and its envelope.
func computeQualityMetrics(original, mix, origEnv, mixEnv []float64) waveform.QualityMetrics {
	n := len(original)
	if n == 0 {
		return waveform.QualityMetrics{}
	}
	sumSq, sumAbsOrigSq := 0.0, 0.0
	for i := 0; i < n; i++ {
		d := original[i] - mix[i]
		sumSq += d * d
		sumAbsOrigSq += original[i] * original[i]
	}
	mse := sumSq / float64(n)
	rmse := math.Sqrt(mse)
	origRMS := math.Sqrt(sumAbsOrigSq / float64(n))
	nrmse := 0.0
	if origRMS > 1e-9 {
		nrmse = rmse / origRMS
	}
	snr := 0.0
	if sumSq > 1e-12 {
		snr = 10 * math.Log10(sumAbsOrigSq/sumSq)
	} else {
		snr = 120 // near-perfect reconstruction
	}
	envCorr := pearsonCorrelation(origEnv, mixEnv)

	return waveform.QualityMetrics{
		RMSE:     rmse,
		NRMSE:    nrmse,
		SNRdB:    snr,
		EnvCorr:  envCorr,
		Computed: true,
	}
}

func pearsonCorrelation(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}
	var meanA, meanB float64
	for i := 0; i < n; i++ {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= float64(n)
	meanB /= float64(n)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da, db := a[i]-meanA, b[i]-meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA < 1e-12 || varB < 1e-12 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}
