package waveform

import (
	"fmt"
	"path/filepath"
)

// DeriveWavePaths computes the deterministic wave1/wave2 paths for a turn
// slot's TTS basename. Summary wave paths use DeriveSummaryWavePath instead,
// since the summary maps wave<i> to slot<i> rather than wave1/wave2 to
// self/next.
func DeriveWavePaths(artifactsRoot, sessionID string, turnIndex int, basename string) (wave1Abs, wave1Rel, wave2Abs, wave2Rel string) {
	baseRel := filepath.Join("waves", "sessions", sessionID, turnDir(turnIndex), basename+"_v3")
	wave1Rel = baseRel + "_wave1.wav"
	wave2Rel = baseRel + "_wave2.wav"
	wave1Abs = filepath.Join(artifactsRoot, wave1Rel)
	wave2Abs = filepath.Join(artifactsRoot, wave2Rel)
	return wave1Abs, wave1Rel, wave2Abs, wave2Rel
}

// DeriveSummaryWavePath computes the path of the i-th summary wave file
// (1-indexed), which maps 1:1 onto slot i.
func DeriveSummaryWavePath(artifactsRoot, sessionID, basename string, waveIndex int) (abs, rel string) {
	rel = filepath.Join("waves", "sessions", sessionID, "summary", fmt.Sprintf("%s_v3_wave%d.wav", basename, waveIndex))
	abs = filepath.Join(artifactsRoot, rel)
	return abs, rel
}

func turnDir(turnIndex int) string {
	if turnIndex == SummaryTurnIndex {
		return "summary"
	}
	return fmt.Sprintf("turn_%d", turnIndex)
}

// TargetSlotForWave implements the physical-routing contract: wave1 routes
// to the agent's own slot, wave2 routes to the next slot (wrapping 6 -> 1).
func TargetSlotForWave(slotID, waveIndex int) int {
	if waveIndex == 1 {
		return slotID
	}
	return (slotID % 6) + 1
}
