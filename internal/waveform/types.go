// Package waveform holds the data types shared by the decomposition pool,
// the events orchestrator, and the turn engine. It has no dependencies on
// any of them, which breaks the three-way cycle between those packages.
package waveform

import "time"

// SlotMeta is the metadata the orchestrator needs to reconstruct an event
// payload for one slot's TTS output, without parsing anything out of a
// filename.
type SlotMeta struct {
	SlotID        int
	AgentID       string
	VoiceProfile  string
	TTSBasename   string // base filename, no extension, used to derive wave paths
	AudioDuration time.Duration
}

// WavePaths derives the absolute and relative paths of wave1 and wave2 for
// this slot's turn, per the bit-exact layout in the filesystem contract.
func (m SlotMeta) WavePaths(artifactsRoot, sessionID string, turnIndex int) (wave1Abs, wave1Rel, wave2Abs, wave2Rel string) {
	return DeriveWavePaths(artifactsRoot, sessionID, turnIndex, m.TTSBasename)
}

// Dialogue bundles one Turn-3 respondent with the Turn-2 commenters that
// targeted the same slot.
type Dialogue struct {
	DialogueID    string // "turn23-slot<N>"
	TargetSlotID  int
	Commenters    []SlotMeta // registration order
	Respondent    SlotMeta
	HasRespondent bool
}

// SummaryTurnIndex is the TurnIndex sentinel that distinguishes the summary
// job from ordinary turn jobs.
const SummaryTurnIndex = -1

// DecomposeJob is immutable after submission; it carries enough slot
// metadata for the orchestrator to reconstruct event payloads without
// needing a callback into the engine.
type DecomposeJob struct {
	SessionID    string
	TurnIndex    int // 1, 2, 3, or SummaryTurnIndex
	SlotID       int
	AgentID      string
	VoiceProfile string
	TTSBasename  string
	InputPath    string
	OutputDir    string
	TargetSlotID int // meaningful for turn 2 (comment target); 0 otherwise
	NWaves       int
	SubmittedAt  time.Time
}

// QualityMetrics are informational figures describing how closely the
// synthetic wave mix tracks the original audio's envelope.
type QualityMetrics struct {
	RMSE     float64
	NRMSE    float64
	SNRdB    float64
	EnvCorr  float64
	Computed bool
}

// DecomposeResult is delivered by the worker pool to the orchestrator over
// a result channel, never via a callback invoked in the worker's own
// goroutine.
type DecomposeResult struct {
	Job            DecomposeJob
	Success        bool
	WavePaths      []string // absolute paths, in wave-index order
	WavePathsRel   []string
	QualityMetrics QualityMetrics
	Error          string
	DurationMS     float64
}
