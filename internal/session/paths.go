package session

import (
	"fmt"
	"path/filepath"
)

// Turn1Basename is the extension-less filename for a Turn-1 reflection.
func Turn1Basename(slotID int, agentID, voiceProfile string) string {
	return fmt.Sprintf("slot-%d_%s_%s", slotID, agentID, voiceProfile)
}

// Turn2Basename is the extension-less filename for a Turn-2 comment.
func Turn2Basename(slotID, targetSlotID int, agentID, voiceProfile string) string {
	return fmt.Sprintf("slot-%d_comment_to_slot-%d_%s_%s", slotID, targetSlotID, agentID, voiceProfile)
}

// Turn3Basename is the extension-less filename for a Turn-3 reply.
func Turn3Basename(slotID int, agentID, voiceProfile string) string {
	return fmt.Sprintf("slot-%d_reply_%s_%s", slotID, agentID, voiceProfile)
}

// SummaryBasename is the extension-less filename for the Turn-4 summary.
func SummaryBasename(voiceProfile string) string {
	return fmt.Sprintf("summary_%s", voiceProfile)
}

// TTSPath returns the absolute and relative (to the artifacts root) paths
// of a turn's WAV file, given its basename.
func (s *Session) TTSPath(artifactsRoot string, turnIndex int, basename string) (abs, rel string) {
	rel = filepath.Join("tts", "sessions", s.ID, turnSubdir(turnIndex), basename+".wav")
	abs = filepath.Join(artifactsRoot, rel)
	return abs, rel
}

// WaveDir returns the directory decomposed wave files for this turn are
// written into.
func (s *Session) WaveDir(artifactsRoot string, turnIndex int) string {
	return filepath.Join(artifactsRoot, "waves", "sessions", s.ID, turnSubdir(turnIndex))
}

func turnSubdir(turnIndex int) string {
	switch turnIndex {
	case 1:
		return "turn_1"
	case 2:
		return "turn_2"
	case 3:
		return "turn_3"
	default:
		return "summary"
	}
}
