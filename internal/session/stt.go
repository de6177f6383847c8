package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// STTRecord is written as metadata.json alongside a transcription's input
// audio and transcript files.
type STTRecord struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	InputPath  string    `json:"inputPath"`
	DurationMS float64   `json:"durationMs"`
	ModelID    string    `json:"modelId"`
}

// NewSTTSessionDir creates artifacts/stt/sessions/<id>/ and returns its
// path and the newly generated session id.
func NewSTTSessionDir(artifactsRoot string) (dir, id string, err error) {
	id = uuid.NewString()
	dir = filepath.Join(artifactsRoot, "stt", "sessions", id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create stt session dir: %w", err)
	}
	return dir, id, nil
}

// WriteSTTArtifacts writes input.<ext>, transcript.json, transcript.txt,
// and metadata.json into dir, per the filesystem contract.
func WriteSTTArtifacts(dir, ext string, inputBytes []byte, transcriptJSON []byte, transcriptText string, rec STTRecord) error {
	inputPath := filepath.Join(dir, "input"+ext)
	if err := os.WriteFile(inputPath, inputBytes, 0o644); err != nil {
		return fmt.Errorf("write input audio: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "transcript.json"), transcriptJSON, 0o644); err != nil {
		return fmt.Errorf("write transcript.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "transcript.txt"), []byte(transcriptText), 0o644); err != nil {
		return fmt.Errorf("write transcript.txt: %w", err)
	}
	rec.InputPath = inputPath
	metaBytes, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), metaBytes, 0o644); err != nil {
		return fmt.Errorf("write metadata.json: %w", err)
	}
	return nil
}
