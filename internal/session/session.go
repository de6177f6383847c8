// Package session implements the per-broadcast session store (C1): session
// allocation, the deterministic filesystem layout for TTS and wave
// artifacts, and the once-per-session manifest.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session not found")

// Session is a per-request scope: a UUID, a filesystem root, and a
// manifest accumulated in memory until the workflow finalizes.
type Session struct {
	ID        string
	RootDir   string // artifactsRoot/tts/sessions/<id>
	CreatedAt time.Time

	mu       sync.Mutex
	manifest Manifest
}

// Manifest is the append-in-memory record flushed to session.json exactly
// once at workflow end.
type Manifest struct {
	SessionID string           `json:"session_id"`
	CreatedAt time.Time        `json:"created_at"`
	State     string           `json:"state,omitempty"`
	Slots     []SlotAssignment `json:"slots"`
	Turns     []TurnRecord     `json:"turns"`
	Summary   *SummaryRecord   `json:"summary,omitempty"`
}

// SlotAssignment mirrors the request's slot_id -> agent_id binding.
type SlotAssignment struct {
	SlotID  int    `json:"slot_id"`
	AgentID string `json:"agent_id"`
}

// TurnRecord is one slot's outcome within a turn, recorded for the
// manifest regardless of success.
type TurnRecord struct {
	TurnIndex      int    `json:"turn_index"`
	SlotID         int    `json:"slot_id"`
	AgentID        string `json:"agent_id"`
	Kind           string `json:"kind"` // reflect | comment | reply
	Success        bool   `json:"success"`
	AudioRelPath   string `json:"audio_rel_path,omitempty"`
	TargetSlotID   int    `json:"target_slot_id,omitempty"`
	ErrorKind      string `json:"error_kind,omitempty"`
}

// SummaryRecord records the Turn-4 outcome.
type SummaryRecord struct {
	Success      bool   `json:"success"`
	AudioRelPath string `json:"audio_rel_path,omitempty"`
}

// RecordSlots seeds the manifest with the request's slot assignments.
func (s *Session) RecordSlots(slots []SlotAssignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifest.Slots = slots
}

// RecordTurn appends one slot's turn outcome to the manifest.
func (s *Session) RecordTurn(r TurnRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifest.Turns = append(s.manifest.Turns, r)
}

// RecordSummary sets the manifest's summary outcome.
func (s *Session) RecordSummary(r SummaryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifest.Summary = &r
}

// SetState records the engine's current workflow state for observability;
// it is informational only and never gates behavior.
func (s *Session) SetState(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifest.State = state
}

// State returns the most recently recorded workflow state.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manifest.State
}

// TurnRecords returns a copy of the turn outcomes recorded so far.
func (s *Session) TurnRecords() []TurnRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TurnRecord(nil), s.manifest.Turns...)
}

// FlushManifest writes session.json exactly once. Failure is returned to
// the caller to log; it must never fail the request.
func (s *Session) FlushManifest() error {
	s.mu.Lock()
	m := s.manifest
	m.SessionID = s.ID
	m.CreatedAt = s.CreatedAt
	s.mu.Unlock()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(s.RootDir, "session.json")
	return os.WriteFile(path, data, 0o644)
}

// Store allocates sessions and owns the artifacts root.
type Store struct {
	mu            sync.RWMutex
	sessions      map[string]*Session
	artifactsRoot string
}

func NewStore(artifactsRoot string) *Store {
	return &Store{
		sessions:      make(map[string]*Session),
		artifactsRoot: artifactsRoot,
	}
}

// Create allocates a fresh session, including its turn_1/turn_2/turn_3/
// summary subdirectories.
func (st *Store) Create() (*Session, error) {
	id := uuid.NewString()
	root := filepath.Join(st.artifactsRoot, "tts", "sessions", id)
	for _, sub := range []string{"turn_1", "turn_2", "turn_3", "summary"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
	}
	wavesRoot := filepath.Join(st.artifactsRoot, "waves", "sessions", id)
	for _, sub := range []string{"turn_1", "turn_2", "turn_3", "summary"} {
		if err := os.MkdirAll(filepath.Join(wavesRoot, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create waves dir: %w", err)
		}
	}

	s := &Session{
		ID:        id,
		RootDir:   root,
		CreatedAt: time.Now().UTC(),
	}
	st.mu.Lock()
	st.sessions[id] = s
	st.mu.Unlock()
	return s, nil
}

func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// ArtifactsRoot exposes the configured root for path derivation elsewhere.
func (st *Store) ArtifactsRoot() string {
	return st.artifactsRoot
}
