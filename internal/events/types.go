// Package events implements the controller event channel orchestrator
// (C4): single-subscriber delivery, per-session readiness tracking, and
// timeout-bounded batch emission.
package events

import "time"

// Envelope is the common wire format for every controller event.
type Envelope struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId"`
	Seq       int       `json:"seq"`
	TS        time.Time `json:"ts"`
	Payload   any       `json:"payload"`
}

const (
	EventUserSentiment     = "user_sentiment"
	EventTurn1WavesReady   = "turn1.waves.ready"
	EventDialogueWavesReady = "dialogue.waves.ready"
	EventFinalSummaryReady = "final_summary.ready"
	EventHelloAck          = "hello.ack"
)

// SlotWaveInfo is the per-slot wave-readiness payload shared by the batch
// events.
type SlotWaveInfo struct {
	SlotID            int    `json:"slotId"`
	AgentID           string `json:"agentId"`
	VoiceProfile      string `json:"voiceProfile"`
	Wave1PathAbs      string `json:"wave1PathAbs"`
	Wave1PathRel      string `json:"wave1PathRel"`
	Wave1TargetSlotID int    `json:"wave1TargetSlotId"`
	Wave2PathAbs      string `json:"wave2PathAbs"`
	Wave2PathRel      string `json:"wave2PathRel"`
	Wave2TargetSlotID int    `json:"wave2TargetSlotId"`
}

// UserSentimentPayload is emitted once the sentiment stage completes.
type UserSentimentPayload struct {
	Sentiment     string `json:"sentiment"`
	Justification string `json:"justification"`
}

// Turn1WavesReadyPayload is the first event of every batch.
type Turn1WavesReadyPayload struct {
	TurnIndex      int            `json:"turnIndex"`
	Status         string         `json:"status"` // complete | partial
	SlotsExpected  int            `json:"slotsExpected"`
	SlotsReady     int            `json:"slotsReady"`
	Slots          []SlotWaveInfo `json:"slots"`
	MissingSlotIDs []int          `json:"missingSlotIds"`
}

// PlayOrderEntry is one step of a dialogue's playback order.
type PlayOrderEntry struct {
	Role   string `json:"role"` // commenter | respondent
	SlotID int    `json:"slotId"`
}

// DialogueWavesReadyPayload describes one ready dialogue.
type DialogueWavesReadyPayload struct {
	DialogueID   string           `json:"dialogueId"`
	Turns        [2]int           `json:"turns"`
	TargetSlotID int              `json:"targetSlotId"`
	Commenters   []SlotWaveInfo   `json:"commenters"`
	Respondent   SlotWaveInfo     `json:"respondent"`
	PlayOrder    []PlayOrderEntry `json:"playOrder"`
}

// FinalSummaryWaveEntry is one of the six slot-addressed summary waves.
type FinalSummaryWaveEntry struct {
	SlotID       int    `json:"slotId"`
	WavePathAbs  string `json:"wavePathAbs"`
	WavePathRel  string `json:"wavePathRel"`
}

// FinalSummaryWaveInfo groups the summary's voice profile with its waves.
type FinalSummaryWaveInfo struct {
	VoiceProfile string                  `json:"voiceProfile"`
	Waves        []FinalSummaryWaveEntry `json:"waves"`
}

// FinalSummaryReadyPayload is the last event of a session.
type FinalSummaryReadyPayload struct {
	Status   string                 `json:"status"`
	Text     string                 `json:"text"`
	WaveInfo *FinalSummaryWaveInfo  `json:"waveInfo,omitempty"`
}

// HelloAckPayload is sent once to each controller subscriber as soon as
// SetSubscriber installs it; frames the client sends are not answered.
type HelloAckPayload struct {
	Server  string `json:"server"`
	Version string `json:"version"`
}

// Subscriber is the single controller connection. SendJSON must be safe to
// call from the orchestrator's consumer goroutine; Close is best-effort.
type Subscriber interface {
	SendJSON(v any) error
	Close(reason string) error
}
