package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/reflective-resonance/turnengine/internal/waveform"
)

// Orchestrator owns every session's readiness state and the single
// controller subscriber. All state is touched from one goroutine
// (run); every other goroutine talks to it exclusively by sending
// commands on cmds, never by taking a lock on session state. This is
// the message-passing discipline the engine/pool boundary also uses,
// applied to the engine/orchestrator boundary.
type Orchestrator struct {
	results <-chan waveform.DecomposeResult
	cmds    chan any

	workflowTimeout time.Duration
	logger          *slog.Logger

	subMu sync.Mutex
	sub   Subscriber

	done chan struct{}
}

func NewOrchestrator(results <-chan waveform.DecomposeResult, workflowTimeout time.Duration, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		results:         results,
		cmds:            make(chan any, 256),
		workflowTimeout: workflowTimeout,
		logger:          logger,
		done:            make(chan struct{}),
	}
}

// --- commands sent by the turn engine ---

type cmdBeginSession struct {
	SessionID string
	SlotIDs   []int
	Applied   chan struct{}
}

type cmdTurn1Complete struct{ SessionID string }

type cmdTurn3Complete struct {
	SessionID string
	Turn3Slot []int
	Dialogues []waveform.Dialogue
}

type cmdSentiment struct {
	SessionID     string
	Sentiment     string
	Justification string
}

type cmdSummaryText struct {
	SessionID string
	Text      string
}

type cmdWorkflowTimeout struct{ SessionID string }

type cmdEndSession struct{ SessionID string }

type cmdRawEvent struct {
	SessionID string
	Type      string
	Payload   any
}

// Progress event type names, emitted immediately (not part of the
// readiness batch).
const (
	EventTurnStart = "turn.start"
	EventTurnDone  = "turn.done"
	EventSlotStart = "slot.start"
	EventSlotDone  = "slot.done"
	EventSlotAudio = "slot.audio"
	EventSlotError = "slot.error"
)

// TurnLifecyclePayload covers turn.start and turn.done. SlotCount is only
// meaningful on turn.done, where it carries the number of slots that
// succeeded in that turn.
type TurnLifecyclePayload struct {
	TurnIndex int `json:"turnIndex"`
	SlotCount int `json:"slotCount,omitempty"`
}

// DonePayload is the terminal event of a request's streamed channel.
type DonePayload struct {
	Turns int `json:"turns"`
}

// StreamSink delivers the per-request turn/slot lifecycle vocabulary to
// one broadcast's streamed HTTP response. It is independent of the
// controller channel: the engine calls both for the same lifecycle
// point, one scoped to a session, one process-wide.
type StreamSink interface {
	Send(eventType string, payload any)
}

const EventDone = "done"

// SlotLifecyclePayload covers slot.start, slot.done, slot.audio. Text and
// VoiceProfile are only populated on slot.done; AudioRelPath only on
// slot.audio.
type SlotLifecyclePayload struct {
	TurnIndex    int    `json:"turnIndex"`
	SlotID       int    `json:"slotId"`
	AgentID      string `json:"agentId"`
	TargetSlotID int    `json:"targetSlotId,omitempty"`
	Text         string `json:"text,omitempty"`
	VoiceProfile string `json:"voiceProfile,omitempty"`
	AudioRelPath string `json:"audioRelPath,omitempty"`
}

// SlotErrorPayload covers slot.error.
type SlotErrorPayload struct {
	TurnIndex int    `json:"turnIndex"`
	SlotID    int    `json:"slotId"`
	AgentID   string `json:"agentId"`
	ErrorKind string `json:"errorKind"`
	Message   string `json:"message"`
}

// EmitProgress sends a turn/slot lifecycle event immediately; it is
// never held back for batching.
func (o *Orchestrator) EmitProgress(sessionID, eventType string, payload any) {
	o.cmds <- cmdRawEvent{SessionID: sessionID, Type: eventType, Payload: payload}
}

// BeginSession registers the slots expected for turn 1 of a new session.
// It returns once Run has registered the session (or Run has stopped), so
// decomposition results submitted afterwards always find the session.
func (o *Orchestrator) BeginSession(sessionID string, slotIDs []int) {
	applied := make(chan struct{})
	o.cmds <- cmdBeginSession{SessionID: sessionID, SlotIDs: slotIDs, Applied: applied}
	select {
	case <-applied:
	case <-o.done:
	}
}

// Turn1Complete is informational: it exists so the engine's call sites
// mirror the original per-turn notification points, even though only the
// workflow-level timeout armed in Turn3Complete gates emission.
func (o *Orchestrator) Turn1Complete(sessionID string) {
	o.cmds <- cmdTurn1Complete{SessionID: sessionID}
}

// Turn3Complete arms the single workflow timeout and records the
// finalized dialogue set once turn 3 replies have been dispatched.
func (o *Orchestrator) Turn3Complete(sessionID string, turn3SlotIDs []int, dialogues []waveform.Dialogue) {
	o.cmds <- cmdTurn3Complete{SessionID: sessionID, Turn3Slot: turn3SlotIDs, Dialogues: dialogues}
}

// EmitSentiment delivers the sentiment classification as soon as it
// completes; it bypasses the readiness batch entirely.
func (o *Orchestrator) EmitSentiment(sessionID, sentiment, justification string) {
	o.cmds <- cmdSentiment{SessionID: sessionID, Sentiment: sentiment, Justification: justification}
}

// SummaryText attaches the generated summary text so it can accompany the
// summary's decomposition result when it arrives.
func (o *Orchestrator) SummaryText(sessionID, text string) {
	o.cmds <- cmdSummaryText{SessionID: sessionID, Text: text}
}

// EndSession drops a session's state once its events have all been
// delivered (or the process has given up waiting on it).
func (o *Orchestrator) EndSession(sessionID string) {
	o.cmds <- cmdEndSession{SessionID: sessionID}
}

// SetSubscriber installs the process's single controller connection,
// closing and replacing any previous one.
func (o *Orchestrator) SetSubscriber(sub Subscriber) {
	o.subMu.Lock()
	prev := o.sub
	o.sub = sub
	o.subMu.Unlock()
	if prev != nil {
		_ = prev.Close("replaced")
	}
	if sub != nil {
		_ = sub.SendJSON(Envelope{Type: EventHelloAck, TS: time.Now(), Payload: HelloAckPayload{Server: "turnengine", Version: "1"}})
	}
}

func (o *Orchestrator) send(env Envelope) {
	o.subMu.Lock()
	sub := o.sub
	o.subMu.Unlock()
	if sub == nil {
		return
	}
	if err := sub.SendJSON(env); err != nil {
		o.logger.Warn("controller send failed", "type", env.Type, "session", env.SessionID, "err", err)
	}
}

// Run drains results and commands on the calling goroutine until ctx is
// canceled. Callers should run it in its own goroutine.
func (o *Orchestrator) Run(ctx context.Context) {
	defer close(o.done)
	sessions := map[string]*sessionState{}
	timers := map[string]*time.Timer{}

	stopTimer := func(id string) {
		if t, ok := timers[id]; ok {
			t.Stop()
			delete(timers, id)
		}
	}

	for {
		select {
		case <-ctx.Done():
			for _, t := range timers {
				t.Stop()
			}
			return

		case res, ok := <-o.results:
			if !ok {
				o.results = nil
				continue
			}
			st := sessions[res.Job.SessionID]
			if st == nil {
				continue
			}
			st.recordResult(res)
			o.maybeEmit(res.Job.SessionID, st)

		case c := <-o.cmds:
			switch cmd := c.(type) {
			case cmdBeginSession:
				sessions[cmd.SessionID] = newSessionState(cmd.SlotIDs)
				if cmd.Applied != nil {
					close(cmd.Applied)
				}

			case cmdTurn1Complete:
				// Informational only under the single-workflow-timeout
				// model; no per-turn timer is armed here.

			case cmdTurn3Complete:
				st := sessions[cmd.SessionID]
				if st == nil {
					continue
				}
				for _, id := range cmd.Turn3Slot {
					st.turn3Expected[id] = true
				}
				st.dialogues = cmd.Dialogues
				st.workflowComplete = true
				sid := cmd.SessionID
				stopTimer(sid)
				timers[sid] = time.AfterFunc(o.workflowTimeout, func() {
					defer func() { recover() }()
					o.cmds <- cmdWorkflowTimeout{SessionID: sid}
				})
				o.maybeEmit(cmd.SessionID, st)

			case cmdSentiment:
				o.send(Envelope{
					Type:      EventUserSentiment,
					SessionID: cmd.SessionID,
					Seq:       o.nextSeqFor(sessions, cmd.SessionID),
					TS:        time.Now(),
					Payload:   UserSentimentPayload{Sentiment: cmd.Sentiment, Justification: cmd.Justification},
				})

			case cmdSummaryText:
				st := sessions[cmd.SessionID]
				if st == nil {
					continue
				}
				st.summaryText = cmd.Text
				o.maybeEmitSummary(cmd.SessionID, st)

			case cmdWorkflowTimeout:
				st := sessions[cmd.SessionID]
				if st == nil {
					continue
				}
				delete(timers, cmd.SessionID)
				o.emitBatch(cmd.SessionID, st, true)
				o.maybeEmitSummary(cmd.SessionID, st)

			case cmdEndSession:
				stopTimer(cmd.SessionID)
				delete(sessions, cmd.SessionID)

			case cmdRawEvent:
				o.send(Envelope{
					Type:      cmd.Type,
					SessionID: cmd.SessionID,
					Seq:       o.nextSeqFor(sessions, cmd.SessionID),
					TS:        time.Now(),
					Payload:   cmd.Payload,
				})
			}
		}
	}
}

func (o *Orchestrator) nextSeqFor(sessions map[string]*sessionState, sessionID string) int {
	st, ok := sessions[sessionID]
	if !ok {
		return 1
	}
	return st.nextSeq()
}

// maybeEmit checks whether the batch can fire early (all waves ready
// before the workflow timeout) and, independently, whether the summary
// can be emitted.
func (o *Orchestrator) maybeEmit(sessionID string, st *sessionState) {
	if st.workflowComplete && !st.batchEmitted && st.turn1Complete() && st.allTurn2And3Ready() {
		o.emitBatch(sessionID, st, false)
	}
	o.maybeEmitSummary(sessionID, st)
}

func (o *Orchestrator) emitBatch(sessionID string, st *sessionState, timedOut bool) {
	if st.batchEmitted {
		return
	}
	st.batchEmitted = true

	o.send(Envelope{
		Type:      EventTurn1WavesReady,
		SessionID: sessionID,
		Seq:       st.nextSeq(),
		TS:        time.Now(),
		Payload:   st.turn1Payload(),
	})

	for _, d := range st.readyDialogues() {
		o.send(Envelope{
			Type:      EventDialogueWavesReady,
			SessionID: sessionID,
			Seq:       st.nextSeq(),
			TS:        time.Now(),
			Payload:   d,
		})
	}

	if timedOut {
		o.logger.Warn("workflow timeout fired before all waves were ready", "session", sessionID)
	}
}

func (o *Orchestrator) maybeEmitSummary(sessionID string, st *sessionState) {
	if !st.batchEmitted || !st.summaryReady || st.summaryText == "" {
		return
	}
	status := "ok"
	if !st.summaryOK {
		status = "decomposition_failed"
	}
	o.send(Envelope{
		Type:      EventFinalSummaryReady,
		SessionID: sessionID,
		Seq:       st.nextSeq(),
		TS:        time.Now(),
		Payload: FinalSummaryReadyPayload{
			Status:   status,
			Text:     st.summaryText,
			WaveInfo: st.summaryInfo,
		},
	})
	st.summaryReady = false
}

// Stopped reports whether Run has returned.
func (o *Orchestrator) Stopped() <-chan struct{} { return o.done }

