package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/reflective-resonance/turnengine/internal/agents"
	"github.com/reflective-resonance/turnengine/internal/audio"
	"github.com/reflective-resonance/turnengine/internal/conversation"
	"github.com/reflective-resonance/turnengine/internal/decompose"
	"github.com/reflective-resonance/turnengine/internal/events"
	"github.com/reflective-resonance/turnengine/internal/llmclient"
	"github.com/reflective-resonance/turnengine/internal/observability"
	"github.com/reflective-resonance/turnengine/internal/reliability"
	"github.com/reflective-resonance/turnengine/internal/sentiment"
	"github.com/reflective-resonance/turnengine/internal/session"
	"github.com/reflective-resonance/turnengine/internal/ttsclient"
	"github.com/reflective-resonance/turnengine/internal/waveform"
)

// Config holds the tuning knobs the engine needs per call, lifted
// verbatim out of internal/config.Config by the caller at wiring time.
type Config struct {
	SystemPrompt    string
	Temperature     float64
	MaxTokens       int
	LLMModel        string
	Turn1Timeout    time.Duration
	DialogueTimeout time.Duration

	SentimentEnabled bool

	SummaryEnabled     bool
	SummaryModel       string
	SummaryTemperature float64
	SummaryMaxTokens   int
}

// Engine wires the LLM/TTS collaborators, the decomposition pool, and
// the events orchestrator into one four-turn workflow run per session.
type Engine struct {
	cfg Config

	convLog      *conversation.Log
	store        *session.Store
	pool         *decompose.Pool
	orchestrator *events.Orchestrator
	llm          *llmclient.Client
	tts          *ttsclient.Client
	sentiment    *sentiment.Classifier
	metrics      *observability.Metrics
	logger       *slog.Logger
}

func New(cfg Config, convLog *conversation.Log, store *session.Store, pool *decompose.Pool, orchestrator *events.Orchestrator, llm *llmclient.Client, tts *ttsclient.Client, sentimentClassifier *sentiment.Classifier, metrics *observability.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg: cfg, convLog: convLog, store: store, pool: pool,
		orchestrator: orchestrator, llm: llm, tts: tts, sentiment: sentimentClassifier,
		metrics: metrics, logger: logger,
	}
}

func (e *Engine) completeLLM(ctx context.Context, req llmclient.Request) (llmclient.Response, error) {
	start := time.Now()
	resp, err := e.llm.Complete(ctx, req)
	e.metrics.ObserveCollaboratorCall("llm", time.Since(start))
	if err != nil {
		e.metrics.ObserveCollaboratorError("llm", string(reliability.ClassifyError(err)))
	}
	return resp, err
}

// emit notifies the controller channel unconditionally and, if a
// per-request sink is attached, mirrors the same event onto the
// streamed broadcast response.
func (e *Engine) emit(sess *session.Session, sink events.StreamSink, eventType string, payload any) {
	e.orchestrator.EmitProgress(sess.ID, eventType, payload)
	if sink != nil {
		sink.Send(eventType, payload)
	}
}

func (e *Engine) synthesizeTTS(ctx context.Context, voiceProfile, text string) ([]float64, int, error) {
	start := time.Now()
	samples, sampleRate, err := e.tts.Synthesize(ctx, voiceProfile, text)
	e.metrics.ObserveCollaboratorCall("tts", time.Since(start))
	if err != nil {
		e.metrics.ObserveCollaboratorError("tts", string(ttsclient.ClassifyErr(err)))
	}
	return samples, sampleRate, err
}

// slotResult is turn1/turn2/turn3's per-slot outcome.
type slotResult struct {
	SlotID  int
	Agent   agents.Agent
	Text    string
	Success bool
	ErrKind reliability.ErrorKind
	ErrMsg  string
}

// RunWorkflow drives one complete session for the given slot assignments:
// turn 1-3, and the closing summary. It returns a non-nil error only on a
// fatal setup error; per-slot failures are recorded and surfaced as events,
// not returned. sink may be nil, in which case only the controller channel
// receives lifecycle events.
func (e *Engine) RunWorkflow(ctx context.Context, sess *session.Session, slots []session.SlotAssignment, userText string, sink events.StreamSink) error {
	if len(slots) == 0 {
		return fmt.Errorf("no slot assignments")
	}
	assignments := make(map[int]agents.Agent, len(slots))
	slotIDs := make([]int, 0, len(slots))
	for _, sa := range slots {
		a, ok := agents.Get(sa.AgentID)
		if !ok {
			return fmt.Errorf("unknown agent %q for slot %d", sa.AgentID, sa.SlotID)
		}
		assignments[sa.SlotID] = a
		slotIDs = append(slotIDs, sa.SlotID)
	}
	sort.Ints(slotIDs)
	sess.RecordSlots(slots)
	if e.metrics != nil {
		e.metrics.ActiveSessions.Inc()
		defer e.metrics.ActiveSessions.Dec()
	}

	e.orchestrator.BeginSession(sess.ID, slotIDs)

	if e.cfg.SentimentEnabled && e.sentiment != nil {
		go func() {
			res := e.sentiment.Classify(context.Background(), userText)
			if res != nil {
				e.orchestrator.EmitSentiment(sess.ID, res.Sentiment, res.Justification)
			}
		}()
	}

	for _, slotID := range slotIDs {
		e.convLog.Append(slotID, conversation.RoleUser, userText)
	}

	sess.SetState(string(StateNew))
	workflowStart := time.Now()

	sess.SetState(string(StateTurn1Running))
	turn1Start := time.Now()
	turn1Ctx, cancel1 := context.WithTimeout(ctx, e.cfg.Turn1Timeout)
	turn1 := e.runTurn1(turn1Ctx, sess, sink, assignments, slotIDs, userText, workflowStart)
	cancel1()
	e.metrics.ObserveTurnStage("turn1", time.Since(turn1Start))
	e.orchestrator.Turn1Complete(sess.ID)
	sess.SetState(string(StateTurn1Done))

	sess.SetState(string(StateTurn2Running))
	turn2Start := time.Now()
	comments := e.runTurn2(ctx, sess, sink, assignments, turn1)
	e.metrics.ObserveTurnStage("turn2", time.Since(turn2Start))
	sess.SetState(string(StateTurn2Done))

	sess.SetState(string(StateTurn3Running))
	turn3Start := time.Now()
	dialogueCtx, cancel3 := context.WithTimeout(ctx, e.cfg.DialogueTimeout)
	turn3, dialogues := e.runTurn3(dialogueCtx, sess, sink, assignments, comments)
	cancel3()
	e.metrics.ObserveTurnStage("turn3", time.Since(turn3Start))

	turn3SlotIDs := make([]int, 0, len(turn3))
	for _, r := range turn3 {
		if r.Success {
			turn3SlotIDs = append(turn3SlotIDs, r.SlotID)
		}
	}
	e.orchestrator.Turn3Complete(sess.ID, turn3SlotIDs, dialogues)
	sess.SetState(string(StateTurn3Done))

	turnsRun := 3
	if e.cfg.SummaryEnabled {
		sess.SetState(string(StateSummaryRunning))
		summaryStart := time.Now()
		e.runSummary(ctx, sess, slotIDs)
		e.metrics.ObserveTurnStage("summary", time.Since(summaryStart))
		turnsRun = 4
	}

	sess.SetState(string(StateTerminal))
	if err := sess.FlushManifest(); err != nil {
		e.logger.Warn("flush manifest failed", "session", sess.ID, "err", err)
	}
	if sink != nil {
		sink.Send(events.EventDone, events.DonePayload{Turns: turnsRun})
	}
	return nil
}

func (e *Engine) runTurn1(ctx context.Context, sess *session.Session, sink events.StreamSink, assignments map[int]agents.Agent, slotIDs []int, userText string, workflowStart time.Time) []slotResult {
	e.emit(sess, sink, events.EventTurnStart, events.TurnLifecyclePayload{TurnIndex: 1})

	var wg sync.WaitGroup
	var firstAudioOnce sync.Once
	results := make([]slotResult, len(slotIDs))
	for i, slotID := range slotIDs {
		wg.Add(1)
		go func(i, slotID int) {
			defer wg.Done()
			agent := assignments[slotID]
			e.emit(sess, sink, events.EventSlotStart, events.SlotLifecyclePayload{TurnIndex: 1, SlotID: slotID, AgentID: agent.ID})
			r := e.speakTurn(ctx, sess, sink, 1, slotID, 0, agent, e.buildTurn1Prompt(agent, userText))
			results[i] = r
			e.recordSlotOutcome(sess, sink, 1, slotID, 0, agent, r)
			if r.Success {
				firstAudioOnce.Do(func() {
					e.metrics.ObserveFirstAudioLatency(time.Since(workflowStart))
				})
			}
		}(i, slotID)
	}
	wg.Wait()
	e.emit(sess, sink, events.EventTurnDone, events.TurnLifecyclePayload{TurnIndex: 1, SlotCount: successCount(results)})
	return results
}

// successCount counts how many slot results succeeded, for the
// slotCount field reported on turn.done.
func successCount(results []slotResult) int {
	n := 0
	for _, r := range results {
		if r.Success {
			n++
		}
	}
	return n
}

func (e *Engine) buildTurn1Prompt(agent agents.Agent, userText string) []llmclient.Message {
	return []llmclient.Message{
		{Role: "system", Content: fmt.Sprintf("%s You are %s, %s.", e.cfg.SystemPrompt, agent.Name, agent.Description)},
		{Role: "user", Content: userText},
	}
}

// runTurn2 asks every slot that succeeded in turn 1 to pick another slot's
// reflection and comment on it. The LLM's own target choice drives routing;
// an invalid or missing choice falls back to the first other successful
// slot. Comments are then capped at MaxCommentsPerTarget per target,
// dropping overflow candidates.
func (e *Engine) runTurn2(ctx context.Context, sess *session.Session, sink events.StreamSink, assignments map[int]agents.Agent, turn1 []slotResult) map[int][]comment {
	e.emit(sess, sink, events.EventTurnStart, events.TurnLifecyclePayload{TurnIndex: 2})

	successful := make([]slotResult, 0, len(turn1))
	for _, r := range turn1 {
		if r.Success {
			successful = append(successful, r)
		}
	}

	type pick struct {
		slotResult
		Target int
	}
	picks := make([]pick, len(successful))
	var wg sync.WaitGroup
	for i, r := range successful {
		candidates := otherSlots(successful, r.SlotID)
		if len(candidates) == 0 {
			continue
		}
		wg.Add(1)
		go func(i int, r slotResult, candidates []slotResult) {
			defer wg.Done()
			e.emit(sess, sink, events.EventSlotStart, events.SlotLifecyclePayload{TurnIndex: 2, SlotID: r.SlotID, AgentID: r.Agent.ID})
			resp, err := e.completeLLM(ctx, llmclient.Request{
				Model:       e.cfg.LLMModel,
				Temperature: e.cfg.Temperature,
				MaxTokens:   e.cfg.MaxTokens,
				Schema:      llmclient.SchemaCommentSelection,
				Messages:    e.buildTurn2Prompt(r.Agent, r.Text, candidates),
			})
			if err != nil {
				res := slotResult{SlotID: r.SlotID, Agent: r.Agent, ErrKind: reliability.ClassifyError(err), ErrMsg: err.Error()}
				target := chooseCommentTarget(candidates)
				picks[i] = pick{slotResult: res, Target: target}
				e.recordSlotOutcome(sess, sink, 2, r.SlotID, target, r.Agent, res)
				return
			}
			target := 0
			text := ""
			if resp.Comment != nil {
				target = resp.Comment.TargetSlotID
				text = resp.Comment.Text
			}
			if !isValidTarget(candidates, target) {
				target = chooseCommentTarget(candidates)
			}
			res := e.synthesizeAndSubmit(ctx, sess, 2, r.SlotID, target, r.Agent, text)
			picks[i] = pick{slotResult: res, Target: target}
			e.recordSlotOutcome(sess, sink, 2, r.SlotID, target, r.Agent, res)
		}(i, r, candidates)
	}
	wg.Wait()

	candidatesByTarget := map[int][]pick{}
	for _, p := range picks {
		if p.Target == 0 || !p.Success {
			continue
		}
		candidatesByTarget[p.Target] = append(candidatesByTarget[p.Target], p)
	}

	perTarget := map[int][]comment{}
	targets := make([]int, 0, len(candidatesByTarget))
	for target := range candidatesByTarget {
		targets = append(targets, target)
	}
	sort.Ints(targets)
	for _, target := range targets {
		kept := sampleWithoutReplacement(candidatesByTarget[target], MaxCommentsPerTarget)
		for _, p := range kept {
			e.convLog.Append(p.Target, conversation.RoleAssistant, p.Text)
			perTarget[p.Target] = append(perTarget[p.Target], comment{FromSlotID: p.SlotID, Text: p.Text})
		}
	}

	slotsDone := 0
	for _, p := range picks {
		if p.Success {
			slotsDone++
		}
	}
	e.emit(sess, sink, events.EventTurnDone, events.TurnLifecyclePayload{TurnIndex: 2, SlotCount: slotsDone})
	return perTarget
}

// sampleWithoutReplacement keeps up to n candidates, chosen uniformly
// without replacement via a Fisher-Yates shuffle, preserving none of the
// original iteration order. When len(candidates) <= n, all survive.
func sampleWithoutReplacement[T any](candidates []T, n int) []T {
	if len(candidates) <= n {
		return candidates
	}
	shuffled := append([]T(nil), candidates...)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:n]
}

func (e *Engine) buildTurn2Prompt(agent agents.Agent, ownText string, candidates []slotResult) []llmclient.Message {
	body := fmt.Sprintf("Your earlier reflection: %q\nOther participants' reflections:\n", ownText)
	for _, c := range candidates {
		body += fmt.Sprintf("- slot %d (%s): %q\n", c.SlotID, c.Agent.Name, c.Text)
	}
	body += "Choose one slot id to comment on and write a brief comment."
	return []llmclient.Message{
		{Role: "system", Content: fmt.Sprintf("%s You are %s. Respond with JSON {\"targetSlotId\":<slot id>,\"text\":<comment>}.", e.cfg.SystemPrompt, agent.Name)},
		{Role: "user", Content: body},
	}
}

func otherSlots(successful []slotResult, ownSlotID int) []slotResult {
	out := make([]slotResult, 0, len(successful))
	for _, r := range successful {
		if r.SlotID != ownSlotID {
			out = append(out, r)
		}
	}
	return out
}

func isValidTarget(candidates []slotResult, target int) bool {
	for _, c := range candidates {
		if c.SlotID == target {
			return true
		}
	}
	return false
}

func chooseCommentTarget(candidates []slotResult) int {
	if len(candidates) == 0 {
		return 0
	}
	return candidates[0].SlotID
}

// runTurn3 lets every slot that received at least one turn-2 comment
// reply, and builds the dialogue set the orchestrator needs for
// dialogue.waves.ready.
func (e *Engine) runTurn3(ctx context.Context, sess *session.Session, sink events.StreamSink, assignments map[int]agents.Agent, comments map[int][]comment) ([]slotResult, []waveform.Dialogue) {
	e.emit(sess, sink, events.EventTurnStart, events.TurnLifecyclePayload{TurnIndex: 3})

	targets := make([]int, 0, len(comments))
	for slotID := range comments {
		targets = append(targets, slotID)
	}
	sort.Ints(targets)

	results := make([]slotResult, len(targets))
	var wg sync.WaitGroup
	for i, slotID := range targets {
		wg.Add(1)
		go func(i, slotID int) {
			defer wg.Done()
			agent := assignments[slotID]
			e.emit(sess, sink, events.EventSlotStart, events.SlotLifecyclePayload{TurnIndex: 3, SlotID: slotID, AgentID: agent.ID})
			r := e.speakTurn(ctx, sess, sink, 3, slotID, 0, agent, e.buildTurn3Prompt(agent, comments[slotID]))
			results[i] = r
			e.recordSlotOutcome(sess, sink, 3, slotID, 0, agent, r)
		}(i, slotID)
	}
	wg.Wait()

	dialogues := make([]waveform.Dialogue, 0, len(targets))
	for i, slotID := range targets {
		commenters := make([]waveform.SlotMeta, 0, len(comments[slotID]))
		for _, c := range comments[slotID] {
			commenters = append(commenters, waveform.SlotMeta{SlotID: c.FromSlotID, AgentID: assignments[c.FromSlotID].ID, VoiceProfile: assignments[c.FromSlotID].VoiceProfile})
		}
		d := waveform.Dialogue{
			DialogueID:   fmt.Sprintf("turn23-slot%d", slotID),
			TargetSlotID: slotID,
			Commenters:   commenters,
		}
		if results[i].Success {
			d.Respondent = waveform.SlotMeta{SlotID: slotID, AgentID: assignments[slotID].ID, VoiceProfile: assignments[slotID].VoiceProfile}
			d.HasRespondent = true
		}
		dialogues = append(dialogues, d)
	}

	e.emit(sess, sink, events.EventTurnDone, events.TurnLifecyclePayload{TurnIndex: 3, SlotCount: successCount(results)})
	return results, dialogues
}

func (e *Engine) buildTurn3Prompt(agent agents.Agent, comments []comment) []llmclient.Message {
	body := "Comments you received:\n"
	for _, c := range comments {
		body += fmt.Sprintf("- slot %d: %s\n", c.FromSlotID, c.Text)
	}
	return []llmclient.Message{
		{Role: "system", Content: fmt.Sprintf("%s You are %s. Reply to the comments you received.", e.cfg.SystemPrompt, agent.Name)},
		{Role: "user", Content: body},
	}
}

func (e *Engine) runSummary(ctx context.Context, sess *session.Session, slotIDs []int) {
	var transcript string
	for _, slotID := range slotIDs {
		for _, entry := range e.convLog.Snapshot(slotID) {
			transcript += fmt.Sprintf("[slot %d %s] %s\n", slotID, entry.Role, entry.Text)
		}
	}

	resp, err := e.completeLLM(ctx, llmclient.Request{
		Model:       e.cfg.SummaryModel,
		Temperature: e.cfg.SummaryTemperature,
		MaxTokens:   e.cfg.SummaryMaxTokens,
		Schema:      llmclient.SchemaSummary,
		Messages: []llmclient.Message{
			{Role: "system", Content: "Summarize the conversation below in a few sentences. Respond with JSON {\"text\":...}."},
			{Role: "user", Content: transcript},
		},
	})
	if err != nil || resp.Summary == nil {
		e.logger.Warn("summary generation failed", "session", sess.ID, "err", err)
		return
	}
	summaryText := resp.Summary.Text

	voiceProfile := "narrator"
	samples, sampleRate, err := e.synthesizeTTS(ctx, voiceProfile, summaryText)
	if err != nil {
		e.logger.Warn("summary tts failed", "session", sess.ID, "err", err)
		sess.RecordSummary(session.SummaryRecord{Success: false})
		e.orchestrator.SummaryText(sess.ID, summaryText)
		return
	}

	basename := session.SummaryBasename(voiceProfile)
	ttsAbs, ttsRel := sess.TTSPath(e.store.ArtifactsRoot(), waveform.SummaryTurnIndex, basename)
	if err := writeWav(ttsAbs, samples, sampleRate); err != nil {
		e.logger.Warn("summary wav write failed", "session", sess.ID, "err", err)
		sess.RecordSummary(session.SummaryRecord{Success: false})
		return
	}
	sess.RecordSummary(session.SummaryRecord{Success: true, AudioRelPath: ttsRel})

	job := waveform.DecomposeJob{
		SessionID:   sess.ID,
		TurnIndex:   waveform.SummaryTurnIndex,
		SlotID:      1,
		AgentID:     "summary",
		VoiceProfile: voiceProfile,
		TTSBasename: basename,
		InputPath:   ttsAbs,
		OutputDir:   sess.WaveDir(e.store.ArtifactsRoot(), waveform.SummaryTurnIndex),
		NWaves:      6,
		SubmittedAt: time.Now(),
	}
	if !e.pool.Submit(job) {
		e.logger.Warn("summary decomposition job dropped, queue full", "session", sess.ID)
	}
	e.orchestrator.SummaryText(sess.ID, summaryText)
}

// speakTurn runs the structured LLM call, then hands off to
// synthesizeAndSubmit. Used by turns 1 and 3, where targetSlotID is
// always 0; turn 2 calls the LLM itself first since the target slot is
// the model's own choice.
func (e *Engine) speakTurn(ctx context.Context, sess *session.Session, sink events.StreamSink, turnIndex, slotID, targetSlotID int, agent agents.Agent, messages []llmclient.Message) slotResult {
	resp, err := e.completeLLM(ctx, llmclient.Request{
		Model:       e.cfg.LLMModel,
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
		Schema:      schemaFor(turnIndex),
		Messages:    messages,
	})
	if err != nil {
		return slotResult{SlotID: slotID, Agent: agent, ErrKind: reliability.ClassifyError(err), ErrMsg: err.Error()}
	}
	text := textFromResponse(resp)
	if turnIndex == 1 || turnIndex == 3 {
		e.convLog.Append(slotID, conversation.RoleAssistant, text)
	}
	return e.synthesizeAndSubmit(ctx, sess, turnIndex, slotID, targetSlotID, agent, text)
}

// synthesizeAndSubmit speaks already-decided text: it synthesizes audio,
// writes the WAV, and submits the decomposition job.
func (e *Engine) synthesizeAndSubmit(ctx context.Context, sess *session.Session, turnIndex, slotID, targetSlotID int, agent agents.Agent, text string) slotResult {
	samples, sampleRate, err := e.synthesizeTTS(ctx, agent.VoiceProfile, text)
	if err != nil {
		kind := ttsclient.ClassifyErr(err)
		return slotResult{SlotID: slotID, Agent: agent, Text: text, ErrKind: kind, ErrMsg: err.Error()}
	}

	basename := basenameFor(turnIndex, slotID, targetSlotID, agent)
	ttsAbs, _ := sess.TTSPath(e.store.ArtifactsRoot(), turnIndex, basename)
	if err := writeWav(ttsAbs, samples, sampleRate); err != nil {
		return slotResult{SlotID: slotID, Agent: agent, Text: text, ErrKind: reliability.KindServerError, ErrMsg: err.Error()}
	}

	job := waveform.DecomposeJob{
		SessionID:    sess.ID,
		TurnIndex:    turnIndex,
		SlotID:       slotID,
		AgentID:      agent.ID,
		VoiceProfile: agent.VoiceProfile,
		TTSBasename:  basename,
		InputPath:    ttsAbs,
		OutputDir:    sess.WaveDir(e.store.ArtifactsRoot(), turnIndex),
		TargetSlotID: targetSlotID,
		NWaves:       2,
		SubmittedAt:  time.Now(),
	}
	if !e.pool.Submit(job) {
		e.logger.Warn("decomposition job dropped, queue full", "session", sess.ID, "slot", slotID, "turn", turnIndex)
	}

	return slotResult{SlotID: slotID, Agent: agent, Text: text, Success: true}
}

func (e *Engine) recordSlotOutcome(sess *session.Session, sink events.StreamSink, turnIndex, slotID, targetSlotID int, agent agents.Agent, r slotResult) {
	kind := ""
	audioRel := ""
	success := r.Success
	if r.Success {
		basename := basenameFor(turnIndex, slotID, targetSlotID, agent)
		_, audioRel = sess.TTSPath(e.store.ArtifactsRoot(), turnIndex, basename)
		e.emit(sess, sink, events.EventSlotDone, events.SlotLifecyclePayload{TurnIndex: turnIndex, SlotID: slotID, AgentID: agent.ID, TargetSlotID: targetSlotID, Text: r.Text, VoiceProfile: agent.VoiceProfile})
		e.emit(sess, sink, events.EventSlotAudio, events.SlotLifecyclePayload{TurnIndex: turnIndex, SlotID: slotID, AgentID: agent.ID, TargetSlotID: targetSlotID, AudioRelPath: audioRel})
	} else {
		kind = string(r.ErrKind)
		e.emit(sess, sink, events.EventSlotError, events.SlotErrorPayload{TurnIndex: turnIndex, SlotID: slotID, AgentID: agent.ID, ErrorKind: kind, Message: r.ErrMsg})
	}
	sess.RecordTurn(session.TurnRecord{
		TurnIndex: turnIndex, SlotID: slotID, AgentID: agent.ID, Kind: kindName(turnIndex),
		Success: success, AudioRelPath: audioRel, TargetSlotID: targetSlotID, ErrorKind: kind,
	})
	e.metrics.ObserveTurnOutcome(turnIndex, kindName(turnIndex), success)
}

func kindName(turnIndex int) string {
	switch turnIndex {
	case 1:
		return "reflect"
	case 2:
		return "comment"
	case 3:
		return "reply"
	default:
		return "summary"
	}
}

func schemaFor(turnIndex int) llmclient.SchemaKind {
	if turnIndex == 2 {
		return llmclient.SchemaCommentSelection
	}
	return llmclient.SchemaSpokenResponse
}

func textFromResponse(resp llmclient.Response) string {
	switch {
	case resp.Spoken != nil:
		return resp.Spoken.Text
	case resp.Comment != nil:
		return resp.Comment.Text
	default:
		return ""
	}
}

func writeWav(path string, samples []float64, sampleRate int) error {
	return audio.WriteWaveFloat64(path, samples, sampleRate)
}

func basenameFor(turnIndex, slotID, targetSlotID int, agent agents.Agent) string {
	switch turnIndex {
	case 1:
		return session.Turn1Basename(slotID, agent.ID, agent.VoiceProfile)
	case 2:
		return session.Turn2Basename(slotID, targetSlotID, agent.ID, agent.VoiceProfile)
	case 3:
		return session.Turn3Basename(slotID, agent.ID, agent.VoiceProfile)
	default:
		return session.SummaryBasename(agent.VoiceProfile)
	}
}
