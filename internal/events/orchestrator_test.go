package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/reflective-resonance/turnengine/internal/waveform"
)

type fakeSub struct {
	mu     sync.Mutex
	envs   []Envelope
	closed string
	gotAll chan struct{}
	// wantLen counts envelopes other than the hello.ack SetSubscriber sends.
	wantLen  int
	nonHello int
}

func newFakeSub(wantLen int) *fakeSub {
	return &fakeSub{gotAll: make(chan struct{}), wantLen: wantLen}
}

func (f *fakeSub) SendJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if env, ok := v.(Envelope); ok {
		f.envs = append(f.envs, env)
		if env.Type != EventHelloAck {
			f.nonHello++
		}
		if f.wantLen > 0 && f.nonHello >= f.wantLen {
			select {
			case <-f.gotAll:
			default:
				close(f.gotAll)
			}
		}
	}
	return nil
}

func (f *fakeSub) Close(reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = reason
	return nil
}

func (f *fakeSub) snapshot() []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Envelope(nil), f.envs...)
}

func job(sessionID string, turnIndex, slotID int, basename string) waveform.DecomposeJob {
	return waveform.DecomposeJob{SessionID: sessionID, TurnIndex: turnIndex, SlotID: slotID, AgentID: "aria", VoiceProfile: "amber", TTSBasename: basename}
}

func result(j waveform.DecomposeJob) waveform.DecomposeResult {
	return waveform.DecomposeResult{Job: j, Success: true, WavePaths: []string{"/a/w1.wav", "/a/w2.wav"}, WavePathsRel: []string{"w1.wav", "w2.wav"}}
}

func TestOrchestratorEmitsBatchOnceAllReady(t *testing.T) {
	results := make(chan waveform.DecomposeResult, 16)
	o := NewOrchestrator(results, time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	sub := newFakeSub(2) // turn1.waves.ready + 1 dialogue.waves.ready
	o.SetSubscriber(sub)

	o.BeginSession("s1", []int{1, 2})
	results <- result(job("s1", 1, 1, "t1-1"))
	results <- result(job("s1", 1, 2, "t1-2"))
	results <- result(job("s1", 2, 1, "t2-1"))
	results <- result(job("s1", 2, 2, "t2-2"))
	results <- result(job("s1", 3, 2, "t3-2"))

	o.Turn3Complete("s1", []int{2}, []waveform.Dialogue{
		{
			DialogueID:    "turn23-slot2",
			TargetSlotID:  2,
			Commenters:    []waveform.SlotMeta{{SlotID: 1}},
			Respondent:    waveform.SlotMeta{SlotID: 2},
			HasRespondent: true,
		},
	})

	select {
	case <-sub.gotAll:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for batch; got %d envelopes", len(sub.snapshot()))
	}

	envs := sub.snapshot()
	// ignore the leading hello.ack from SetSubscriber
	var batch []Envelope
	for _, e := range envs {
		if e.Type != EventHelloAck {
			batch = append(batch, e)
		}
	}
	if len(batch) != 2 {
		t.Fatalf("len(batch) = %d, want 2: %+v", len(batch), batch)
	}
	if batch[0].Type != EventTurn1WavesReady {
		t.Fatalf("batch[0].Type = %q, want turn1.waves.ready", batch[0].Type)
	}
	if batch[1].Type != EventDialogueWavesReady {
		t.Fatalf("batch[1].Type = %q, want dialogue.waves.ready", batch[1].Type)
	}
	if batch[0].Seq >= batch[1].Seq {
		t.Fatalf("seq not increasing: %d then %d", batch[0].Seq, batch[1].Seq)
	}
}

func TestOrchestratorWorkflowTimeoutEmitsPartialBatch(t *testing.T) {
	results := make(chan waveform.DecomposeResult, 16)
	o := NewOrchestrator(results, 20*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	sub := newFakeSub(1)
	o.SetSubscriber(sub)

	o.BeginSession("s2", []int{1, 2})
	results <- result(job("s2", 1, 1, "t1-1"))
	// slot 2 never reports: simulate a dropped/failed job.
	o.Turn3Complete("s2", nil, nil)

	select {
	case <-sub.gotAll:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for timeout-driven batch")
	}

	var batch []Envelope
	for _, e := range sub.snapshot() {
		if e.Type != EventHelloAck {
			batch = append(batch, e)
		}
	}
	if len(batch) != 1 || batch[0].Type != EventTurn1WavesReady {
		t.Fatalf("batch = %+v, want single partial turn1.waves.ready", batch)
	}
	payload := batch[0].Payload.(Turn1WavesReadyPayload)
	if payload.Status != "partial" || len(payload.MissingSlotIDs) != 1 || payload.MissingSlotIDs[0] != 2 {
		t.Fatalf("payload = %+v, want partial with missing slot 2", payload)
	}
}

func TestOrchestratorSentimentBypassesBatch(t *testing.T) {
	results := make(chan waveform.DecomposeResult, 4)
	o := NewOrchestrator(results, time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	sub := newFakeSub(1)
	o.SetSubscriber(sub)
	o.BeginSession("s3", []int{1})
	o.EmitSentiment("s3", "curious", "tone was upbeat")

	select {
	case <-sub.gotAll:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for sentiment event")
	}
	envs := sub.snapshot()
	if len(envs) < 2 || envs[1].Type != EventUserSentiment {
		t.Fatalf("envs = %+v, want hello.ack then user_sentiment", envs)
	}
}

func TestSetSubscriberClosesPrevious(t *testing.T) {
	results := make(chan waveform.DecomposeResult)
	o := NewOrchestrator(results, time.Minute, nil)
	first := newFakeSub(0)
	second := newFakeSub(0)
	o.SetSubscriber(first)
	o.SetSubscriber(second)
	if first.closed != "replaced" {
		t.Fatalf("first.closed = %q, want replaced", first.closed)
	}
}
