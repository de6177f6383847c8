package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/reflective-resonance/turnengine/internal/conversation"
	"github.com/reflective-resonance/turnengine/internal/decompose"
	"github.com/reflective-resonance/turnengine/internal/events"
	"github.com/reflective-resonance/turnengine/internal/llmclient"
	"github.com/reflective-resonance/turnengine/internal/observability"
	"github.com/reflective-resonance/turnengine/internal/session"
	"github.com/reflective-resonance/turnengine/internal/ttsclient"
)

type chatChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

func fakeLLMServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []llmclient.Message `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		// Always answer with a shape that satisfies every schema this
		// test exercises: spoken_response and comment_selection both
		// read a "text" field; sentiment/summary are untouched here.
		content := `{"text":"a brief reflection","targetSlotId":1}`
		resp := struct {
			Choices []chatChoice `json:"choices"`
		}{Choices: []chatChoice{{}}}
		resp.Choices[0].Message.Content = content
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func fakeTTSServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		samples := make([]byte, 0, 3200)
		for i := 0; i < 1600; i++ {
			samples = append(samples, 0x00, 0x10)
		}
		w.Write(samples)
	}))
}

type nullSub struct{}

func (nullSub) SendJSON(v any) error  { return nil }
func (nullSub) Close(reason string) error { return nil }

// recordingSink captures every event Send onto it, letting tests assert
// on the streamed turn/slot lifecycle without standing up real SSE
// plumbing.
type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingSink) Send(eventType string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func (r *recordingSink) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestRunWorkflowProducesManifestAndEvents(t *testing.T) {
	llmSrv := fakeLLMServer(t)
	defer llmSrv.Close()
	ttsSrv := fakeTTSServer(t)
	defer ttsSrv.Close()

	dir := t.TempDir()
	store := session.NewStore(dir)
	sess, err := store.Create()
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	pool := decompose.NewPool(4, 64, 5*time.Second, dir)
	defer pool.Shutdown(context.Background())

	orch := events.NewOrchestrator(pool.Results(), time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go orch.Run(ctx)
	orch.SetSubscriber(nullSub{})

	llm := llmclient.New(llmSrv.URL, "key", 2*time.Second, 0)
	tts := ttsclient.New(ttsSrv.URL, "key", "pcm_16000", 16000, 2*time.Second)
	convLog := conversation.NewLog("you are a participant")

	cfg := Config{
		SystemPrompt: "Respond kindly.",
		Temperature:  0.5,
		MaxTokens:    256,
		LLMModel:     "gpt-test",
		Turn1Timeout: 3 * time.Second,
		DialogueTimeout: 3 * time.Second,
	}
	metrics := observability.NewMetrics("engine_test_" + t.Name())
	eng := New(cfg, convLog, store, pool, orch, llm, tts, nil, metrics, nil)

	slots := []session.SlotAssignment{
		{SlotID: 1, AgentID: "aria"},
		{SlotID: 2, AgentID: "boreas"},
		{SlotID: 3, AgentID: "callista"},
	}
	sink := &recordingSink{}
	if err := eng.RunWorkflow(context.Background(), sess, slots, "hello everyone", sink); err != nil {
		t.Fatalf("RunWorkflow() error = %v", err)
	}

	if len(sess.TurnRecords()) == 0 {
		t.Fatalf("manifest has no turn records")
	}

	got := sink.snapshot()
	if len(got) == 0 {
		t.Fatalf("streamed sink received no events")
	}
	if got[len(got)-1] != events.EventDone {
		t.Fatalf("last streamed event = %q, want %q", got[len(got)-1], events.EventDone)
	}
}

// TestRunWorkflowSingleSlot exercises the one-participant path: turn 2
// has no other slot to comment on, so no dialogue reaches turn 3 and the
// workflow must still complete and flush a manifest.
func TestRunWorkflowSingleSlot(t *testing.T) {
	llmSrv := fakeLLMServer(t)
	defer llmSrv.Close()
	ttsSrv := fakeTTSServer(t)
	defer ttsSrv.Close()

	dir := t.TempDir()
	store := session.NewStore(dir)
	sess, err := store.Create()
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	pool := decompose.NewPool(4, 64, 5*time.Second, dir)
	defer pool.Shutdown(context.Background())

	orch := events.NewOrchestrator(pool.Results(), time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go orch.Run(ctx)
	orch.SetSubscriber(nullSub{})

	llm := llmclient.New(llmSrv.URL, "key", 2*time.Second, 0)
	tts := ttsclient.New(ttsSrv.URL, "key", "pcm_16000", 16000, 2*time.Second)
	convLog := conversation.NewLog("you are a participant")

	cfg := Config{
		SystemPrompt:    "Respond kindly.",
		Temperature:     0.5,
		MaxTokens:       256,
		LLMModel:        "gpt-test",
		Turn1Timeout:    3 * time.Second,
		DialogueTimeout: 3 * time.Second,
	}
	metrics := observability.NewMetrics("engine_test_" + t.Name())
	eng := New(cfg, convLog, store, pool, orch, llm, tts, nil, metrics, nil)

	slots := []session.SlotAssignment{{SlotID: 1, AgentID: "aria"}}
	if err := eng.RunWorkflow(context.Background(), sess, slots, "hello alone", nil); err != nil {
		t.Fatalf("RunWorkflow() error = %v", err)
	}

	for _, r := range sess.TurnRecords() {
		if r.TurnIndex == 3 {
			t.Fatalf("turn 3 ran with a single slot and no comments received: %+v", r)
		}
	}
}

// TestRunWorkflowRejectsUnknownAgent guards the slots input path: an
// unresolvable agent id must fail fast rather than silently falling back
// to the full roster.
func TestRunWorkflowRejectsUnknownAgent(t *testing.T) {
	dir := t.TempDir()
	store := session.NewStore(dir)
	sess, err := store.Create()
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	pool := decompose.NewPool(4, 64, 5*time.Second, dir)
	defer pool.Shutdown(context.Background())
	orch := events.NewOrchestrator(pool.Results(), time.Second, nil)
	convLog := conversation.NewLog("you are a participant")
	metrics := observability.NewMetrics("engine_test_" + t.Name())
	eng := New(Config{}, convLog, store, pool, orch, nil, nil, nil, metrics, nil)

	slots := []session.SlotAssignment{{SlotID: 1, AgentID: "nobody"}}
	if err := eng.RunWorkflow(context.Background(), sess, slots, "hello", nil); err == nil {
		t.Fatalf("RunWorkflow() error = nil, want an error for an unknown agent id")
	}
}
