package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/reflective-resonance/turnengine/internal/config"
	"github.com/reflective-resonance/turnengine/internal/conversation"
	"github.com/reflective-resonance/turnengine/internal/events"
	"github.com/reflective-resonance/turnengine/internal/observability"
	"github.com/reflective-resonance/turnengine/internal/session"
	"github.com/reflective-resonance/turnengine/internal/sttclient"
)

type fakeEngine struct {
	ran chan string
}

func (f *fakeEngine) RunWorkflow(ctx context.Context, sess *session.Session, slots []session.SlotAssignment, userText string, sink events.StreamSink) error {
	if sink != nil {
		sink.Send("turn.start", map[string]any{"turnIndex": 1})
		sink.Send("done", map[string]any{"turns": 3})
	}
	f.ran <- sess.ID
	return nil
}

type fakeTranscriber struct{}

func (fakeTranscriber) Transcribe(ctx context.Context, filename string, audio io.Reader, languageCode string) (sttclient.Transcript, error) {
	data, _ := io.ReadAll(audio)
	return sttclient.Transcript{Text: string(data)}, nil
}

func testMetrics(t *testing.T) *observability.Metrics {
	t.Helper()
	return observability.NewMetrics("test_httpapi_" + time.Now().Format("150405.000000000"))
}

func TestHandleChatCreatesSessionAndStreamsEvents(t *testing.T) {
	dir := t.TempDir()
	store := session.NewStore(dir)
	convLog := conversation.NewLog("preamble")
	eng := &fakeEngine{ran: make(chan string, 1)}
	srv := New(config.Config{}, store, convLog, eng, nil, fakeTranscriber{}, testMetrics(t))

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	reqBody, _ := json.Marshal(map[string]any{
		"message": "hello everyone",
		"slots":   []map[string]any{{"slotId": 1, "agentId": "aria"}},
	})
	res, err := http.Post(ts.URL+"/v1/chat", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		t.Fatalf("POST /v1/chat error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}
	sessionID := res.Header.Get("X-Session-Id")
	if sessionID == "" {
		t.Fatalf("missing X-Session-Id header")
	}

	var sawDone bool
	var eventNames []string
	scanner := bufio.NewScanner(res.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			name := strings.TrimPrefix(line, "event: ")
			eventNames = append(eventNames, name)
			if name == "done" {
				sawDone = true
				break
			}
		}
	}
	if !sawDone {
		t.Fatalf("stream closed without a done event, got %v", eventNames)
	}

	select {
	case gotID := <-eng.ran:
		if gotID != sessionID {
			t.Fatalf("RunWorkflow got session %q, want %q", gotID, sessionID)
		}
	case <-time.After(time.Second):
		t.Fatalf("engine.RunWorkflow was never called")
	}
}

func TestHandleChatRejectsEmptyMessage(t *testing.T) {
	dir := t.TempDir()
	store := session.NewStore(dir)
	convLog := conversation.NewLog("preamble")
	eng := &fakeEngine{ran: make(chan string, 1)}
	srv := New(config.Config{}, store, convLog, eng, nil, fakeTranscriber{}, testMetrics(t))

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, err := http.Post(ts.URL+"/v1/chat", "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatalf("POST /v1/chat error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestHandleChatRejectsInvalidSlots(t *testing.T) {
	dir := t.TempDir()
	store := session.NewStore(dir)
	convLog := conversation.NewLog("preamble")
	eng := &fakeEngine{ran: make(chan string, 1)}
	srv := New(config.Config{}, store, convLog, eng, nil, fakeTranscriber{}, testMetrics(t))

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	reqBody, _ := json.Marshal(map[string]any{
		"message": "hello everyone",
		"slots":   []map[string]any{{"slotId": 1, "agentId": "not-a-real-agent"}},
	})
	res, err := http.Post(ts.URL+"/v1/chat", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		t.Fatalf("POST /v1/chat error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestHandleListAgents(t *testing.T) {
	dir := t.TempDir()
	store := session.NewStore(dir)
	convLog := conversation.NewLog("preamble")
	eng := &fakeEngine{ran: make(chan string, 1)}
	srv := New(config.Config{}, store, convLog, eng, nil, fakeTranscriber{}, testMetrics(t))

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/v1/agents")
	if err != nil {
		t.Fatalf("GET /v1/agents error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var payload struct {
		Agents []map[string]any `json:"agents"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Agents) != 6 {
		t.Fatalf("len(Agents) = %d, want 6", len(payload.Agents))
	}
}

func TestHandleSTT(t *testing.T) {
	dir := t.TempDir()
	store := session.NewStore(dir)
	convLog := conversation.NewLog("preamble")
	eng := &fakeEngine{ran: make(chan string, 1)}
	srv := New(config.Config{}, store, convLog, eng, nil, fakeTranscriber{}, testMetrics(t))

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "clip.wav")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write([]byte("hello from the mic")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/stt", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /v1/stt error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["transcript"] != "hello from the mic" {
		t.Fatalf("transcript = %v, want %q", payload["transcript"], "hello from the mic")
	}
	if payload["stt_session_id"] == "" || payload["stt_session_id"] == nil {
		t.Fatalf("missing stt_session_id in response: %v", payload)
	}
	if payload["audio_path"] == "" || payload["audio_path"] == nil {
		t.Fatalf("missing audio_path in response: %v", payload)
	}
	if payload["transcript_path"] == "" || payload["transcript_path"] == nil {
		t.Fatalf("missing transcript_path in response: %v", payload)
	}
	if _, ok := payload["duration_ms"]; !ok {
		t.Fatalf("missing duration_ms in response: %v", payload)
	}
	if payload["mime_type"] == "" || payload["mime_type"] == nil {
		t.Fatalf("missing mime_type in response: %v", payload)
	}
}

func TestHandleSTTRejectsEmptyTranscript(t *testing.T) {
	dir := t.TempDir()
	store := session.NewStore(dir)
	convLog := conversation.NewLog("preamble")
	eng := &fakeEngine{ran: make(chan string, 1)}
	srv := New(config.Config{}, store, convLog, eng, nil, emptyTranscriber{}, testMetrics(t))

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "clip.wav")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write([]byte("silence")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/stt", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /v1/stt error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnprocessableEntity)
	}
}

type emptyTranscriber struct{}

func (emptyTranscriber) Transcribe(ctx context.Context, filename string, audio io.Reader, languageCode string) (sttclient.Transcript, error) {
	return sttclient.Transcript{Text: ""}, nil
}
