// Package httpapi exposes the turn workflow engine's request surface:
// health/readiness, the agent roster, chat/reset/stt endpoints, served
// audio artifacts, and the single-subscriber controller channel.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/reflective-resonance/turnengine/internal/agents"
	"github.com/reflective-resonance/turnengine/internal/audio"
	"github.com/reflective-resonance/turnengine/internal/config"
	"github.com/reflective-resonance/turnengine/internal/conversation"
	"github.com/reflective-resonance/turnengine/internal/events"
	"github.com/reflective-resonance/turnengine/internal/observability"
	"github.com/reflective-resonance/turnengine/internal/session"
	"github.com/reflective-resonance/turnengine/internal/sttclient"
)

// maxSTTUploadBytes bounds the multipart body accepted by /v1/stt.
const maxSTTUploadBytes = 25 << 20

// Engine runs one session's four-turn workflow to completion, streaming
// turn/slot lifecycle events onto sink as it goes.
type Engine interface {
	RunWorkflow(ctx context.Context, sess *session.Session, slots []session.SlotAssignment, userText string, sink events.StreamSink) error
}

// Transcriber turns uploaded audio into text, grounding the /v1/stt
// endpoint. languageCode is a hint, forwarded when non-empty.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader, languageCode string) (sttclient.Transcript, error)
}

type Server struct {
	cfg          config.Config
	store        *session.Store
	convLog      *conversation.Log
	engine       Engine
	orchestrator *events.Orchestrator
	transcriber  Transcriber
	metrics      *observability.Metrics
	upgrader     websocket.Upgrader
	static       http.Handler
	audio        http.Handler
}

func New(cfg config.Config, store *session.Store, convLog *conversation.Log, engine Engine, orchestrator *events.Orchestrator, transcriber Transcriber, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:          cfg,
		store:        store,
		convLog:      convLog,
		engine:       engine,
		orchestrator: orchestrator,
		transcriber:  transcriber,
		metrics:      metrics,
		static:       newStaticHandler(),
		audio:        http.FileServer(http.Dir(store.ArtifactsRoot())),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/agents", s.handleListAgents)
	r.Post("/v1/chat", s.handleChat)
	r.Post("/v1/reset", s.handleReset)
	r.Post("/v1/stt", s.handleSTT)
	r.Handle("/v1/audio/*", http.StripPrefix("/v1/audio/", s.audio))
	r.Get("/v1/controller/ws", s.handleControllerWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"agents": agents.All()})
}

type chatSlotAssignment struct {
	SlotID  int    `json:"slotId"`
	AgentID string `json:"agentId"`
}

type chatRequest struct {
	SessionID string               `json:"sessionId"`
	Message   string               `json:"message"`
	Slots     []chatSlotAssignment `json:"slots"`
}

// normalizeSlots validates the request's slot assignments: 1-6 entries,
// unique slot ids, and known agent ids.
func normalizeSlots(in []chatSlotAssignment) ([]session.SlotAssignment, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("at least one slot assignment is required")
	}
	if len(in) > 6 {
		return nil, fmt.Errorf("at most 6 slot assignments are allowed")
	}
	seen := make(map[int]bool, len(in))
	out := make([]session.SlotAssignment, 0, len(in))
	for _, sa := range in {
		if sa.SlotID < 1 || sa.SlotID > 6 {
			return nil, fmt.Errorf("slotId %d out of range 1..6", sa.SlotID)
		}
		if seen[sa.SlotID] {
			return nil, fmt.Errorf("duplicate slotId %d", sa.SlotID)
		}
		seen[sa.SlotID] = true
		if _, ok := agents.Get(sa.AgentID); !ok {
			return nil, fmt.Errorf("unknown agentId %q", sa.AgentID)
		}
		out = append(out, session.SlotAssignment{SlotID: sa.SlotID, AgentID: sa.AgentID})
	}
	return out, nil
}

// handleChat allocates a session if none was given, then streams the
// four-turn workflow's turn/slot lifecycle as Server-Sent Events:
// turn.start, slot.start, slot.done, slot.audio, slot.error, turn.done,
// and a final done. The workflow itself runs to completion in the
// background regardless of whether the client stays connected.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "missing_message", "message is required")
		return
	}
	slots, err := normalizeSlots(req.Slots)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_slots", err.Error())
		return
	}

	var sess *session.Session
	if strings.TrimSpace(req.SessionID) != "" {
		sess, err = s.store.Get(req.SessionID)
		if err != nil {
			respondError(w, http.StatusNotFound, "session_not_found", err.Error())
			return
		}
	} else {
		sess, err = s.store.Create()
		if err != nil {
			respondError(w, http.StatusInternalServerError, "session_create_failed", err.Error())
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer does not support streaming")
		return
	}

	s.metrics.SessionEvents.WithLabelValues("chat_started").Inc()

	sink := newSSESink(256)
	go func(sess *session.Session, slots []session.SlotAssignment, text string) {
		defer sink.close()
		if err := s.engine.RunWorkflow(context.Background(), sess, slots, text, sink); err != nil {
			s.metrics.SessionEvents.WithLabelValues("workflow_error").Inc()
		}
	}(sess, slots, req.Message)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Session-Id", sess.ID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case ev, ok := <-sink.events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data)
			flusher.Flush()
		case <-r.Context().Done():
			// The workflow goroutine keeps running and finishes its
			// manifest/artifacts regardless; only this stream ends.
			return
		}
	}
}

type resetRequest struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	cleared := s.convLog.ResetAll()
	if strings.TrimSpace(req.SessionID) != "" && s.orchestrator != nil {
		s.orchestrator.EndSession(req.SessionID)
	}
	respondJSON(w, http.StatusOK, map[string]any{"cleared_slots": cleared})
}

// handleSTT accepts a multipart-uploaded audio file, transcribes it, and
// persists the STT session artifacts alongside the transcript.
func (s *Server) handleSTT(w http.ResponseWriter, r *http.Request) {
	if s.transcriber == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "speech-to-text is not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSTTUploadBytes)
	if err := r.ParseMultipartForm(maxSTTUploadBytes); err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "file_too_large", "audio upload exceeds 25MB")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing_file", "multipart field \"file\" is required")
		return
	}
	defer file.Close()
	if header.Size > maxSTTUploadBytes {
		respondError(w, http.StatusRequestEntityTooLarge, "file_too_large", "audio upload exceeds 25MB")
		return
	}

	inputBytes, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "read_failed", err.Error())
		return
	}
	if len(inputBytes) > maxSTTUploadBytes {
		respondError(w, http.StatusRequestEntityTooLarge, "file_too_large", "audio upload exceeds 25MB")
		return
	}

	languageCode := strings.TrimSpace(r.FormValue("language_code"))
	transcript, err := s.transcriber.Transcribe(r.Context(), header.Filename, bytes.NewReader(inputBytes), languageCode)
	if err != nil {
		respondError(w, http.StatusBadGateway, "transcribe_failed", err.Error())
		return
	}
	if strings.TrimSpace(transcript.Text) == "" {
		respondError(w, http.StatusUnprocessableEntity, "empty_transcript", "transcription produced no text")
		return
	}

	dir, id, err := session.NewSTTSessionDir(s.store.ArtifactsRoot())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "stt_session_failed", err.Error())
		return
	}
	transcriptJSON, _ := json.Marshal(transcript)
	durationMS := estimateDurationMS(inputBytes)
	rec := session.STTRecord{
		ID:         id,
		CreatedAt:  time.Now().UTC(),
		DurationMS: durationMS,
		ModelID:    s.cfg.STTModelID,
	}
	ext := extFromFilename(header.Filename)
	if err := session.WriteSTTArtifacts(dir, ext, inputBytes, transcriptJSON, transcript.Text, rec); err != nil {
		respondError(w, http.StatusInternalServerError, "stt_write_failed", err.Error())
		return
	}

	audioPath, err := filepath.Rel(s.store.ArtifactsRoot(), filepath.Join(dir, "input"+ext))
	if err != nil {
		audioPath = filepath.Join(dir, "input"+ext)
	}
	transcriptPath, err := filepath.Rel(s.store.ArtifactsRoot(), filepath.Join(dir, "transcript.txt"))
	if err != nil {
		transcriptPath = filepath.Join(dir, "transcript.txt")
	}

	resp := map[string]any{
		"stt_session_id":  id,
		"transcript":      transcript.Text,
		"audio_path":      filepath.ToSlash(audioPath),
		"transcript_path": filepath.ToSlash(transcriptPath),
		"duration_ms":     durationMS,
		"mime_type":       mimeTypeFor(ext),
	}
	if len(transcript.Segments) > 0 {
		resp["words"] = transcript.Segments
	}
	if transcript.LanguageCode != "" {
		resp["language_code"] = transcript.LanguageCode
	}
	respondJSON(w, http.StatusOK, resp)
}

// estimateDurationMS does a best-effort decode: WAV uploads yield an
// exact duration, anything else reports 0 rather than guessing.
func estimateDurationMS(data []byte) float64 {
	pcm, sampleRate, err := audio.ReadWAVPCM16LEFrom(bytes.NewReader(data))
	if err != nil || sampleRate <= 0 {
		return 0
	}
	frames := len(pcm) / 2
	return float64(frames) / float64(sampleRate) * 1000
}

func mimeTypeFor(ext string) string {
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

func (s *Server) handleControllerWS(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "orchestrator not configured")
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sub := newWSSubscriber(conn, s.metrics)
	s.metrics.ObserveControllerConn("connected")
	s.orchestrator.SetSubscriber(sub)

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	// The controller channel is read-only from the client's perspective;
	// we still drain incoming frames (pings, close) so the connection
	// doesn't back up, until the peer disconnects or is replaced.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	sub.markClosed()
	s.metrics.ObserveControllerConn("disconnected")
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func extFromFilename(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return ".bin"
	}
	return name[i:]
}
