package sttclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestTranscribeDecodesWireSegments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "key" {
			t.Errorf("xi-api-key header = %q, want %q", r.Header.Get("xi-api-key"), "key")
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		if got := r.FormValue("model_id"); got != "scribe_v1" {
			t.Fatalf("model_id = %q, want scribe_v1", got)
		}
		_ = json.NewEncoder(w).Encode(wireTranscript{
			Text: "hello everyone",
			Segments: []struct {
				Text  string  `json:"text"`
				Start float64 `json:"start"`
				End   float64 `json:"end"`
			}{{Text: "hello everyone", Start: 0, End: 1.2}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "key", "", time.Second)
	tr, err := c.Transcribe(context.Background(), "clip.wav", strings.NewReader("audio bytes"), "")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if tr.Text != "hello everyone" {
		t.Fatalf("Text = %q, want %q", tr.Text, "hello everyone")
	}
	if len(tr.Segments) != 1 || tr.Segments[0].EndSec != 1.2 {
		t.Fatalf("Segments = %+v, want one segment ending at 1.2", tr.Segments)
	}
}

func TestTranscribeRateLimitError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(srv.URL, "key", "", time.Second)
	_, err := c.Transcribe(context.Background(), "clip.wav", strings.NewReader("audio bytes"), "")
	if err == nil || !strings.Contains(err.Error(), "rate_limit") {
		t.Fatalf("Transcribe() error = %v, want rate_limit", err)
	}
}
