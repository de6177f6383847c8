package ttsclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSynthesizeDecodesPCM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// two little-endian int16 samples: 16384 and -16384
		w.Write([]byte{0x00, 0x40, 0x00, 0xC0})
	}))
	defer srv.Close()

	c := New(srv.URL, "key", "pcm_16000", 16000, time.Second)
	samples, sr, err := c.Synthesize(context.Background(), "amber", "hello")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if sr != 16000 {
		t.Fatalf("sampleRate = %d, want 16000", sr)
	}
	if len(samples) != 2 {
		t.Fatalf("len(samples) = %d, want 2", len(samples))
	}
	if samples[0] <= 0 || samples[1] >= 0 {
		t.Fatalf("samples = %v, want positive then negative", samples)
	}
}

func TestSynthesizeServerErrorClassifiesAsTTSError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL, "key", "pcm_16000", 16000, time.Second)
	_, _, err := c.Synthesize(context.Background(), "amber", "hello")
	if err == nil {
		t.Fatalf("Synthesize() error = nil, want failure")
	}
	if ClassifyErr(err) != "tts_error" {
		t.Fatalf("ClassifyErr() = %q, want tts_error", ClassifyErr(err))
	}
}
