package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func chatServer(t *testing.T, content string, failFirstN int) *httptest.Server {
	t.Helper()
	var calls atomic.Int32
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if int(n) <= failFirstN {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		resp := wireResponse{}
		resp.Choices = []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		}{{}}
		resp.Choices[0].Message.Content = content
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestCompleteParsesSpokenResponse(t *testing.T) {
	srv := chatServer(t, `{"text":"hello there"}`, 0)
	defer srv.Close()

	c := New(srv.URL, "key", time.Second, 1)
	res, err := c.Complete(context.Background(), Request{Model: "m", Schema: SchemaSpokenResponse})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if res.Spoken == nil || res.Spoken.Text != "hello there" {
		t.Fatalf("res.Spoken = %+v", res.Spoken)
	}
}

func TestCompleteRetriesServerError(t *testing.T) {
	srv := chatServer(t, `{"sentiment":"curious","justification":"engaged tone"}`, 2)
	defer srv.Close()

	c := New(srv.URL, "key", time.Second, 3)
	res, err := c.Complete(context.Background(), Request{Model: "m", Schema: SchemaSentiment})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if res.Sentiment == nil || res.Sentiment.Sentiment != "curious" {
		t.Fatalf("res.Sentiment = %+v", res.Sentiment)
	}
}

func TestCompleteGivesUpAfterRetries(t *testing.T) {
	srv := chatServer(t, `{}`, 99)
	defer srv.Close()

	c := New(srv.URL, "key", time.Second, 1)
	_, err := c.Complete(context.Background(), Request{Model: "m", Schema: SchemaSummary})
	if err == nil {
		t.Fatalf("Complete() error = nil, want failure")
	}
}
