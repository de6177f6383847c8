// Package llmclient is the collaborator that turns a prompt into a
// structured completion. It has no opinion about which agent is
// speaking; callers supply the model, temperature, and schema kind per
// call so the same client instance serves every stage (turn 1/2/3,
// sentiment, summary).
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/reflective-resonance/turnengine/internal/reliability"
)

// SchemaKind selects which tagged variant the completion must conform
// to. The vendor endpoint is asked to return JSON; the client then
// parses it into one of the typed Response variants below.
type SchemaKind string

const (
	SchemaSpokenResponse   SchemaKind = "spoken_response"
	SchemaCommentSelection SchemaKind = "comment_selection"
	SchemaSentiment        SchemaKind = "sentiment"
	SchemaSummary          SchemaKind = "summary"
)

// Message is one turn of chat history sent to the completion endpoint.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes one structured-completion call.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	Schema      SchemaKind
}

// SpokenResponse is turn 1 and turn 3's output shape.
type SpokenResponse struct {
	Text string `json:"text"`
}

// CommentSelection is turn 2's output shape: which of the prior slots
// this agent chooses to comment on, and what it says.
type CommentSelection struct {
	TargetSlotID int    `json:"targetSlotId"`
	Text         string `json:"text"`
}

// Sentiment is the sentiment stage's output shape.
type Sentiment struct {
	Sentiment     string `json:"sentiment"`
	Justification string `json:"justification"`
}

// Summary is the closing-turn output shape.
type Summary struct {
	Text string `json:"text"`
}

// Response is a tagged union over the four schema kinds; exactly one
// field is populated, matching req.Schema.
type Response struct {
	Schema    SchemaKind
	Spoken    *SpokenResponse
	Comment   *CommentSelection
	Sentiment *Sentiment
	Summary   *Summary
	RawText   string
}

// Client calls a JSON chat-completion endpoint and retries transient
// failures with exponential backoff.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	retries int
}

func New(baseURL, apiKey string, timeout time.Duration, retries int) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		retries: retries,
	}
}

type wireRequest struct {
	Model          string    `json:"model"`
	Messages       []Message `json:"messages"`
	Temperature    float64   `json:"temperature"`
	MaxTokens      int       `json:"max_tokens"`
	ResponseFormat string    `json:"response_format"`
}

type wireResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete issues req against the vendor endpoint, retrying per
// reliability.ClassifyError, and decodes the JSON content into the
// variant named by req.Schema.
func (c *Client) Complete(ctx context.Context, req Request) (Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Response{}, ctx.Err()
			case <-time.After(reliability.ExponentialBackoff(attempt, 200*time.Millisecond, 5*time.Second)):
			}
		}
		resp, err := c.complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		kind := reliability.ClassifyError(err)
		if kind != reliability.KindTimeout && kind != reliability.KindRateLimit && kind != reliability.KindNetwork && kind != reliability.KindServerError {
			break
		}
	}
	return Response{}, fmt.Errorf("llm completion failed after %d attempt(s): %w", c.retries+1, lastErr)
}

func (c *Client) complete(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(wireRequest{
		Model:          req.Model,
		Messages:       req.Messages,
		Temperature:    req.Temperature,
		MaxTokens:      req.MaxTokens,
		ResponseFormat: "json_object",
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusTooManyRequests {
		return Response{}, fmt.Errorf("rate_limit: status %d", res.StatusCode)
	}
	if res.StatusCode >= 500 {
		return Response{}, fmt.Errorf("server_error: status %d", res.StatusCode)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Response{}, fmt.Errorf("llm http status %d: %s", res.StatusCode, string(respBody))
	}

	var wire wireResponse
	if err := json.NewDecoder(res.Body).Decode(&wire); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	if len(wire.Choices) == 0 {
		return Response{}, fmt.Errorf("llm response had no choices")
	}
	content := wire.Choices[0].Message.Content
	return parseResponse(req.Schema, content)
}

func parseResponse(schema SchemaKind, content string) (Response, error) {
	out := Response{Schema: schema, RawText: content}
	switch schema {
	case SchemaSpokenResponse:
		var v SpokenResponse
		if err := json.Unmarshal([]byte(content), &v); err != nil {
			return Response{}, fmt.Errorf("parse spoken_response: %w", err)
		}
		out.Spoken = &v
	case SchemaCommentSelection:
		var v CommentSelection
		if err := json.Unmarshal([]byte(content), &v); err != nil {
			return Response{}, fmt.Errorf("parse comment_selection: %w", err)
		}
		out.Comment = &v
	case SchemaSentiment:
		var v Sentiment
		if err := json.Unmarshal([]byte(content), &v); err != nil {
			return Response{}, fmt.Errorf("parse sentiment: %w", err)
		}
		out.Sentiment = &v
	case SchemaSummary:
		var v Summary
		if err := json.Unmarshal([]byte(content), &v); err != nil {
			return Response{}, fmt.Errorf("parse summary: %w", err)
		}
		out.Summary = &v
	default:
		return Response{}, fmt.Errorf("unknown schema kind %q", schema)
	}
	return out, nil
}
