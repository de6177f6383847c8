// Package sentiment runs the optional user-sentiment classification
// stage. It shares the structured-completion collaborator with the turn
// engine but is deliberately isolated from it: a short timeout and a
// silent-failure policy mean a slow or broken sentiment model never
// blocks or fails a turn.
package sentiment

import (
	"context"
	"log/slog"
	"time"

	"github.com/reflective-resonance/turnengine/internal/llmclient"
)

type Classifier struct {
	llm         *llmclient.Client
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	logger      *slog.Logger
}

func New(llm *llmclient.Client, model string, temperature float64, maxTokens int, timeout time.Duration, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{llm: llm, model: model, temperature: temperature, maxTokens: maxTokens, timeout: timeout, logger: logger}
}

// Result is nil when classification failed or timed out; callers must
// treat that as "no sentiment event", not an error to surface.
type Result struct {
	Sentiment     string
	Justification string
}

// Classify runs the sentiment stage against the user's utterance text. It
// never returns an error: failures are logged and reported as a nil
// result so the caller's turn workflow proceeds unaffected.
func (c *Classifier) Classify(ctx context.Context, userText string) *Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.llm.Complete(ctx, llmclient.Request{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		Schema:      llmclient.SchemaSentiment,
		Messages: []llmclient.Message{
			{Role: "system", Content: "Classify the emotional tone of the user's message. Respond with JSON {\"sentiment\":...,\"justification\":...}."},
			{Role: "user", Content: userText},
		},
	})
	if err != nil {
		c.logger.Warn("sentiment classification failed, dropping", "err", err)
		return nil
	}
	if resp.Sentiment == nil {
		return nil
	}
	return &Result{Sentiment: resp.Sentiment.Sentiment, Justification: resp.Sentiment.Justification}
}
