// Package app wires the turn workflow engine's components together:
// config, the session store, the conversation log, the decomposition
// pool, the events orchestrator, the LLM/TTS/STT collaborators, the
// turn engine itself, and the HTTP request surface.
package app

import (
	"context"
	"log/slog"
	"os"

	"github.com/reflective-resonance/turnengine/internal/config"
	"github.com/reflective-resonance/turnengine/internal/conversation"
	"github.com/reflective-resonance/turnengine/internal/decompose"
	"github.com/reflective-resonance/turnengine/internal/engine"
	"github.com/reflective-resonance/turnengine/internal/events"
	"github.com/reflective-resonance/turnengine/internal/httpapi"
	"github.com/reflective-resonance/turnengine/internal/llmclient"
	"github.com/reflective-resonance/turnengine/internal/observability"
	"github.com/reflective-resonance/turnengine/internal/sentiment"
	"github.com/reflective-resonance/turnengine/internal/session"
	"github.com/reflective-resonance/turnengine/internal/sttclient"
	"github.com/reflective-resonance/turnengine/internal/ttsclient"
)

// BuildResult groups every component main needs and a Cleanup hook that
// releases the ones holding background resources.
type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Store        *session.Store
	Orchestrator *events.Orchestrator
	Pool         *decompose.Pool
	Metrics      *observability.Metrics
	Engine       *engine.Engine

	// Cleanup stops the decomposition pool and the orchestrator's run
	// loop. It should be called once, on shutdown.
	Cleanup func(ctx context.Context) error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	logger := newLogger(cfg.LogLevel)
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store := session.NewStore(cfg.ArtifactsRoot)
	convLog := conversation.NewLog(cfg.DefaultSystemPrompt)

	pool := decompose.NewPool(cfg.WavesMaxWorkers, cfg.WavesQueueMaxSize, cfg.WavesJobTimeoutS, cfg.ArtifactsRoot)
	pool.SetMetrics(metrics)

	orchestrator := events.NewOrchestrator(pool.Results(), cfg.EventsWorkflowTimeoutS, logger)
	runCtx, cancelRun := context.WithCancel(ctx)
	go orchestrator.Run(runCtx)

	llm := llmclient.New(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.TimeoutS, cfg.Retries)
	tts := ttsclient.New(cfg.TTSBaseURL, cfg.TTSAPIKey, cfg.TTSOutputFormat, cfg.TTSDefaultSampleRate, cfg.TimeoutS)
	stt := sttclient.New(cfg.STTBaseURL, cfg.STTAPIKey, cfg.STTModelID, cfg.TimeoutS)

	var sentimentClassifier *sentiment.Classifier
	if cfg.SentimentEnabled {
		sentimentClassifier = sentiment.New(llm, cfg.SentimentModel, cfg.SentimentTemperature, cfg.SentimentMaxTokens, cfg.SentimentTimeoutS, logger)
	}

	eng := engine.New(engine.Config{
		SystemPrompt:       cfg.DefaultSystemPrompt,
		Temperature:        cfg.Temperature,
		MaxTokens:          cfg.MaxTokens,
		LLMModel:           cfg.LLMModel,
		Turn1Timeout:       cfg.EventsTurn1TimeoutS,
		DialogueTimeout:    cfg.EventsDialogueTimeoutS,
		SentimentEnabled:   cfg.SentimentEnabled,
		SummaryEnabled:     cfg.SummaryEnabled,
		SummaryModel:       cfg.SummaryModel,
		SummaryTemperature: cfg.SummaryTemperature,
		SummaryMaxTokens:   cfg.SummaryMaxTokens,
	}, convLog, store, pool, orchestrator, llm, tts, sentimentClassifier, metrics, logger)

	api := httpapi.New(cfg, store, convLog, eng, orchestrator, stt, metrics)

	cleanup := func(ctx context.Context) error {
		pool.Shutdown(ctx)
		cancelRun()
		return nil
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Store:        store,
		Orchestrator: orchestrator,
		Pool:         pool,
		Metrics:      metrics,
		Engine:       eng,
		Cleanup:      cleanup,
	}, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
