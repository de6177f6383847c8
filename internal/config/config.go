// Package config loads runtime settings for the turn workflow engine from
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the turn workflow engine.
type Config struct {
	Host             string
	Port             int
	CORSOrigins      []string
	AllowAnyOrigin   bool
	LogLevel         string
	ArtifactsRoot    string
	MetricsNamespace string
	ShutdownTimeout  time.Duration

	// LLM behavior.
	LLMBaseURL          string
	LLMAPIKey           string
	LLMModel            string
	DefaultSystemPrompt string
	Temperature         float64
	MaxTokens           int
	TimeoutS            time.Duration
	Retries             int

	// C3 tuning.
	WavesEnabled      bool
	WavesMaxWorkers   int
	WavesQueueMaxSize int
	WavesJobTimeoutS  time.Duration

	// C4 tuning. WorkflowTimeoutS is authoritative for emission; the
	// Turn1/Dialogue timeouts are not consulted by the orchestrator's
	// emission policy and serve only as the engine's turn 1 and turn 3
	// deadlines.
	EventsWSEnabled        bool
	EventsTurn1TimeoutS    time.Duration
	EventsDialogueTimeoutS time.Duration
	EventsWorkflowTimeoutS time.Duration

	// Sentiment stage.
	SentimentEnabled     bool
	SentimentModel       string
	SentimentTemperature float64
	SentimentTimeoutS    time.Duration
	SentimentMaxTokens   int

	// Summary stage (Turn 4).
	SummaryEnabled     bool
	SummaryModel       string
	SummaryTemperature float64
	SummaryTimeoutS    time.Duration
	SummaryMaxTokens   int

	// TTS vendor.
	TTSBaseURL           string
	TTSAPIKey            string
	TTSDefaultModel      string
	TTSOutputFormat      string
	TTSFallbackVoice     string
	TTSDefaultSampleRate int

	// STT vendor.
	STTBaseURL string
	STTAPIKey  string
	STTModelID string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		Host:             envOrDefault("TURNENGINE_HOST", "0.0.0.0"),
		Port:             8080,
		CORSOrigins:      splitCSV(envOrDefault("TURNENGINE_CORS_ORIGINS", "*")),
		AllowAnyOrigin:   false,
		LogLevel:         envOrDefault("TURNENGINE_LOG_LEVEL", "info"),
		ArtifactsRoot:    envOrDefault("TURNENGINE_ARTIFACTS_ROOT", "artifacts"),
		MetricsNamespace: envOrDefault("TURNENGINE_METRICS_NAMESPACE", "turnengine"),
		ShutdownTimeout:  15 * time.Second,

		LLMBaseURL: envOrDefault("TURNENGINE_LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:  stringsTrimSpace("TURNENGINE_LLM_API_KEY"),
		LLMModel:   envOrDefault("TURNENGINE_LLM_MODEL", "gpt-4o-mini"),
		DefaultSystemPrompt: envOrDefault("TURNENGINE_DEFAULT_SYSTEM_PROMPT",
			"You are one voice in a six-voice installation. Respond in character, briefly."),
		Temperature: 0.8,
		MaxTokens:   400,
		TimeoutS:    20 * time.Second,
		Retries:     2,

		WavesEnabled:      true,
		WavesMaxWorkers:   2,
		WavesQueueMaxSize: 64,
		WavesJobTimeoutS:  30 * time.Second,

		EventsWSEnabled:        true,
		EventsTurn1TimeoutS:    8 * time.Second,
		EventsDialogueTimeoutS: 8 * time.Second,
		EventsWorkflowTimeoutS: 20 * time.Second,

		SentimentEnabled:     true,
		SentimentModel:       envOrDefault("TURNENGINE_SENTIMENT_MODEL", "gpt-4o-mini"),
		SentimentTemperature: 0.0,
		SentimentTimeoutS:    10 * time.Second,
		SentimentMaxTokens:   120,

		SummaryEnabled:     true,
		SummaryModel:       envOrDefault("TURNENGINE_SUMMARY_MODEL", "gpt-4o"),
		SummaryTemperature: 0.6,
		SummaryTimeoutS:    15 * time.Second,
		SummaryMaxTokens:   300,

		TTSBaseURL:           envOrDefault("TURNENGINE_TTS_BASE_URL", "https://api.elevenlabs.io/v1"),
		TTSAPIKey:            stringsTrimSpace("TURNENGINE_TTS_API_KEY"),
		TTSDefaultModel:      envOrDefault("TURNENGINE_TTS_MODEL", "eleven_multilingual_v2"),
		TTSOutputFormat:      envOrDefault("TURNENGINE_TTS_OUTPUT_FORMAT", "pcm_16000"),
		TTSFallbackVoice:     envOrDefault("TURNENGINE_TTS_FALLBACK_VOICE", "amber"),
		TTSDefaultSampleRate: 16000,

		STTBaseURL: envOrDefault("TURNENGINE_STT_BASE_URL", "https://api.elevenlabs.io/v1"),
		STTAPIKey:  stringsTrimSpace("TURNENGINE_STT_API_KEY"),
		STTModelID: envOrDefault("TURNENGINE_STT_MODEL", "scribe_v1"),
	}

	var err error
	cfg.Port, err = intFromEnv("TURNENGINE_PORT", 8080)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("TURNENGINE_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.ShutdownTimeout, err = durationFromEnv("TURNENGINE_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.Temperature, err = floatFromEnv("TURNENGINE_TEMPERATURE", cfg.Temperature)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxTokens, err = intFromEnv("TURNENGINE_MAX_TOKENS", cfg.MaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.TimeoutS, err = durationFromEnv("TURNENGINE_TIMEOUT_S", cfg.TimeoutS)
	if err != nil {
		return Config{}, err
	}
	cfg.Retries, err = intFromEnv("TURNENGINE_RETRIES", cfg.Retries)
	if err != nil {
		return Config{}, err
	}

	cfg.WavesEnabled, err = boolFromEnv("TURNENGINE_WAVES_ENABLED", cfg.WavesEnabled)
	if err != nil {
		return Config{}, err
	}
	cfg.WavesMaxWorkers, err = intFromEnv("TURNENGINE_WAVES_MAX_WORKERS", cfg.WavesMaxWorkers)
	if err != nil {
		return Config{}, err
	}
	cfg.WavesQueueMaxSize, err = intFromEnv("TURNENGINE_WAVES_QUEUE_MAX_SIZE", cfg.WavesQueueMaxSize)
	if err != nil {
		return Config{}, err
	}
	cfg.WavesJobTimeoutS, err = durationFromEnv("TURNENGINE_WAVES_JOB_TIMEOUT_S", cfg.WavesJobTimeoutS)
	if err != nil {
		return Config{}, err
	}

	cfg.EventsWSEnabled, err = boolFromEnv("TURNENGINE_EVENTS_WS_ENABLED", cfg.EventsWSEnabled)
	if err != nil {
		return Config{}, err
	}
	cfg.EventsTurn1TimeoutS, err = durationFromEnv("TURNENGINE_EVENTS_TURN1_TIMEOUT_S", cfg.EventsTurn1TimeoutS)
	if err != nil {
		return Config{}, err
	}
	cfg.EventsDialogueTimeoutS, err = durationFromEnv("TURNENGINE_EVENTS_DIALOGUE_TIMEOUT_S", cfg.EventsDialogueTimeoutS)
	if err != nil {
		return Config{}, err
	}
	cfg.EventsWorkflowTimeoutS, err = durationFromEnv("TURNENGINE_EVENTS_WORKFLOW_TIMEOUT_S", cfg.EventsWorkflowTimeoutS)
	if err != nil {
		return Config{}, err
	}

	cfg.SentimentEnabled, err = boolFromEnv("TURNENGINE_SENTIMENT_ENABLED", cfg.SentimentEnabled)
	if err != nil {
		return Config{}, err
	}
	cfg.SentimentTemperature, err = floatFromEnv("TURNENGINE_SENTIMENT_TEMPERATURE", cfg.SentimentTemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.SentimentTimeoutS, err = durationFromEnv("TURNENGINE_SENTIMENT_TIMEOUT_S", cfg.SentimentTimeoutS)
	if err != nil {
		return Config{}, err
	}
	cfg.SentimentMaxTokens, err = intFromEnv("TURNENGINE_SENTIMENT_MAX_TOKENS", cfg.SentimentMaxTokens)
	if err != nil {
		return Config{}, err
	}

	cfg.SummaryEnabled, err = boolFromEnv("TURNENGINE_SUMMARY_ENABLED", cfg.SummaryEnabled)
	if err != nil {
		return Config{}, err
	}
	cfg.SummaryTemperature, err = floatFromEnv("TURNENGINE_SUMMARY_TEMPERATURE", cfg.SummaryTemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.SummaryTimeoutS, err = durationFromEnv("TURNENGINE_SUMMARY_TIMEOUT_S", cfg.SummaryTimeoutS)
	if err != nil {
		return Config{}, err
	}
	cfg.SummaryMaxTokens, err = intFromEnv("TURNENGINE_SUMMARY_MAX_TOKENS", cfg.SummaryMaxTokens)
	if err != nil {
		return Config{}, err
	}

	cfg.TTSDefaultSampleRate, err = intFromEnv("TURNENGINE_TTS_SAMPLE_RATE", cfg.TTSDefaultSampleRate)
	if err != nil {
		return Config{}, err
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("TURNENGINE_PORT must be a valid port number")
	}
	if cfg.WavesMaxWorkers <= 0 {
		return Config{}, fmt.Errorf("TURNENGINE_WAVES_MAX_WORKERS must be positive")
	}
	if cfg.WavesQueueMaxSize <= 0 {
		return Config{}, fmt.Errorf("TURNENGINE_WAVES_QUEUE_MAX_SIZE must be positive")
	}
	if cfg.Retries < 0 {
		return Config{}, fmt.Errorf("TURNENGINE_RETRIES must be >= 0")
	}
	if cfg.MaxTokens <= 0 {
		return Config{}, fmt.Errorf("TURNENGINE_MAX_TOKENS must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = trimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(n * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
