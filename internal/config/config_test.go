package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.WavesMaxWorkers != 2 {
		t.Fatalf("WavesMaxWorkers = %d, want 2", cfg.WavesMaxWorkers)
	}
	if !cfg.SentimentEnabled {
		t.Fatalf("SentimentEnabled = false, want true by default")
	}
}

func TestLoadFractionalSecondsTimeout(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("TURNENGINE_WAVES_JOB_TIMEOUT_S", "0.001")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WavesJobTimeoutS.Seconds() != 0.001 {
		t.Fatalf("WavesJobTimeoutS = %v, want 1ms", cfg.WavesJobTimeoutS)
	}
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("TURNENGINE_PORT", "0")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want error for invalid port")
	}
}

func TestLoadCORSOriginsSplit(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("TURNENGINE_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[0] != "https://a.example" || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"TURNENGINE_HOST", "TURNENGINE_PORT", "TURNENGINE_CORS_ORIGINS", "TURNENGINE_ALLOW_ANY_ORIGIN", "TURNENGINE_LOG_LEVEL",
		"TURNENGINE_ARTIFACTS_ROOT", "TURNENGINE_METRICS_NAMESPACE", "TURNENGINE_SHUTDOWN_TIMEOUT",
		"TURNENGINE_DEFAULT_SYSTEM_PROMPT", "TURNENGINE_TEMPERATURE", "TURNENGINE_MAX_TOKENS",
		"TURNENGINE_TIMEOUT_S", "TURNENGINE_RETRIES",
		"TURNENGINE_WAVES_ENABLED", "TURNENGINE_WAVES_MAX_WORKERS", "TURNENGINE_WAVES_QUEUE_MAX_SIZE",
		"TURNENGINE_WAVES_JOB_TIMEOUT_S",
		"TURNENGINE_EVENTS_WS_ENABLED", "TURNENGINE_EVENTS_TURN1_TIMEOUT_S",
		"TURNENGINE_EVENTS_DIALOGUE_TIMEOUT_S", "TURNENGINE_EVENTS_WORKFLOW_TIMEOUT_S",
		"TURNENGINE_SENTIMENT_ENABLED", "TURNENGINE_SENTIMENT_MODEL", "TURNENGINE_SENTIMENT_TEMPERATURE",
		"TURNENGINE_SENTIMENT_TIMEOUT_S", "TURNENGINE_SENTIMENT_MAX_TOKENS",
		"TURNENGINE_SUMMARY_ENABLED", "TURNENGINE_SUMMARY_MODEL", "TURNENGINE_SUMMARY_TEMPERATURE",
		"TURNENGINE_SUMMARY_TIMEOUT_S", "TURNENGINE_SUMMARY_MAX_TOKENS",
		"TURNENGINE_TTS_API_KEY", "TURNENGINE_TTS_MODEL", "TURNENGINE_TTS_OUTPUT_FORMAT",
		"TURNENGINE_TTS_FALLBACK_VOICE", "TURNENGINE_TTS_SAMPLE_RATE",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
