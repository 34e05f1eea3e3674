package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9090")
	}
	if cfg.MetricsNamespace != "voxbridge" {
		t.Fatalf("MetricsNamespace = %q, want %q", cfg.MetricsNamespace, "voxbridge")
	}
	if cfg.VADSustainedDuration != 300*time.Millisecond {
		t.Fatalf("VADSustainedDuration = %v, want 300ms", cfg.VADSustainedDuration)
	}
	if cfg.VADSpeechSilenceThreshold != 1200*time.Millisecond {
		t.Fatalf("VADSpeechSilenceThreshold = %v, want 1.2s", cfg.VADSpeechSilenceThreshold)
	}
	if cfg.ConnectAttempts != 3 {
		t.Fatalf("ConnectAttempts = %d, want 3", cfg.ConnectAttempts)
	}
	if cfg.LLMAdapterMode != "auto" {
		t.Fatalf("LLMAdapterMode = %q, want %q", cfg.LLMAdapterMode, "auto")
	}
	if cfg.LLMHTTPURL != "" {
		t.Fatalf("LLMHTTPURL = %q, want empty default", cfg.LLMHTTPURL)
	}
}

func TestLoadUsesExplicitOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("VAD_SUSTAINED_DURATION", "150ms")
	t.Setenv("REALTIME_CONNECT_ATTEMPTS", "5")
	t.Setenv("LLM_HTTP_URL", "http://localhost:7777/v1")
	t.Setenv("COST_INPUT_USD_PER_MTOK", "2.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.VADSustainedDuration != 150*time.Millisecond {
		t.Fatalf("VADSustainedDuration = %v, want 150ms", cfg.VADSustainedDuration)
	}
	if cfg.ConnectAttempts != 5 {
		t.Fatalf("ConnectAttempts = %d, want 5", cfg.ConnectAttempts)
	}
	if cfg.LLMHTTPURL != "http://localhost:7777/v1" {
		t.Fatalf("LLMHTTPURL = %q, want explicit value", cfg.LLMHTTPURL)
	}
	if cfg.InputUSDPerMTok != 2.5 {
		t.Fatalf("InputUSDPerMTok = %v, want 2.5", cfg.InputUSDPerMTok)
	}
}

func TestLoadRejectsInvertedSilenceThresholds(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("VAD_VOICE_SILENCE_THRESHOLD", "2s")
	t.Setenv("VAD_SPEECH_SILENCE_THRESHOLD", "1s")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want threshold ordering error")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("REALTIME_CONNECT_TIMEOUT", "soon")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want parse error")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_SESSION_INACTIVITY_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"VAD_SUSTAINED_DURATION",
		"VAD_AMNESTY_PERIOD",
		"VAD_VOICE_SILENCE_THRESHOLD",
		"VAD_SPEECH_SILENCE_THRESHOLD",
		"REALTIME_WS_URL",
		"REALTIME_MODEL",
		"REALTIME_API_KEY",
		"REALTIME_VOICE",
		"REALTIME_CONNECT_ATTEMPTS",
		"REALTIME_CONNECT_TIMEOUT",
		"REALTIME_RECONCILE_INTERVAL",
		"COST_INPUT_USD_PER_MTOK",
		"COST_OUTPUT_USD_PER_MTOK",
		"LLM_ADAPTER_MODE",
		"LLM_HTTP_URL",
		"LLM_CLI_PATH",
		"DATABASE_URL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
