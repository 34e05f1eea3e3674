package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the voice capture service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	// Voice activity detection thresholds.
	VADSustainedDuration      time.Duration
	VADAmnestyPeriod          time.Duration
	VADVoiceSilenceThreshold  time.Duration
	VADSpeechSilenceThreshold time.Duration

	// Realtime backend connection.
	RealtimeURL       string
	RealtimeModel     string
	RealtimeAPIKey    string
	RealtimeVoice     string
	ConnectAttempts   int
	ConnectTimeout    time.Duration
	ReconcileInterval time.Duration

	// Cost accounting rates in USD per million tokens.
	InputUSDPerMTok  float64
	OutputUSDPerMTok float64

	// Text completion fallback backend.
	LLMAdapterMode string
	LLMHTTPURL     string
	LLMCLIPath     string

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "voxbridge"),
		AllowAnyOrigin:   false,
		RealtimeURL:      envOrDefault("REALTIME_WS_URL", "wss://api.openai.com/v1/realtime"),
		RealtimeModel:    envOrDefault("REALTIME_MODEL", "gpt-4o-realtime-preview"),
		RealtimeAPIKey:   stringsTrimSpace("REALTIME_API_KEY"),
		RealtimeVoice:    envOrDefault("REALTIME_VOICE", "alloy"),
		LLMAdapterMode:   envOrDefault("LLM_ADAPTER_MODE", "auto"),
		LLMHTTPURL:       stringsTrimSpace("LLM_HTTP_URL"),
		LLMCLIPath:       envOrDefault("LLM_CLI_PATH", "llm"),
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),

		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 2 * time.Minute,

		VADSustainedDuration:      300 * time.Millisecond,
		VADAmnestyPeriod:          2 * time.Second,
		VADVoiceSilenceThreshold:  700 * time.Millisecond,
		VADSpeechSilenceThreshold: 1200 * time.Millisecond,

		ConnectAttempts:   3,
		ConnectTimeout:    10 * time.Second,
		ReconcileInterval: 500 * time.Millisecond,

		InputUSDPerMTok:  0,
		OutputUSDPerMTok: 0,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	cfg.VADSustainedDuration, err = durationFromEnv("VAD_SUSTAINED_DURATION", cfg.VADSustainedDuration)
	if err != nil {
		return Config{}, err
	}
	cfg.VADAmnestyPeriod, err = durationFromEnv("VAD_AMNESTY_PERIOD", cfg.VADAmnestyPeriod)
	if err != nil {
		return Config{}, err
	}
	cfg.VADVoiceSilenceThreshold, err = durationFromEnv("VAD_VOICE_SILENCE_THRESHOLD", cfg.VADVoiceSilenceThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.VADSpeechSilenceThreshold, err = durationFromEnv("VAD_SPEECH_SILENCE_THRESHOLD", cfg.VADSpeechSilenceThreshold)
	if err != nil {
		return Config{}, err
	}

	cfg.ConnectAttempts, err = intFromEnv("REALTIME_CONNECT_ATTEMPTS", cfg.ConnectAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.ConnectTimeout, err = durationFromEnv("REALTIME_CONNECT_TIMEOUT", cfg.ConnectTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ReconcileInterval, err = durationFromEnv("REALTIME_RECONCILE_INTERVAL", cfg.ReconcileInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.InputUSDPerMTok, err = floatFromEnv("COST_INPUT_USD_PER_MTOK", cfg.InputUSDPerMTok)
	if err != nil {
		return Config{}, err
	}
	cfg.OutputUSDPerMTok, err = floatFromEnv("COST_OUTPUT_USD_PER_MTOK", cfg.OutputUSDPerMTok)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.VADSustainedDuration <= 0 {
		return Config{}, fmt.Errorf("VAD_SUSTAINED_DURATION must be positive")
	}
	if cfg.VADVoiceSilenceThreshold > cfg.VADSpeechSilenceThreshold {
		return Config{}, fmt.Errorf("VAD_VOICE_SILENCE_THRESHOLD must not exceed VAD_SPEECH_SILENCE_THRESHOLD")
	}
	if cfg.ConnectAttempts <= 0 {
		return Config{}, fmt.Errorf("REALTIME_CONNECT_ATTEMPTS must be positive")
	}
	if cfg.ReconcileInterval <= 0 {
		return Config{}, fmt.Errorf("REALTIME_RECONCILE_INTERVAL must be positive")
	}
	if cfg.InputUSDPerMTok < 0 || cfg.OutputUSDPerMTok < 0 {
		return Config{}, fmt.Errorf("cost rates must be >= 0")
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
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
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
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
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
