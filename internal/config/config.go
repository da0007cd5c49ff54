package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the messaging assistant service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	DatabaseURL string

	OpenAIAPIKey       string
	OpenAIChatModel    string
	OpenAISummaryModel string
	SystemPrompt       string

	GatewayAPIURL        string
	GatewayAccountSID    string
	GatewayAuthToken     string
	GatewayFrom          string
	GatewaySigningSecret string
	GatewayCallbackURL   string

	SessionTimeout time.Duration
	TokenTTL       time.Duration
	ContextLimit   int
	SummaryThresh  int
	SummarizeBatch int
	ChunkLimit     int
	ChunkDelay     time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:             envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:     envOrDefault("APP_METRICS_NAMESPACE", "medassist"),
		AllowAnyOrigin:       false,
		DatabaseURL:          stringsTrimSpace("DATABASE_URL"),
		OpenAIAPIKey:         stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIChatModel:      envOrDefault("OPENAI_MODEL_CHAT", "gpt-4o-mini"),
		OpenAISummaryModel:   envOrDefault("OPENAI_MODEL_SUMMARY", "gpt-4o-mini"),
		SystemPrompt:         stringsTrimSpace("APP_SYSTEM_PROMPT"),
		GatewayAPIURL:        stringsTrimSpace("GATEWAY_API_URL"),
		GatewayAccountSID:    stringsTrimSpace("GATEWAY_ACCOUNT_SID"),
		GatewayAuthToken:     stringsTrimSpace("GATEWAY_AUTH_TOKEN"),
		GatewayFrom:          stringsTrimSpace("GATEWAY_FROM"),
		GatewaySigningSecret: stringsTrimSpace("GATEWAY_SIGNING_SECRET"),
		GatewayCallbackURL:   stringsTrimSpace("GATEWAY_CALLBACK_URL"),
		ShutdownTimeout:      15 * time.Second,
		SessionTimeout:       30 * time.Minute,
		TokenTTL:             30 * time.Minute,
		ContextLimit:         10,
		SummaryThresh:        15,
		SummarizeBatch:       5,
		ChunkLimit:           990,
		ChunkDelay:           1500 * time.Millisecond,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionTimeout, err = durationFromEnv("APP_SESSION_TIMEOUT", cfg.SessionTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TokenTTL, err = durationFromEnv("APP_TOKEN_TTL", cfg.TokenTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.ChunkDelay, err = durationFromEnv("APP_CHUNK_DELAY", cfg.ChunkDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.ContextLimit, err = intFromEnv("APP_CONTEXT_MESSAGE_LIMIT", cfg.ContextLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.SummaryThresh, err = intFromEnv("APP_SUMMARY_THRESHOLD", cfg.SummaryThresh)
	if err != nil {
		return Config{}, err
	}
	cfg.SummarizeBatch, err = intFromEnv("APP_SUMMARIZE_BATCH", cfg.SummarizeBatch)
	if err != nil {
		return Config{}, err
	}
	cfg.ChunkLimit, err = intFromEnv("APP_CHUNK_LIMIT", cfg.ChunkLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.GatewaySigningSecret == "" {
		return Config{}, fmt.Errorf("GATEWAY_SIGNING_SECRET is required")
	}
	if cfg.SessionTimeout < time.Minute {
		return Config{}, fmt.Errorf("APP_SESSION_TIMEOUT must be at least 1m")
	}
	if cfg.ContextLimit <= 0 {
		return Config{}, fmt.Errorf("APP_CONTEXT_MESSAGE_LIMIT must be positive")
	}
	if cfg.SummarizeBatch <= 0 {
		return Config{}, fmt.Errorf("APP_SUMMARIZE_BATCH must be positive")
	}
	if cfg.SummarizeBatch >= cfg.SummaryThresh {
		return Config{}, fmt.Errorf("APP_SUMMARIZE_BATCH must be smaller than APP_SUMMARY_THRESHOLD")
	}
	if cfg.ChunkLimit < 40 {
		return Config{}, fmt.Errorf("APP_CHUNK_LIMIT must be at least 40")
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
