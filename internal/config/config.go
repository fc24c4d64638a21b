// Package config resolves relay settings from the environment and an
// optional YAML/JSON5 config file with $include support.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Protocol constants advertised during the MCP handshake.
const (
	ProtocolVersion = "1.0"
	ServerName      = "relay"
	ServerVersion   = "0.3.0"
)

// Settings holds the resolved runtime configuration.
type Settings struct {
	// HTTP server
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// OTLP collector endpoint; tracing is disabled when empty.
	OTelEndpoint string `yaml:"otel_endpoint"`

	// Provider
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	DefaultModel  string `yaml:"default_model"`

	// Sessions
	RequireSession bool `yaml:"require_session"`

	// Polling and orchestration
	PollDelay          time.Duration `yaml:"poll_delay"`
	MaxPolls           int           `yaml:"max_polls"`
	PollMaxConcurrency int           `yaml:"poll_max_concurrency"`
	MaxTurns           int           `yaml:"max_turns"`

	// Think tool
	ThinkEnabled    bool          `yaml:"think_enabled"`
	ThinkURL        string        `yaml:"think_url"`
	ThinkTimeout    time.Duration `yaml:"think_timeout"`
	ThinkRetryLimit int           `yaml:"think_retry_limit"`

	// LangSmith tracing
	LangSmithEnabled  bool   `yaml:"langsmith_enabled"`
	LangSmithProject  string `yaml:"langsmith_project"`
	LangSmithAPIKey   string `yaml:"langsmith_api_key"`
	LangSmithEndpoint string `yaml:"langsmith_endpoint"`

	// Sandbox root for the read_file tool.
	FilesDir string `yaml:"files_dir"`
}

// Defaults returns settings with every default applied and no
// environment consulted.
func Defaults() *Settings {
	return &Settings{
		Host:               "0.0.0.0",
		Port:               8080,
		LogLevel:           "info",
		LogFormat:          "json",
		OpenAIBaseURL:      "https://api.openai.com/v1",
		DefaultModel:       "gpt-4.1-mini",
		RequireSession:     true,
		PollDelay:          2 * time.Second,
		MaxPolls:           30,
		PollMaxConcurrency: 8,
		MaxTurns:           15,
		ThinkTimeout:       2000 * time.Millisecond,
		ThinkRetryLimit:    0,
		LangSmithEndpoint:  "https://api.smith.langchain.com",
		FilesDir:           "/app",
	}
}

// FromEnv builds settings from defaults overlaid with environment
// variables. Unparseable numeric values fall back to the default.
func FromEnv() *Settings {
	s := Defaults()

	s.Host = envString("RELAY_HOST", s.Host)
	s.Port = envInt("PORT", s.Port)
	s.LogLevel = envString("RELAY_LOG_LEVEL", s.LogLevel)
	s.LogFormat = envString("RELAY_LOG_FORMAT", s.LogFormat)
	s.OTelEndpoint = envString("OTEL_ENDPOINT", s.OTelEndpoint)

	s.OpenAIAPIKey = envString("OPENAI_API_KEY", s.OpenAIAPIKey)
	s.OpenAIBaseURL = envString("OPENAI_BASE_URL", s.OpenAIBaseURL)
	s.DefaultModel = envString("RELAY_DEFAULT_MODEL", s.DefaultModel)

	s.RequireSession = envBool("MCP_REQUIRE_SESSION", s.RequireSession)

	s.PollDelay = envSeconds("POLL_DELAY", s.PollDelay)
	s.MaxPolls = envInt("MAX_POLLS", s.MaxPolls)
	s.PollMaxConcurrency = envInt("RESPONSES_POLL_MAX_CONCURRENCY", s.PollMaxConcurrency)
	s.MaxTurns = envInt("MAX_TURNS", s.MaxTurns)

	s.ThinkEnabled = envBool("THINK_TOOL_ENABLED", s.ThinkEnabled)
	s.ThinkURL = envString("THINK_TOOL_URL", s.ThinkURL)
	s.ThinkTimeout = envMillis("THINK_TOOL_TIMEOUT_MS", s.ThinkTimeout)
	s.ThinkRetryLimit = envInt("THINK_TOOL_RETRY_LIMIT", s.ThinkRetryLimit)

	s.LangSmithEnabled = envBool("LANGSMITH_TRACING", s.LangSmithEnabled)
	s.LangSmithProject = envString("LANGSMITH_PROJECT", s.LangSmithProject)
	s.LangSmithAPIKey = envString("LANGSMITH_API_KEY", s.LangSmithAPIKey)
	s.LangSmithEndpoint = envString("LANGSMITH_ENDPOINT", s.LangSmithEndpoint)

	s.FilesDir = envString("RELAY_FILES_DIR", s.FilesDir)

	return s
}

// Validate rejects settings the server cannot start with.
func (s *Settings) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("invalid port %d", s.Port)
	}
	if s.MaxTurns < 1 {
		return fmt.Errorf("max_turns must be at least 1, got %d", s.MaxTurns)
	}
	if s.MaxPolls < 1 {
		return fmt.Errorf("max_polls must be at least 1, got %d", s.MaxPolls)
	}
	if s.PollMaxConcurrency < 1 {
		return fmt.Errorf("poll_max_concurrency must be at least 1, got %d", s.PollMaxConcurrency)
	}
	if s.ThinkEnabled && strings.TrimSpace(s.ThinkURL) == "" {
		return fmt.Errorf("think tool enabled but THINK_TOOL_URL is empty")
	}
	return nil
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

// envBool treats "1", "true", "yes" and "on" (case-insensitive) as true;
// any other non-empty value is false.
func envBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func envInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

func envSeconds(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f < 0 {
		return fallback
	}
	return time.Duration(f * float64(time.Second))
}

func envMillis(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return fallback
	}
	return time.Duration(n) * time.Millisecond
}
