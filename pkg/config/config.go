// Package config loads the immutable process configuration from the
// environment. A .env file is honored when present (godotenv), then viper
// binds CHATEDGE_* variables over the defaults. The resulting Settings value
// is read-only after Load; per-request values are derived from it explicitly
// so no component depends on ambient global state.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envPrefix is the prefix of every chatedge environment variable, e.g.
// CHATEDGE_API_KEY. The provider key also falls back to OPENAI_API_KEY.
const envPrefix = "CHATEDGE"

// Settings is the process-wide configuration, read once at startup.
type Settings struct {
	// ListenAddr is the address the proxy listens on.
	ListenAddr string

	// APIKey is the upstream bearer token (secret, never logged).
	APIKey string

	// APIBase is the upstream API base URL, without a trailing slash.
	APIBase string

	// Model is the default model identifier.
	Model string

	// SystemPrompt is inserted when the caller sends no system message.
	SystemPrompt string

	// NativeTools enables attaching the native web-search tool for models
	// on the allowlist.
	NativeTools bool

	// DebugEvents makes unrecognized upstream event types visible in the
	// outgoing stream instead of silently dropped.
	DebugEvents bool

	// DebugDump logs every decoded upstream frame at debug level.
	DebugDump bool

	// StaticDir, when set, is served for non-API paths.
	StaticDir string

	// MaxTokens caps the upstream completion length.
	MaxTokens int

	// Temperature, TopP and Seed are optional sampling defaults; nil means
	// "not sent". They are ignored for reasoning-class models.
	Temperature *float64
	TopP        *float64
	Seed        *int

	// ReasoningEffort is the effort hint sent to thinking-class models in
	// place of sampling parameters.
	ReasoningEffort string

	// OverallTimeout bounds the whole upstream interaction.
	OverallTimeout time.Duration

	// HeartbeatInterval is the quiet period after which a synthetic
	// liveness notice is injected into the stream.
	HeartbeatInterval time.Duration

	// FirstPacketTimeout is the watchdog window: if no genuine text delta
	// arrives in time, the proxy falls back to a blocking call.
	FirstPacketTimeout time.Duration
}

// Load reads Settings from the environment. A missing .env file is not an
// error; a missing API key is reported by /api/debug rather than failing
// startup, so the proxy can still serve static assets.
func Load() (*Settings, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetDefault("listen", ":8080")
	v.SetDefault("api_base", "https://api.openai.com/v1")
	v.SetDefault("model", "gpt-4o-mini")
	v.SetDefault("system_prompt", "你是一个乐于助人的中英双语助手。/ You are a helpful bilingual assistant.")
	v.SetDefault("max_tokens", 1024)
	v.SetDefault("reasoning_effort", "medium")
	v.SetDefault("overall_timeout", "45s")
	v.SetDefault("heartbeat_interval", "8s")
	v.SetDefault("first_packet_timeout", "12s")

	// Optional keys without defaults still need an explicit binding for
	// AutomaticEnv lookups.
	for _, key := range []string{
		"api_key", "static_dir", "native_tools", "debug_events", "debug_dump",
		"temperature", "top_p", "seed",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	s := &Settings{
		ListenAddr:      v.GetString("listen"),
		APIKey:          v.GetString("api_key"),
		APIBase:         v.GetString("api_base"),
		Model:           v.GetString("model"),
		SystemPrompt:    v.GetString("system_prompt"),
		NativeTools:     v.GetBool("native_tools"),
		DebugEvents:     v.GetBool("debug_events"),
		DebugDump:       v.GetBool("debug_dump"),
		StaticDir:       v.GetString("static_dir"),
		MaxTokens:       v.GetInt("max_tokens"),
		ReasoningEffort: v.GetString("reasoning_effort"),
	}

	if s.APIKey == "" {
		// Conventional fallback so existing deployments keep working.
		s.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if base := os.Getenv("OPENAI_API_BASE"); s.APIBase == "https://api.openai.com/v1" && base != "" {
		s.APIBase = base
	}
	s.APIBase = strings.TrimSuffix(s.APIBase, "/")

	var err error
	if s.OverallTimeout, err = time.ParseDuration(v.GetString("overall_timeout")); err != nil {
		return nil, fmt.Errorf("parsing overall_timeout: %w", err)
	}
	if s.HeartbeatInterval, err = time.ParseDuration(v.GetString("heartbeat_interval")); err != nil {
		return nil, fmt.Errorf("parsing heartbeat_interval: %w", err)
	}
	if s.FirstPacketTimeout, err = time.ParseDuration(v.GetString("first_packet_timeout")); err != nil {
		return nil, fmt.Errorf("parsing first_packet_timeout: %w", err)
	}

	if s.Temperature, err = optionalFloat(v, "temperature"); err != nil {
		return nil, err
	}
	if s.TopP, err = optionalFloat(v, "top_p"); err != nil {
		return nil, err
	}
	if s.Seed, err = optionalInt(v, "seed"); err != nil {
		return nil, err
	}

	return s, nil
}

func optionalFloat(v *viper.Viper, key string) (*float64, error) {
	raw := v.GetString(key)
	if raw == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", key, err)
	}
	return &f, nil
}

func optionalInt(v *viper.Viper, key string) (*int, error) {
	raw := v.GetString(key)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", key, err)
	}
	return &n, nil
}
