// Package config defines the configuration schema for the guide.
//
// JSON keys use camelCase; the same keys work in YAML files.
package config

import (
	"path/filepath"
	"time"
)

// AgentConfig tunes the turn loop.
type AgentConfig struct {
	Model         string  `json:"model" yaml:"model"`
	MaxTokens     int     `json:"maxTokens" yaml:"maxTokens"`
	Temperature   float64 `json:"temperature" yaml:"temperature"`
	MaxToolIter   int     `json:"maxToolIterations" yaml:"maxToolIterations"`
	TurnTimeout   int     `json:"turnTimeout" yaml:"turnTimeout"` // seconds, per engine call
	ToolTimeout   int     `json:"toolTimeout" yaml:"toolTimeout"` // seconds
	HistoryWindow int     `json:"historyWindow" yaml:"historyWindow"`
}

func defaultAgentConfig() AgentConfig {
	return AgentConfig{
		Model:         "anthropic/claude-sonnet-4-5",
		MaxTokens:     1024,
		Temperature:   0.7,
		MaxToolIter:   10,
		TurnTimeout:   60,
		ToolTimeout:   10,
		HistoryWindow: 20,
	}
}

// ProviderConfig holds credentials for the decision engine. An empty Name is
// resolved from the model string.
type ProviderConfig struct {
	Name         string            `json:"name,omitempty" yaml:"name,omitempty"`
	APIKey       string            `json:"apiKey" yaml:"apiKey"`
	APIBase      string            `json:"apiBase,omitempty" yaml:"apiBase,omitempty"`
	ExtraHeaders map[string]string `json:"extraHeaders,omitempty" yaml:"extraHeaders,omitempty"`
}

// StoreConfig selects the database behind the entity facade.
type StoreConfig struct {
	Driver       string `json:"driver" yaml:"driver"` // postgres | sqlite
	DSN          string `json:"dsn" yaml:"dsn"`
	MaxOpenConns int    `json:"maxOpenConns" yaml:"maxOpenConns"`
	QueryTimeout int    `json:"queryTimeout" yaml:"queryTimeout"` // seconds
	MaxLimit     int    `json:"maxLimit" yaml:"maxLimit"`
}

func defaultStoreConfig() StoreConfig {
	return StoreConfig{
		Driver:       "sqlite",
		DSN:          filepath.Join(DataDir(), "guide.db"),
		MaxOpenConns: 10,
		QueryTimeout: 5,
		MaxLimit:     50,
	}
}

// CacheConfig configures the Redis cache in front of aggregate stats.
type CacheConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db" yaml:"db"`
	TTL      int    `json:"ttl" yaml:"ttl"` // seconds
}

func defaultCacheConfig() CacheConfig {
	return CacheConfig{Addr: "localhost:6379", TTL: 300}
}

// CronConfig holds scheduled job expressions.
type CronConfig struct {
	StatsRefresh string `json:"statsRefresh" yaml:"statsRefresh"`
}

// HeartbeatConfig configures the store probe.
type HeartbeatConfig struct {
	Interval int `json:"interval" yaml:"interval"` // seconds
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string   `json:"addr" yaml:"addr"`
	AllowedOrigins []string `json:"allowedOrigins" yaml:"allowedOrigins"`
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{Addr: "0.0.0.0:8790", AllowedOrigins: []string{}}
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`
	Insecure    bool    `json:"insecure" yaml:"insecure"`
	ServiceName string  `json:"serviceName" yaml:"serviceName"`
	SampleRate  float64 `json:"sampleRate" yaml:"sampleRate"`
}

func defaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{Endpoint: "localhost:4317", ServiceName: "guide", SampleRate: 1.0}
}

// LoggingConfig controls the slog handler installed by `guide serve`.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug | info | warn | error
	Format string `json:"format" yaml:"format"` // text | json
}

// ---- Root config -----------------------------------------------------------

// Config is the root configuration object, loaded from ~/.guide/config.json.
type Config struct {
	Agent     AgentConfig     `json:"agent" yaml:"agent"`
	Provider  ProviderConfig  `json:"provider" yaml:"provider"`
	Store     StoreConfig     `json:"store" yaml:"store"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Cron      CronConfig      `json:"cron" yaml:"cron"`
	Heartbeat HeartbeatConfig `json:"heartbeat" yaml:"heartbeat"`
	Server    ServerConfig    `json:"server" yaml:"server"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() Config {
	return Config{
		Agent:     defaultAgentConfig(),
		Store:     defaultStoreConfig(),
		Cache:     defaultCacheConfig(),
		Cron:      CronConfig{StatsRefresh: "*/5 * * * *"},
		Heartbeat: HeartbeatConfig{Interval: 30},
		Server:    defaultServerConfig(),
		Telemetry: defaultTelemetryConfig(),
		Logging:   LoggingConfig{Level: "info", Format: "text"},
	}
}

// Seconds converts a seconds field to a Duration; zero or negative yields 0.
func Seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
