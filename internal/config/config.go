// Package config provides hierarchical configuration loading for councild.
// Precedence: defaults < YAML file < environment variables.
package config

import (
	"time"

	"github.com/councild/councild/internal/domain/role"
	"github.com/councild/councild/internal/domain/vote"
)

// Config holds all runtime configuration for the councild service.
type Config struct {
	Server       Server       `yaml:"server"`
	Postgres     Postgres     `yaml:"postgres"`
	NATS         NATS         `yaml:"nats"`
	LiteLLM      LiteLLM      `yaml:"litellm"`
	Logging      Logging      `yaml:"logging"`
	Breaker      Breaker      `yaml:"breaker"`
	Telemetry    Telemetry    `yaml:"telemetry"`
	Prompts      Prompts      `yaml:"prompts"`
	Deliberation Deliberation `yaml:"deliberation"`
	Roles        []role.Spec  `yaml:"roles"`
}

// Deliberation holds the round loop and routing configuration.
type Deliberation struct {
	MaxRounds           int             `yaml:"max_rounds"`            // Round budget per deliberation (default: 10)
	RoundTimeoutMinutes int             `yaml:"round_timeout_minutes"` // Human decision wait window (default: 30)
	MaxParallel         int             `yaml:"max_parallel"`          // Max concurrent opinion calls per round (default: 4)
	ProviderRetries     int             `yaml:"provider_retries"`      // Retries per role before RoleOpinionFailed (default: 2)
	Thresholds          vote.Thresholds `yaml:"thresholds"`
}

// RoundTimeout returns the human decision window as a duration.
func (d Deliberation) RoundTimeout() time.Duration {
	return time.Duration(d.RoundTimeoutMinutes) * time.Minute
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Postgres holds PostgreSQL connection configuration. An empty DSN disables
// durable event persistence; deliberations then run in-memory only.
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	HealthCheck     time.Duration `yaml:"health_check"`
}

// NATS holds NATS JetStream configuration. An empty URL disables the NATS
// human decision source and outcome publication.
type NATS struct {
	URL string `yaml:"url"`
}

// LiteLLM holds the LLM proxy configuration for the opinion provider.
type LiteLLM struct {
	URL            string  `yaml:"url"`
	MasterKey      string  `yaml:"master_key"`
	Model          string  `yaml:"model"`           // Default model for reviewer roles
	SummaryModel   string  `yaml:"summary_model"`   // Model for the round summarizer (default: Model)
	Temperature    float64 `yaml:"temperature"`     // Default sampling temperature
	MaxTokens      int     `yaml:"max_tokens"`      // Max tokens per opinion response
	HistoryEntries int     `yaml:"history_entries"` // Recent history entries included per prompt
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Breaker holds circuit breaker configuration for the LLM proxy client.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Telemetry holds OpenTelemetry export configuration. An empty endpoint
// leaves tracing and metrics disabled.
type Telemetry struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Prompts holds role prompt resolution configuration.
type Prompts struct {
	Dir         string `yaml:"dir"`           // Directory holding prompt files
	CacheSizeMB int64  `yaml:"cache_size_mb"` // In-process prompt cache budget
}

// Defaults returns a Config with sensible default values for local
// development, including the stock reviewer bench and clerk.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:3000",
		},
		Postgres: Postgres{
			MaxConns:        10,
			MinConns:        2,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 10 * time.Minute,
			HealthCheck:     time.Minute,
		},
		LiteLLM: LiteLLM{
			URL:            "http://localhost:4000",
			Model:          "openai/gpt-4o-mini",
			Temperature:    0.7,
			MaxTokens:      1024,
			HistoryEntries: 20,
		},
		Logging: Logging{
			Level:   "info",
			Service: "councild",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Prompts: Prompts{
			Dir:         "prompts",
			CacheSizeMB: 8,
		},
		Deliberation: Deliberation{
			MaxRounds:           10,
			RoundTimeoutMinutes: 30,
			MaxParallel:         4,
			ProviderRetries:     2,
			Thresholds: vote.Thresholds{
				DeadlockOppositionRatio: 0.3,
				ConsensusQuorum:         0.8,
			},
		},
		Roles: DefaultRoles(),
	}
}

// DefaultRoles returns the stock role bench: four voting reviewers and the
// clerk, which speaks only through round summaries and never votes.
func DefaultRoles() []role.Spec {
	mustSpeak := func(id string) role.Spec {
		return role.Spec{ID: id, MustSpeak: true, Prompt: id + ".txt"}
	}
	no := false
	clerk := role.Spec{ID: "clerk", MustSpeak: false, CanVote: &no, Prompt: "clerk.txt"}
	return []role.Spec{
		mustSpeak("architect"),
		mustSpeak("security"),
		mustSpeak("cost_control"),
		mustSpeak("innovator"),
		clerk,
	}
}
