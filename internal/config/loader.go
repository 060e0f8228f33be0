package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/councild/councild/internal/domain"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "councild.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "COUNCILD_PORT")
	setString(&cfg.Server.CORSOrigin, "COUNCILD_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "COUNCILD_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "COUNCILD_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "COUNCILD_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "COUNCILD_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "COUNCILD_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.LiteLLM.URL, "LITELLM_URL")
	setString(&cfg.LiteLLM.MasterKey, "LITELLM_MASTER_KEY")
	setString(&cfg.LiteLLM.Model, "COUNCILD_LLM_MODEL")
	setString(&cfg.LiteLLM.SummaryModel, "COUNCILD_LLM_SUMMARY_MODEL")
	setFloat64(&cfg.LiteLLM.Temperature, "COUNCILD_LLM_TEMPERATURE")
	setInt(&cfg.LiteLLM.MaxTokens, "COUNCILD_LLM_MAX_TOKENS")
	setString(&cfg.Logging.Level, "COUNCILD_LOG_LEVEL")
	setString(&cfg.Logging.Service, "COUNCILD_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "COUNCILD_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "COUNCILD_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "COUNCILD_BREAKER_TIMEOUT")
	setString(&cfg.Telemetry.OTLPEndpoint, "COUNCILD_OTLP_ENDPOINT")
	setString(&cfg.Prompts.Dir, "COUNCILD_PROMPTS_DIR")
	setInt64(&cfg.Prompts.CacheSizeMB, "COUNCILD_PROMPT_CACHE_MB")
	setInt(&cfg.Deliberation.MaxRounds, "COUNCILD_MAX_ROUNDS")
	setInt(&cfg.Deliberation.RoundTimeoutMinutes, "COUNCILD_ROUND_TIMEOUT_MINUTES")
	setInt(&cfg.Deliberation.MaxParallel, "COUNCILD_MAX_PARALLEL")
	setInt(&cfg.Deliberation.ProviderRetries, "COUNCILD_PROVIDER_RETRIES")
	setFloat64(&cfg.Deliberation.Thresholds.DeadlockOppositionRatio, "COUNCILD_DEADLOCK_OPPOSITION_RATIO")
	setFloat64(&cfg.Deliberation.Thresholds.ConsensusQuorum, "COUNCILD_CONSENSUS_QUORUM")
}

// validate checks that required fields are set and thresholds are sane.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.LiteLLM.URL == "" {
		return errors.New("litellm.url is required")
	}
	if cfg.Deliberation.MaxRounds < 1 {
		return errors.New("deliberation.max_rounds must be >= 1")
	}
	if cfg.Deliberation.RoundTimeoutMinutes < 1 {
		return errors.New("deliberation.round_timeout_minutes must be >= 1")
	}
	if cfg.Deliberation.MaxParallel < 1 {
		return errors.New("deliberation.max_parallel must be >= 1")
	}
	th := cfg.Deliberation.Thresholds
	if th.DeadlockOppositionRatio < 0 || th.DeadlockOppositionRatio >= 1 {
		return errors.New("thresholds.deadlock_opposition_ratio must be in [0, 1)")
	}
	if th.ConsensusQuorum <= 0 || th.ConsensusQuorum > 1 {
		return errors.New("thresholds.consensus_quorum must be in (0, 1]")
	}
	if len(cfg.Roles) == 0 {
		return errors.New("at least one role is required")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
