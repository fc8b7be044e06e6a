package config

import (
	"fmt"
)

// Validate checks the static invariants of a loaded configuration.
// It runs once at startup; a service never starts with a config it
// cannot operate under.
func Validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Port <= 0 || cfg.Database.Postgres.Port > 65535 {
		return fmt.Errorf("database.postgres.port must be between 1 and 65535, got %d", cfg.Database.Postgres.Port)
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}
	if cfg.Database.Postgres.DBName == "" {
		return fmt.Errorf("database.postgres.dbname is required")
	}
	if cfg.Database.RunMigrations && cfg.Database.MigrationsDir == "" {
		return fmt.Errorf("database.migrations_dir is required when database.run_migrations is set")
	}

	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if cfg.Auth.CapabilityCache && cfg.Database.Redis.Host == "" {
		return fmt.Errorf("database.redis.host is required when auth.capability_cache is enabled")
	}

	if cfg.Events.Enabled {
		if len(cfg.Events.Kafka.Brokers) == 0 {
			return fmt.Errorf("events.kafka.brokers is required when events are enabled")
		}
		if cfg.Events.Kafka.LifecycleTopic == "" {
			return fmt.Errorf("events.kafka.lifecycle_topic is required when events are enabled")
		}
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.RPS <= 0 {
			return fmt.Errorf("rate_limit.rps must be positive, got %f", cfg.RateLimit.RPS)
		}
		if cfg.RateLimit.Burst <= 0 {
			return fmt.Errorf("rate_limit.burst must be positive, got %d", cfg.RateLimit.Burst)
		}
	}

	if cfg.Tracing.Enabled && cfg.Tracing.OTLP.Endpoint == "" {
		return fmt.Errorf("tracing.otlp.endpoint is required when tracing is enabled")
	}

	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", cfg.Logging.Level)
	}

	return nil
}
