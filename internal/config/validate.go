package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// JWT secret
	if len(c.JWT.AccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 characters")
	}

	// Upstream API key: the gateway cannot answer anything without it
	if c.OpenAI.APIKey == "" {
		errs = append(errs, "OPENAI_API_KEY is required")
	}

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	// Gateway tunables
	if c.Coach.BurstLimit < 1 {
		errs = append(errs, fmt.Sprintf("COACH_BURST_LIMIT must be positive, got %d", c.Coach.BurstLimit))
	}
	if c.Coach.BurstWindow <= 0 {
		errs = append(errs, fmt.Sprintf("COACH_BURST_WINDOW must be positive, got %v", c.Coach.BurstWindow))
	}
	if c.Coach.DispatchTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("COACH_DISPATCH_TIMEOUT must be positive, got %v", c.Coach.DispatchTimeout))
	}
	if c.Coach.CacheTTL <= 0 {
		errs = append(errs, fmt.Sprintf("COACH_CACHE_TTL must be positive, got %v", c.Coach.CacheTTL))
	}
	if c.Coach.Workers < 1 {
		errs = append(errs, fmt.Sprintf("COACH_WORKERS must be positive, got %d", c.Coach.Workers))
	}

	// NATS is optional: usage events are skipped when unset
	if c.NATS.URL == "" {
		slog.Warn("NATS_URL is empty, chat usage events will not be recorded")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
