package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		DB: DBConfig{
			Host: "localhost", Port: 5432, User: "tradecoach",
			Password: "secret", Name: "tradecoach", SSLMode: "disable", MaxConns: 25,
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		JWT: JWTConfig{
			AccessSecret: "access-secret-that-is-at-least-32-chars!",
			AccessExpiry: 24 * time.Hour,
		},
		OpenAI: OpenAIConfig{APIKey: "sk-test", Model: "gpt-4o-mini", Timeout: time.Minute},
		Coach: CoachConfig{
			BurstLimit:      10,
			BurstWindow:     time.Minute,
			DispatchTimeout: 30 * time.Second,
			CacheTTL:        time.Hour,
			Workers:         4,
			QueueSize:       64,
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestValidate_JWTAccessSecretTooShort(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.AccessSecret = "short"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "JWT_ACCESS_SECRET") {
		t.Fatalf("expected JWT_ACCESS_SECRET error, got: %v", err)
	}
}

func TestValidate_OpenAIKeyRequired(t *testing.T) {
	cfg := validConfig()
	cfg.OpenAI.APIKey = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Fatalf("expected OPENAI_API_KEY error, got: %v", err)
	}
}

func TestValidate_DBPasswordRequired(t *testing.T) {
	cfg := validConfig()
	cfg.DB.Password = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "DB_PASSWORD") {
		t.Fatalf("expected DB_PASSWORD error, got: %v", err)
	}
}

func TestValidate_InvalidPorts(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.Redis.Port = 70000
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "SERVER_PORT") || !strings.Contains(err.Error(), "REDIS_PORT") {
		t.Fatalf("expected both port errors collected, got: %v", err)
	}
}

func TestValidate_GatewayTunables(t *testing.T) {
	cfg := validConfig()
	cfg.Coach.BurstLimit = 0
	cfg.Coach.DispatchTimeout = 0
	cfg.Coach.Workers = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"COACH_BURST_LIMIT", "COACH_DISPATCH_TIMEOUT", "COACH_WORKERS"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s error, got: %v", want, err)
		}
	}
}
