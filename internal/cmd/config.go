package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/duoeng/wordduel/internal/ratelimit"
	"github.com/duoeng/wordduel/internal/room"
	"github.com/duoeng/wordduel/internal/scoring"
)

// Config is the yaml application config. Secrets and connection
// endpoints come from the environment instead.
type Config struct {
	Game struct {
		TurnTimeoutSeconds       int `yaml:"turn_timeout_seconds"`
		TargetScoreDefault       int `yaml:"target_score_default"`
		TargetScoreMax           int `yaml:"target_score_max"`
		FinishedRetentionMinutes int `yaml:"finished_retention_minutes"`
		WaitingIdleMinutes       int `yaml:"waiting_idle_minutes"`
	} `yaml:"game"`

	Scoring struct {
		// Pointer so an omitted key keeps the stock default instead of
		// reading as false.
		LLMEnabled   *bool `yaml:"llm_enabled"`
		LLMTimeoutMS int   `yaml:"llm_timeout_ms"`
		CacheTTLHrs  int   `yaml:"cache_ttl_hours"`
	} `yaml:"scoring"`

	Rating struct {
		KFactor int `yaml:"k_factor"`
	} `yaml:"rating"`

	RateLimit struct {
		SubmitsPerMinute      int `yaml:"submits_per_minute"`
		SocketMessagesPerMin  int `yaml:"socket_messages_per_minute"`
		MaxJoinFailuresPerMin int `yaml:"max_join_failures_per_minute"`
		SuspiciousPerMinute   int `yaml:"suspicious_per_minute"`
		FarmWinsPerMinute     int `yaml:"farm_wins_per_minute"`
		BanDurationSeconds    int `yaml:"ban_duration_seconds"`
	} `yaml:"rate_limit"`

	Auth struct {
		TokenTTLHours  int      `yaml:"token_ttl_hours"`
		AdminNicknames []string `yaml:"admin_nicknames"`
	} `yaml:"auth"`

	NATS struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"nats"`
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func loadConfig(path string) (*Config, error) {
	config := &Config{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		// Missing file means stock settings.
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return config, nil
}

func (c *Config) roomConfig() room.Config {
	cfg := room.DefaultConfig()
	if c.Game.TurnTimeoutSeconds > 0 {
		cfg.TurnTimeout = time.Duration(c.Game.TurnTimeoutSeconds) * time.Second
	}
	if c.Game.TargetScoreDefault > 0 {
		cfg.TargetScoreDefault = c.Game.TargetScoreDefault
	}
	if c.Game.TargetScoreMax > 0 {
		cfg.TargetScoreMax = c.Game.TargetScoreMax
	}
	if c.Game.FinishedRetentionMinutes > 0 {
		cfg.FinishedRetention = time.Duration(c.Game.FinishedRetentionMinutes) * time.Minute
	}
	if c.Game.WaitingIdleMinutes > 0 {
		cfg.WaitingIdleTimeout = time.Duration(c.Game.WaitingIdleMinutes) * time.Minute
	}
	return cfg
}

func (c *Config) scoringConfig() scoring.Config {
	cfg := scoring.DefaultConfig()
	if c.Scoring.LLMEnabled != nil {
		cfg.LLMEnabled = *c.Scoring.LLMEnabled
	}
	if c.Scoring.LLMTimeoutMS > 0 {
		cfg.LLMTimeout = time.Duration(c.Scoring.LLMTimeoutMS) * time.Millisecond
	}
	if c.Scoring.CacheTTLHrs > 0 {
		cfg.CacheTTL = time.Duration(c.Scoring.CacheTTLHrs) * time.Hour
	}
	return cfg
}

func (c *Config) rateLimitConfig() ratelimit.Config {
	cfg := ratelimit.DefaultConfig()
	if c.RateLimit.SubmitsPerMinute > 0 {
		cfg.SubmitsPerMinute = c.RateLimit.SubmitsPerMinute
	}
	if c.RateLimit.SocketMessagesPerMin > 0 {
		cfg.SocketMessagesPerMin = c.RateLimit.SocketMessagesPerMin
	}
	if c.RateLimit.MaxJoinFailuresPerMin > 0 {
		cfg.MaxJoinFailuresPerMin = c.RateLimit.MaxJoinFailuresPerMin
	}
	if c.RateLimit.SuspiciousPerMinute > 0 {
		cfg.SuspiciousPerMinute = c.RateLimit.SuspiciousPerMinute
	}
	if c.RateLimit.FarmWinsPerMinute > 0 {
		cfg.FarmWinsPerMinute = c.RateLimit.FarmWinsPerMinute
	}
	if c.RateLimit.BanDurationSeconds > 0 {
		cfg.BanDuration = time.Duration(c.RateLimit.BanDurationSeconds) * time.Second
	}
	return cfg
}

func (c *Config) tokenTTL() time.Duration {
	if c.Auth.TokenTTLHours > 0 {
		return time.Duration(c.Auth.TokenTTLHours) * time.Hour
	}
	return 24 * time.Hour
}
