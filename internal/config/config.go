// Package config loads and validates the worker's configuration from the
// process environment, the way this project's other services load and
// validate a viper-backed configuration object — minus the YAML file,
// since the judging pipeline's contract is env-var-only.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the worker's fully-resolved, validated configuration.
type Config struct {
	DatabaseURL string

	RedisHost     string
	RedisPort     int
	RedisPassword string

	SubmissionWorkDir string

	SandboxBackend      string // "native" or "nsjail"
	CPUTimeLimitSeconds int
	MemoryLimitMB       int64

	MetricsAddr string

	CacheDir        string
	CacheTTLSeconds int

	LogLevel  string
	LogFormat string

	SnowflakeMachineID int
	SnowflakeStartTime time.Time
}

// Load reads configuration from the process environment and validates it.
// DATABASE_URL must be set; everything else has a default.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("REDIS_URL", "redis:6379")
	v.SetDefault("SUBMISSION_WORKDIR", "/tmp/codejudge-submissions")
	v.SetDefault("JUDGE_SANDBOX_BACKEND", "native")
	v.SetDefault("JUDGE_CPU_LIMIT_SECONDS", 2)
	v.SetDefault("JUDGE_MEMORY_LIMIT_MB", 256)
	v.SetDefault("JUDGE_METRICS_ADDR", ":8090")
	v.SetDefault("JUDGE_CACHE_DIR", "/tmp/codejudge-cache")
	v.SetDefault("JUDGE_CACHE_TTL_SECONDS", 1800)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("SNOWFLAKE_MACHINE_ID", 1)

	dbURL := v.GetString("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	redisHost, redisPort, redisPassword := parseRedisURL(v.GetString("REDIS_URL"))

	cfg := &Config{
		DatabaseURL:         dbURL,
		RedisHost:           redisHost,
		RedisPort:           redisPort,
		RedisPassword:       redisPassword,
		SubmissionWorkDir:   v.GetString("SUBMISSION_WORKDIR"),
		SandboxBackend:      v.GetString("JUDGE_SANDBOX_BACKEND"),
		CPUTimeLimitSeconds: v.GetInt("JUDGE_CPU_LIMIT_SECONDS"),
		MemoryLimitMB:       v.GetInt64("JUDGE_MEMORY_LIMIT_MB"),
		MetricsAddr:         v.GetString("JUDGE_METRICS_ADDR"),
		CacheDir:            v.GetString("JUDGE_CACHE_DIR"),
		CacheTTLSeconds:     v.GetInt("JUDGE_CACHE_TTL_SECONDS"),
		LogLevel:            v.GetString("LOG_LEVEL"),
		LogFormat:           v.GetString("LOG_FORMAT"),
		SnowflakeMachineID:  v.GetInt("SNOWFLAKE_MACHINE_ID"),
		SnowflakeStartTime:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks range/shape invariants on an already-populated Config.
func Validate(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database url must not be empty")
	}
	if cfg.RedisPort <= 0 || cfg.RedisPort > 65535 {
		return fmt.Errorf("redis port invalid: %d", cfg.RedisPort)
	}
	if cfg.SubmissionWorkDir == "" {
		return fmt.Errorf("submission work dir must not be empty")
	}
	if cfg.SandboxBackend != "native" && cfg.SandboxBackend != "nsjail" {
		return fmt.Errorf("unknown sandbox backend: %s", cfg.SandboxBackend)
	}
	if cfg.CPUTimeLimitSeconds <= 0 || cfg.CPUTimeLimitSeconds > 60 {
		return fmt.Errorf("cpu time limit invalid: %d (want 1-60s)", cfg.CPUTimeLimitSeconds)
	}
	if cfg.MemoryLimitMB <= 0 || cfg.MemoryLimitMB > 4096 {
		return fmt.Errorf("memory limit invalid: %d (want 1-4096MB)", cfg.MemoryLimitMB)
	}
	if cfg.CacheTTLSeconds <= 0 {
		return fmt.Errorf("cache ttl invalid: %d", cfg.CacheTTLSeconds)
	}
	return nil
}

// parseRedisURL extracts host, port, and password from a
// "[scheme://][[user]:password@]host[:port][/...]" string, defaulting
// port to 6379 and ignoring scheme and path per the worker's
// external-interface contract. The user name is ignored when a password
// is present; a userinfo with no ":" ("secret@host") is taken as the
// password. A bare "host:port" with no scheme is
// accepted by prefixing a placeholder scheme before delegating to
// net/url, since url.Parse requires one to populate Host.
func parseRedisURL(raw string) (host string, port int, password string) {
	port = 6379
	if raw == "" {
		return "redis", port, ""
	}

	working := raw
	if !strings.Contains(working, "://") {
		working = "redis://" + working
	}

	u, err := url.Parse(working)
	if err != nil || u.Host == "" {
		return "redis", port, ""
	}

	if u.User != nil {
		password, _ = u.User.Password()
		if password == "" {
			password = u.User.Username()
		}
	}

	host = u.Hostname()
	if host == "" {
		host = "redis"
	}
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}
	return host, port, password
}
