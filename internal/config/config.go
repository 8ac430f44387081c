package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Zitadel   ZitadelConfig
	Gateway   GatewayConfig
	LLM       LLMConfig
	RateLimit RateLimitConfig
	Sessions  SessionsConfig
	Executor  ExecutorConfig
	Cache     CacheConfig
	R2        R2Config
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	LogFile   string
	ApiDomain string
}

// IsProduction reports whether the service runs with production defaults.
func (s ServerConfig) IsProduction() bool {
	return strings.EqualFold(s.Env, "production")
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type ZitadelConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

type GatewayConfig struct {
	Enabled bool
}

// LLMConfig points at an OpenAI-compatible chat completions endpoint.
type LLMConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	MaxTokens int
}

type RateLimitConfig struct {
	CreatePerHour     int
	DiscoverPerHour   int
	AdvantagesPerHour int
	PlanPerHour       int
	ExportPerHour     int
}

type SessionsConfig struct {
	DedupWindow    time.Duration
	AllowAnonymous bool
	Retention      time.Duration
}

// Dispatch modes for detached job work.
const (
	DispatchInline = "inline"
	DispatchQueue  = "asynq"
)

type ExecutorConfig struct {
	DispatchMode string
	StaleAfter   time.Duration
	MaxAttempts  int
	TaskTimeout  time.Duration
	Concurrency  int
}

type CacheConfig struct {
	ProspectsTTL   time.Duration
	CompetitorsTTL time.Duration
	LocalTTL       time.Duration
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
	SignedURLExpiry time.Duration
}

// Configured reports whether every credential needed for R2 is present.
func (c R2Config) Configured() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

func Load() (*Config, error) {
	// A local .env never overrides variables already set in the environment.
	_ = godotenv.Load()

	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("LLM_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("ZITADEL_CLIENT_ID")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	bindings := map[string]string{
		"server.port":                   "SERVER_PORT",
		"server.env":                    "SERVER_ENV",
		"server.log_level":              "LOG_LEVEL",
		"server.log_file":               "LOG_FILE",
		"server.api_domain":             "API_DOMAIN",
		"redis.addr":                    "REDIS_ADDR",
		"redis.password":                "REDIS_PASSWORD",
		"redis.db":                      "REDIS_DB",
		"jwt.secret":                    "JWT_SECRET",
		"zitadel.domain":                "ZITADEL_DOMAIN",
		"zitadel.client_id":             "ZITADEL_CLIENT_ID",
		"zitadel.issuer":                "ZITADEL_ISSUER",
		"gateway.enabled":               "GATEWAY_ENABLED",
		"llm.api_key":                   "LLM_API_KEY",
		"llm.base_url":                  "LLM_BASE_URL",
		"llm.model":                     "LLM_MODEL",
		"llm.timeout":                   "LLM_TIMEOUT",
		"llm.max_tokens":                "LLM_MAX_TOKENS",
		"sessions.dedup_window":         "SESSIONS_DEDUP_WINDOW",
		"sessions.allow_anonymous":      "SESSIONS_ALLOW_ANONYMOUS",
		"sessions.retention":            "SESSIONS_RETENTION",
		"executor.dispatch_mode":        "EXECUTOR_DISPATCH_MODE",
		"executor.stale_after":          "EXECUTOR_STALE_AFTER",
		"executor.max_attempts":         "EXECUTOR_MAX_ATTEMPTS",
		"executor.task_timeout":         "EXECUTOR_TASK_TIMEOUT",
		"executor.concurrency":          "EXECUTOR_CONCURRENCY",
		"cache.prospects_ttl":           "CACHE_PROSPECTS_TTL",
		"cache.competitors_ttl":         "CACHE_COMPETITORS_TTL",
		"cache.local_ttl":               "CACHE_LOCAL_TTL",
		"r2.account_id":                 "R2_ACCOUNT_ID",
		"r2.access_key_id":              "R2_ACCESS_KEY_ID",
		"r2.secret_access_key":          "R2_SECRET_ACCESS_KEY",
		"r2.bucket_name":                "R2_BUCKET_NAME",
		"r2.public_url":                 "R2_PUBLIC_URL",
		"r2.signed_url_expiry":          "R2_SIGNED_URL_EXPIRY",
		"ratelimit.create_per_hour":     "RATELIMIT_CREATE_PER_HOUR",
		"ratelimit.discover_per_hour":   "RATELIMIT_DISCOVER_PER_HOUR",
		"ratelimit.advantages_per_hour": "RATELIMIT_ADVANTAGES_PER_HOUR",
		"ratelimit.plan_per_hour":       "RATELIMIT_PLAN_PER_HOUR",
		"ratelimit.export_per_hour":     "RATELIMIT_EXPORT_PER_HOUR",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}

	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("gateway.enabled", false)

	v.SetDefault("llm.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.model", "llama-3.3-70b-versatile")
	v.SetDefault("llm.timeout", 90*time.Second)
	v.SetDefault("llm.max_tokens", 4096)

	v.SetDefault("ratelimit.create_per_hour", 60)
	v.SetDefault("ratelimit.discover_per_hour", 30)
	v.SetDefault("ratelimit.advantages_per_hour", 30)
	v.SetDefault("ratelimit.plan_per_hour", 60)
	v.SetDefault("ratelimit.export_per_hour", 20)

	v.SetDefault("sessions.dedup_window", 24*time.Hour)
	v.SetDefault("sessions.allow_anonymous", false)
	v.SetDefault("sessions.retention", 7*24*time.Hour)

	v.SetDefault("executor.dispatch_mode", DispatchInline)
	v.SetDefault("executor.stale_after", 5*time.Minute)
	v.SetDefault("executor.max_attempts", 3)
	v.SetDefault("executor.task_timeout", 3*time.Minute)
	v.SetDefault("executor.concurrency", 10)

	v.SetDefault("cache.prospects_ttl", 24*time.Hour)
	v.SetDefault("cache.competitors_ttl", 7*24*time.Hour)
	v.SetDefault("cache.local_ttl", 5*time.Minute)

	v.SetDefault("r2.signed_url_expiry", time.Hour)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			Env:       v.GetString("server.env"),
			LogLevel:  v.GetString("server.log_level"),
			LogFile:   v.GetString("server.log_file"),
			ApiDomain: v.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
		},
		Zitadel: ZitadelConfig{
			Domain:   v.GetString("zitadel.domain"),
			ClientID: v.GetString("zitadel.client_id"),
			Issuer:   v.GetString("zitadel.issuer"),
		},
		Gateway: GatewayConfig{
			Enabled: v.GetBool("gateway.enabled"),
		},
		LLM: LLMConfig{
			APIKey:    v.GetString("llm.api_key"),
			BaseURL:   v.GetString("llm.base_url"),
			Model:     v.GetString("llm.model"),
			Timeout:   v.GetDuration("llm.timeout"),
			MaxTokens: v.GetInt("llm.max_tokens"),
		},
		RateLimit: RateLimitConfig{
			CreatePerHour:     v.GetInt("ratelimit.create_per_hour"),
			DiscoverPerHour:   v.GetInt("ratelimit.discover_per_hour"),
			AdvantagesPerHour: v.GetInt("ratelimit.advantages_per_hour"),
			PlanPerHour:       v.GetInt("ratelimit.plan_per_hour"),
			ExportPerHour:     v.GetInt("ratelimit.export_per_hour"),
		},
		Sessions: SessionsConfig{
			DedupWindow:    v.GetDuration("sessions.dedup_window"),
			AllowAnonymous: v.GetBool("sessions.allow_anonymous"),
			Retention:      v.GetDuration("sessions.retention"),
		},
		Executor: ExecutorConfig{
			DispatchMode: strings.ToLower(v.GetString("executor.dispatch_mode")),
			StaleAfter:   v.GetDuration("executor.stale_after"),
			MaxAttempts:  v.GetInt("executor.max_attempts"),
			TaskTimeout:  v.GetDuration("executor.task_timeout"),
			Concurrency:  v.GetInt("executor.concurrency"),
		},
		Cache: CacheConfig{
			ProspectsTTL:   v.GetDuration("cache.prospects_ttl"),
			CompetitorsTTL: v.GetDuration("cache.competitors_ttl"),
			LocalTTL:       v.GetDuration("cache.local_ttl"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
			SignedURLExpiry: v.GetDuration("r2.signed_url_expiry"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	e := c.Executor
	// A run that may still be inside its timeout must not be reclaimed.
	if e.StaleAfter > 0 && e.StaleAfter <= e.TaskTimeout {
		return fmt.Errorf("executor.stale_after (%s) must exceed executor.task_timeout (%s)", e.StaleAfter, e.TaskTimeout)
	}
	return nil
}
