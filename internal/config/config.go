package config

import (
	"fmt"
	"time"

	"studyhub/pkg/circuitbreaker"
	"studyhub/pkg/config"
	"studyhub/pkg/otel"
)

const (
	ProviderGenAI = "genai"
	ProviderAgent = "agent"

	DispatchMQ    = "mq"
	DispatchLocal = "local"
)

type LLMConfig struct {
	Provider string `yaml:"provider"` // genai | agent
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	AgentURL string `yaml:"agent_url"`
	// Timeout bounds one classifier call including limiter wait.
	Timeout time.Duration `yaml:"timeout"`
	// RatePerSecond <= 0 disables limiting.
	RatePerSecond float64               `yaml:"rate_per_second"`
	Burst         int                   `yaml:"burst"`
	Breaker       circuitbreaker.Config `yaml:"breaker"`
}

type PipelineConfig struct {
	TranscriptWindow time.Duration `yaml:"transcript_window"`
	TranscriptLimit  int           `yaml:"transcript_limit"`
	DedupTTL         time.Duration `yaml:"dedup_ttl"`
	MaxMessageLength int           `yaml:"max_message_length"`
	// RegradeInterval <= 0 disables the pending-grading sweeper.
	RegradeInterval  time.Duration `yaml:"regrade_interval"`
	RegradeAfter     time.Duration `yaml:"regrade_after"`
	RegradeBatch     int           `yaml:"regrade_batch"`
}

type DispatchConfig struct {
	Mode     string `yaml:"mode"` // mq | local
	Workers  int    `yaml:"workers"`
	Queue    int    `yaml:"queue"`
	Prefetch int    `yaml:"prefetch"`
	Outbox   struct {
		Interval   time.Duration `yaml:"interval"`
		BatchSize  int           `yaml:"batch_size"`
		MaxRetries int           `yaml:"max_retries"`
		// Lease hides a claimed batch from other dispatchers.
		Lease      time.Duration `yaml:"lease"`
	} `yaml:"outbox"`
}

type Config struct {
	Env         string              `yaml:"-"`
	Development bool                `yaml:"development"`
	DB          config.DBConfig     `yaml:"db"`
	MQ          config.MQConfig     `yaml:"mq"`
	Redis       config.RedisConfig  `yaml:"redis"`
	JWT         config.JWTConfig    `yaml:"jwt"`
	Server      config.ServerConfig `yaml:"server"`
	LLM         LLMConfig           `yaml:"llm"`
	Pipeline    PipelineConfig      `yaml:"pipeline"`
	Dispatch    DispatchConfig      `yaml:"dispatch"`
	OTel        otel.Config         `yaml:"otel"`
}

// Load reads CONFIG_DIR (default "config") for CONFIG_ENV, applies process
// environment overrides, then fills defaults and validates.
func Load() (*Config, error) {
	env := config.GetConfigEnv()
	return LoadFrom(env, config.GetEnv("CONFIG_DIR", "config"))
}

func LoadFrom(env, dir string) (*Config, error) {
	cfg := &Config{Env: env}
	if err := config.LoadInto(env, dir, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 环境变量覆盖（优先级最高）
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	config.EnvString("LLM_PROVIDER", &cfg.LLM.Provider)
	config.EnvString("GEMINI_API_KEY", &cfg.LLM.APIKey)
	config.EnvString("LLM_MODEL", &cfg.LLM.Model)
	config.EnvString("AGENT_SERVICE_URL", &cfg.LLM.AgentURL)
	config.EnvDuration("LLM_TIMEOUT", &cfg.LLM.Timeout)
	config.EnvString("DISPATCH_MODE", &cfg.Dispatch.Mode)
	config.EnvString("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.OTel.Endpoint)

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderGenAI
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gemini-2.5-flash"
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 15 * time.Second
	}
	if c.LLM.Burst <= 0 {
		c.LLM.Burst = 1
	}

	if c.Pipeline.TranscriptWindow <= 0 {
		c.Pipeline.TranscriptWindow = 7 * 24 * time.Hour
	}
	if c.Pipeline.TranscriptLimit <= 0 {
		c.Pipeline.TranscriptLimit = 20
	}
	if c.Pipeline.DedupTTL <= 0 {
		c.Pipeline.DedupTTL = time.Hour
	}
	if c.Pipeline.MaxMessageLength <= 0 {
		c.Pipeline.MaxMessageLength = 4000
	}
	if c.Pipeline.RegradeAfter <= 0 {
		c.Pipeline.RegradeAfter = 10 * time.Minute
	}
	if c.Pipeline.RegradeBatch <= 0 {
		c.Pipeline.RegradeBatch = 50
	}

	if c.Dispatch.Mode == "" {
		c.Dispatch.Mode = DispatchMQ
	}
	if c.Dispatch.Workers <= 0 {
		c.Dispatch.Workers = 4
	}
	if c.Dispatch.Queue <= 0 {
		c.Dispatch.Queue = 256
	}
	if c.Dispatch.Prefetch <= 0 {
		c.Dispatch.Prefetch = 8
	}

	if c.OTel.ServiceName == "" {
		c.OTel.ServiceName = "studyhub"
	}
}

func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderGenAI:
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm.api_key is required for provider %q", ProviderGenAI)
		}
	case ProviderAgent:
		if c.LLM.AgentURL == "" {
			return fmt.Errorf("llm.agent_url is required for provider %q", ProviderAgent)
		}
	default:
		return fmt.Errorf("unknown llm.provider %q", c.LLM.Provider)
	}

	switch c.Dispatch.Mode {
	case DispatchMQ, DispatchLocal:
	default:
		return fmt.Errorf("unknown dispatch.mode %q", c.Dispatch.Mode)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	return nil
}
