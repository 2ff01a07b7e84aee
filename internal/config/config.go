// Package config loads deepscout service configuration from a YAML file with
// environment-variable overrides (DEEPSCOUT_ prefix). All knobs have working
// defaults so the service boots with nothing but API keys set.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Service  ServiceConfig  `mapstructure:"service"`
	Temporal TemporalConfig `mapstructure:"temporal"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Search   SearchConfig   `mapstructure:"search"`
	Research ResearchConfig `mapstructure:"research"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type ServiceConfig struct {
	// Port serves the run API, health, metrics and the websocket stream.
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type LLMConfig struct {
	// BaseURL is any OpenAI-compatible chat-completions endpoint.
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	// FastModel handles clarification and per-source summaries; StrongModel
	// handles planning, evaluation, synthesis and the final report.
	FastModel   string        `mapstructure:"fast_model"`
	StrongModel string        `mapstructure:"strong_model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

type SearchConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	MaxResults int           `mapstructure:"max_results"`
	Timeout    time.Duration `mapstructure:"timeout"`
	// RatePerSecond throttles outbound search calls across all runs.
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	RateBurst     int     `mapstructure:"rate_burst"`
}

type ResearchConfig struct {
	DefaultMaxIterations int `mapstructure:"default_max_iterations"`
	// SummaryConcurrency caps concurrent per-source summarization tasks.
	SummaryConcurrency   int           `mapstructure:"summary_concurrency"`
	ClarificationTimeout time.Duration `mapstructure:"clarification_timeout"`
	MinQuestions         int           `mapstructure:"min_questions"`
	MaxQuestions         int           `mapstructure:"max_questions"`
	// SourceCharLimit truncates full text before summarization.
	SourceCharLimit int `mapstructure:"source_char_limit"`
}

type PostgresConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	DB      int    `mapstructure:"db"`
}

// Load reads configuration from path (or DEEPSCOUT_CONFIG_PATH, or
// config/deepscout.yaml) and applies env overrides. A missing file is not an
// error; defaults plus env carry the service.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DEEPSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv("DEEPSCOUT_CONFIG_PATH")
	}
	if path == "" {
		path = "config/deepscout.yaml"
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(underlying(err)) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func underlying(err error) error {
	if pe, ok := err.(*os.PathError); ok {
		return pe.Err
	}
	return err
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.port", 8090)
	v.SetDefault("service.log_level", "info")

	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "deepscout-research")

	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.fast_model", "gpt-4o-mini")
	v.SetDefault("llm.strong_model", "gpt-4o")
	v.SetDefault("llm.timeout", "90s")
	v.SetDefault("llm.max_retries", 2)

	v.SetDefault("search.base_url", "https://api.tavily.com")
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.timeout", "30s")
	v.SetDefault("search.rate_per_second", 2.0)
	v.SetDefault("search.rate_burst", 4)

	v.SetDefault("research.default_max_iterations", 3)
	v.SetDefault("research.summary_concurrency", 5)
	v.SetDefault("research.clarification_timeout", "10m")
	v.SetDefault("research.min_questions", 3)
	v.SetDefault("research.max_questions", 5)
	v.SetDefault("research.source_char_limit", 2000)

	v.SetDefault("postgres.enabled", false)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "deepscout")
	v.SetDefault("postgres.database", "deepscout")
	v.SetDefault("postgres.ssl_mode", "disable")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
}

// Validate rejects configurations the workflow cannot run with.
func (c *Config) Validate() error {
	if c.Research.DefaultMaxIterations < 1 {
		return fmt.Errorf("research.default_max_iterations must be >= 1, got %d", c.Research.DefaultMaxIterations)
	}
	if c.Research.SummaryConcurrency < 1 {
		return fmt.Errorf("research.summary_concurrency must be >= 1, got %d", c.Research.SummaryConcurrency)
	}
	if c.Research.MinQuestions < 1 || c.Research.MaxQuestions < c.Research.MinQuestions {
		return fmt.Errorf("invalid question bounds [%d, %d]", c.Research.MinQuestions, c.Research.MaxQuestions)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive")
	}
	if c.Search.Timeout <= 0 {
		return fmt.Errorf("search.timeout must be positive")
	}
	return nil
}
