package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the application configuration read from config.json and the environment.
type Config struct {
	ServerAddr      string          `json:"server_addr,omitempty"`
	OutputDir       string          `json:"output_dir,omitempty"`
	PipelineTimeout Duration        `json:"pipeline_timeout,omitempty"`
	LLM             LLMConfig       `json:"llm"`
	Search          SearchConfig    `json:"search"`
	Validator       ValidatorConfig `json:"validator"`
	Sessions        SessionsConfig  `json:"sessions"`
	S3              S3Config        `json:"s3"`
	Kafka           KafkaConfig     `json:"kafka"`
	Tracing         TracingConfig   `json:"tracing"`
}

// LLMConfig selects the model backing every agent.
type LLMConfig struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
	BaseURL  string `json:"base_url,omitempty"`
}

// SearchConfig selects the web search backend used by the research agents.
type SearchConfig struct {
	Provider string `json:"provider,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
	Results  int    `json:"results,omitempty"`
	// Replacement is written where an invalid URL is cut out of search output.
	Replacement string `json:"replacement,omitempty"`
}

type ValidatorConfig struct {
	Workers     int      `json:"workers,omitempty"`
	HeadTimeout Duration `json:"head_timeout,omitempty"`
	GetTimeout  Duration `json:"get_timeout,omitempty"`
	MaxAgeYears float64  `json:"max_age_years,omitempty"`
	UserAgent   string   `json:"user_agent,omitempty"`
}

// SessionsConfig picks the session store. Backend is "memory" or "redis".
type SessionsConfig struct {
	Backend       string   `json:"backend,omitempty"`
	RedisAddr     string   `json:"redis_addr,omitempty"`
	RedisPassword string   `json:"redis_password,omitempty"`
	RedisDB       int      `json:"redis_db,omitempty"`
	KeyPrefix     string   `json:"key_prefix,omitempty"`
	TTL           Duration `json:"ttl,omitempty"`
}

// S3Config enables mirroring generated documents to a bucket when Bucket is set.
type S3Config struct {
	Bucket       string `json:"bucket,omitempty"`
	Region       string `json:"region,omitempty"`
	Profile      string `json:"profile,omitempty"`
	Prefix       string `json:"prefix,omitempty"`
	UsePathStyle bool   `json:"use_path_style,omitempty"`
}

// KafkaConfig enables generation events when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `json:"brokers,omitempty"`
	Topic   string   `json:"topic,omitempty"`
}

// TracingConfig enables Langfuse tracing when all three fields are set.
type TracingConfig struct {
	LangfuseHost      string `json:"langfuse_host,omitempty"`
	LangfusePublicKey string `json:"langfuse_public_key,omitempty"`
	LangfuseSecretKey string `json:"langfuse_secret_key,omitempty"`
}

// Enabled reports whether Langfuse credentials are complete.
func (t TracingConfig) Enabled() bool {
	return t.LangfuseHost != "" && t.LangfusePublicKey != "" && t.LangfuseSecretKey != ""
}

const (
	DefaultServerAddr      = ":8080"
	DefaultOutputDir       = "output"
	DefaultPipelineTimeout = 10 * time.Minute
	DefaultLLMProvider     = "openai"
	DefaultOpenAIModel     = "gpt-4o-mini"
	DefaultAnthropicModel  = "claude-3-5-haiku-latest"
	DefaultCohereModel     = "command-r"
	DefaultSearchProvider  = "serper"
	DefaultSearchResults   = 10
	DefaultWorkers         = 5
	DefaultHeadTimeout     = 5 * time.Second
	DefaultGetTimeout      = 10 * time.Second
	DefaultMaxAgeYears     = 2
	DefaultUserAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	DefaultSessionTTL      = 24 * time.Hour
	DefaultKafkaTopic      = "presentations.generated"
)

var (
	supportedLLMProviders    = []string{"openai", "deepseek", "anthropic", "cohere", "mock"}
	supportedSearchProviders = []string{"serper", "duckduckgo"}
)

// Load reads the JSON config at path (optional when missing), then .env, then
// environment overrides, then fills defaults.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, err
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.ServerAddr = ":" + v
	}
	setFromEnv(&c.OutputDir, "OUTPUT_DIR")

	switch c.LLM.Provider {
	case "anthropic":
		setFromEnv(&c.LLM.APIKey, "ANTHROPIC_API_KEY")
	case "cohere":
		setFromEnv(&c.LLM.APIKey, "COHERE_API_KEY")
	default:
		setFromEnv(&c.LLM.APIKey, "OPENAI_API_KEY")
	}
	setFromEnv(&c.Search.APIKey, "SERPER_API_KEY")

	setFromEnv(&c.Tracing.LangfuseHost, "LANGFUSE_HOST")
	setFromEnv(&c.Tracing.LangfusePublicKey, "LANGFUSE_PUBLIC_KEY")
	setFromEnv(&c.Tracing.LangfuseSecretKey, "LANGFUSE_SECRET_KEY")

	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		c.Sessions.RedisAddr = v
		if c.Sessions.Backend == "" {
			c.Sessions.Backend = "redis"
		}
	}
	setFromEnv(&c.Sessions.RedisPassword, "REDIS_PASS")

	setFromEnv(&c.S3.Bucket, "S3_BUCKET")
	setFromEnv(&c.S3.Region, "S3_REGION")
	setFromEnv(&c.S3.Prefix, "S3_PREFIX")

	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	setFromEnv(&c.Kafka.Topic, "KAFKA_TOPIC")
}

func (c *Config) applyDefaults() {
	if c.ServerAddr == "" {
		c.ServerAddr = DefaultServerAddr
	}
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}
	if c.PipelineTimeout <= 0 {
		c.PipelineTimeout = Duration(DefaultPipelineTimeout)
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = DefaultLLMProvider
	}
	if c.LLM.Model == "" {
		switch c.LLM.Provider {
		case "openai", "mock":
			c.LLM.Model = DefaultOpenAIModel
		case "anthropic":
			c.LLM.Model = DefaultAnthropicModel
		case "cohere":
			c.LLM.Model = DefaultCohereModel
		}
	}
	if c.Search.Provider == "" {
		c.Search.Provider = DefaultSearchProvider
	}
	if c.Search.Results <= 0 {
		c.Search.Results = DefaultSearchResults
	}
	if c.Validator.Workers <= 0 {
		c.Validator.Workers = DefaultWorkers
	}
	if c.Validator.HeadTimeout <= 0 {
		c.Validator.HeadTimeout = Duration(DefaultHeadTimeout)
	}
	if c.Validator.GetTimeout <= 0 {
		c.Validator.GetTimeout = Duration(DefaultGetTimeout)
	}
	if c.Validator.MaxAgeYears <= 0 {
		c.Validator.MaxAgeYears = DefaultMaxAgeYears
	}
	if c.Validator.UserAgent == "" {
		c.Validator.UserAgent = DefaultUserAgent
	}
	if c.Sessions.Backend == "" {
		c.Sessions.Backend = "memory"
	}
	if c.Sessions.RedisAddr == "" {
		c.Sessions.RedisAddr = "localhost:6379"
	}
	if c.Sessions.KeyPrefix == "" {
		c.Sessions.KeyPrefix = "ppt:sessions:"
	}
	if c.Sessions.TTL <= 0 {
		c.Sessions.TTL = Duration(DefaultSessionTTL)
	}
	if c.S3.Prefix != "" {
		c.S3.Prefix = strings.Trim(c.S3.Prefix, "/") + "/"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = DefaultKafkaTopic
	}
}

// Validate rejects providers and backends the application cannot build.
func (c Config) Validate() error {
	if !contains(supportedLLMProviders, c.LLM.Provider) {
		return fmt.Errorf("llm provider %s not supported", c.LLM.Provider)
	}
	if c.LLM.Provider == "deepseek" && c.LLM.BaseURL == "" {
		return errors.New("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
	}
	if !contains(supportedSearchProviders, c.Search.Provider) {
		return fmt.Errorf("search provider %s not supported", c.Search.Provider)
	}
	switch c.Sessions.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("session backend %s not supported", c.Sessions.Backend)
	}
	return nil
}

func setFromEnv(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
