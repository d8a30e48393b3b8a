// Package config loads meridian configuration from YAML, .env files and environment variables.
//
// Precedence, lowest to highest: built-in defaults, YAML file, environment. .env files are
// loaded into the environment first: $ENV_FILE if set, otherwise .env.local then .env.
//
//	cfg, err := config.Load("config.yml")
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"meridian/pkg/logger"
)

// Config is the root configuration of every meridian command.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   logger.Config   `yaml:"logging"`
	Sources   SourcesConfig   `yaml:"sources"`
	Crawler   CrawlerConfig   `yaml:"crawler"`
	Redis     RedisConfig     `yaml:"redis"`
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Cohere    CohereConfig    `yaml:"cohere"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Cluster   ClusterConfig   `yaml:"cluster"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Webhook   WebhookConfig   `yaml:"webhook"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address         string        `yaml:"address" env:"SERVER_ADDRESS"`
	Mode            string        `yaml:"mode" env:"GIN_MODE"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SourcesConfig points at an optional registry file. Empty means the embedded registry.
type SourcesConfig struct {
	Path string `yaml:"path" env:"SOURCES_PATH"`
}

// CrawlerConfig tunes crawling and article fetching.
type CrawlerConfig struct {
	MaxDepth       int           `yaml:"max_depth" env:"CRAWLER_MAX_DEPTH"`
	Delay          time.Duration `yaml:"delay" env:"CRAWLER_DELAY"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"CRAWLER_REQUEST_TIMEOUT"`
	UserAgent      string        `yaml:"user_agent" env:"CRAWLER_USER_AGENT"`
}

// RedisConfig configures the dedup set backend.
type RedisConfig struct {
	Address  string        `yaml:"address" env:"REDIS_ADDRESS"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB"`
	TLS      bool          `yaml:"tls" env:"REDIS_TLS"`
	Timeout  time.Duration `yaml:"timeout"`
	SetKey   string        `yaml:"set_key" env:"DEDUP_SET_KEY"`
}

// DatabaseConfig configures the Postgres / Supabase store.
type DatabaseConfig struct {
	ConnectionString string        `yaml:"connection_string" env:"DATABASE_URL"`
	SupabaseURL      string        `yaml:"supabase_url" env:"SUPABASE_URL"`
	SupabaseKey      string        `yaml:"supabase_key" env:"SUPABASE_SERVICE_ROLE_KEY"`
	Password         string        `yaml:"password" env:"SUPABASE_DB_PASSWORD"`
	MaxOpenConns     int           `yaml:"max_open_conns"`
	MaxIdleConns     int           `yaml:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout     time.Duration `yaml:"query_timeout"`
	EmbeddingDims    int           `yaml:"embedding_dims" env:"EMBEDDING_DIMS"`
}

// KafkaConfig configures the per-source job queue.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS"`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC"`
	GroupID string   `yaml:"group_id" env:"KAFKA_GROUP_ID"`
}

// CohereConfig configures the embedding provider.
type CohereConfig struct {
	APIKey  string        `yaml:"api_key" env:"COHERE_API_KEY"`
	Model   string        `yaml:"model" env:"COHERE_EMBED_MODEL"`
	Timeout time.Duration `yaml:"timeout"`
}

// AnthropicConfig configures analysis and text generation.
type AnthropicConfig struct {
	APIKey        string        `yaml:"api_key" env:"ANTHROPIC_API_KEY"`
	AnalysisModel string        `yaml:"analysis_model" env:"ANALYSIS_MODEL"`
	TextModel     string        `yaml:"text_model" env:"TEXT_MODEL"`
	Timeout       time.Duration `yaml:"timeout"`
}

const defaultThreshold = 0.7

// ClusterConfig holds the global similarity tunables. Threshold is a pointer so an explicit 0
// survives defaulting.
type ClusterConfig struct {
	Threshold *float64 `yaml:"threshold" env:"CLUSTER_THRESHOLD"`
	Limit     int      `yaml:"limit" env:"CLUSTER_LIMIT"`
}

// SimilarityThreshold returns the configured threshold, or 0.7 when unset.
func (c ClusterConfig) SimilarityThreshold() float64 {
	if c.Threshold == nil {
		return defaultThreshold
	}
	return *c.Threshold
}

// IngestConfig tunes per-source jobs.
type IngestConfig struct {
	Workers int `yaml:"workers" env:"INGEST_WORKERS"`
}

// ScheduleConfig controls the in-process fan-out trigger.
type ScheduleConfig struct {
	Enabled bool   `yaml:"enabled" env:"SCHEDULE_ENABLED"`
	Cron    string `yaml:"cron" env:"SCHEDULE_CRON"`
}

// WebhookConfig holds the signing keys for inbound trigger requests.
// Verification is off when both keys are empty. When PublicURL is set the token subject must be
// PublicURL followed by the request path.
type WebhookConfig struct {
	CurrentSigningKey string `yaml:"current_signing_key" env:"QSTASH_CURRENT_SIGNING_KEY"`
	NextSigningKey    string `yaml:"next_signing_key" env:"QSTASH_NEXT_SIGNING_KEY"`
	PublicURL         string `yaml:"public_url" env:"APP_BASE_URL"`
}

// Load reads path (optional), overlays the environment and applies defaults.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(reflect.ValueOf(cfg).Elem())
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetDefaults fills every unset field.
func (c *Config) SetDefaults() {
	c.Logging.SetDefaults()

	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "release"
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}

	if c.Crawler.MaxDepth == 0 {
		c.Crawler.MaxDepth = 5
	}
	if c.Crawler.Delay == 0 {
		c.Crawler.Delay = time.Second
	}
	if c.Crawler.RequestTimeout == 0 {
		c.Crawler.RequestTimeout = 10 * time.Second
	}
	if c.Crawler.UserAgent == "" {
		c.Crawler.UserAgent = "Mozilla/5.0 (compatible; MeridianBot/1.0; +https://meridian.news/bot)"
	}

	if c.Redis.Address == "" {
		c.Redis.Address = "localhost:6379"
	}
	if c.Redis.Timeout == 0 {
		c.Redis.Timeout = 5 * time.Second
	}
	if c.Redis.SetKey == "" {
		c.Redis.SetKey = "meridian:article_url_hashes"
	}

	if c.Database.QueryTimeout == 0 {
		c.Database.QueryTimeout = 15 * time.Second
	}
	if c.Database.EmbeddingDims == 0 {
		c.Database.EmbeddingDims = 1024
	}

	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "meridian.scrape-site"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "meridian-ingest"
	}

	if c.Cohere.Model == "" {
		c.Cohere.Model = "embed-multilingual-v3.0"
	}
	if c.Cohere.Timeout == 0 {
		c.Cohere.Timeout = 30 * time.Second
	}

	if c.Anthropic.AnalysisModel == "" {
		c.Anthropic.AnalysisModel = "claude-3-5-haiku-latest"
	}
	if c.Anthropic.TextModel == "" {
		c.Anthropic.TextModel = "claude-3-5-haiku-latest"
	}
	if c.Anthropic.Timeout == 0 {
		c.Anthropic.Timeout = 60 * time.Second
	}

	if c.Cluster.Threshold == nil {
		t := defaultThreshold
		c.Cluster.Threshold = &t
	}
	if c.Cluster.Limit == 0 {
		c.Cluster.Limit = 5
	}

	if c.Ingest.Workers == 0 {
		c.Ingest.Workers = 1
	}
	if c.Schedule.Cron == "" {
		c.Schedule.Cron = "*/15 * * * *"
	}
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Crawler.MaxDepth < 1 {
		errs = append(errs, errors.New("crawler.max_depth must be at least 1"))
	}
	if c.Crawler.Delay < 0 {
		errs = append(errs, errors.New("crawler.delay must not be negative"))
	}
	if t := c.Cluster.SimilarityThreshold(); t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("cluster.threshold %.2f outside [0, 1]", t))
	}
	if c.Cluster.Limit < 1 {
		errs = append(errs, errors.New("cluster.limit must be at least 1"))
	}
	if c.Ingest.Workers < 1 {
		errs = append(errs, errors.New("ingest.workers must be at least 1"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// loadEnvFiles loads $ENV_FILE, or .env.local then .env. Missing files are ignored.
func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

// applyEnv walks v and sets every field carrying an `env` tag whose variable is non-empty.
func applyEnv(v reflect.Value) {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}
		if field.Kind() == reflect.Struct {
			applyEnv(field)
			continue
		}
		name := t.Field(i).Tag.Get("env")
		if name == "" {
			continue
		}
		if val, ok := os.LookupEnv(name); ok && val != "" {
			setField(field, val)
		}
	}
}

// setField parses val into field and reports whether it did. Unparseable values leave the field
// untouched.
func setField(field reflect.Value, val string) bool {
	switch field.Kind() {
	case reflect.String:
		field.SetString(val)
	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(val)
			if err != nil {
				return false
			}
			field.SetInt(int64(d))
			return true
		}
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return false
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return false
		}
		field.SetFloat(f)
	case reflect.Bool:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "true", "yes":
			field.SetBool(true)
		default:
			field.SetBool(false)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return false
		}
		parts := strings.Split(val, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
	case reflect.Pointer:
		elem := reflect.New(field.Type().Elem())
		if !setField(elem.Elem(), val) {
			return false
		}
		field.Set(elem)
	default:
		return false
	}
	return true
}
