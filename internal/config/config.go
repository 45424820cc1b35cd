package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Worker modes.
const (
	ModeAsynq  = "asynq"  // jobs go through Redis to cmd/worker
	ModeInline = "inline" // jobs run in the bot process
)

// Session backends.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Redis    RedisConfig    `yaml:"redis"`
	Session  SessionConfig  `yaml:"session"`
	Storage  StorageConfig  `yaml:"storage"`
	Download DownloadConfig `yaml:"download"`
	Worker   WorkerConfig   `yaml:"worker"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Health   HealthConfig   `yaml:"health"`
}

// TelegramConfig holds bot credentials and fixed chat ids.
type TelegramConfig struct {
	BotToken  string `yaml:"bot_token" envconfig:"BOT_TOKEN"`
	ChannelID int64  `yaml:"channel_id" envconfig:"CHANNEL_ID"`
	AdminID   int64  `yaml:"admin_id" envconfig:"ADMIN_ID"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
}

type SessionConfig struct {
	Backend string        `yaml:"backend" envconfig:"SESSION_BACKEND"`
	TTL     time.Duration `yaml:"ttl" envconfig:"SESSION_TTL"`
}

type StorageConfig struct {
	TempDir string `yaml:"temp_dir" envconfig:"DATA_DIR"`
	DBPath  string `yaml:"db_path" envconfig:"DB_PATH"`
}

// DownloadConfig holds yt-dlp options and menu limits.
type DownloadConfig struct {
	SocketTimeout time.Duration `yaml:"socket_timeout" envconfig:"YTDLP_SOCKET_TIMEOUT"`
	RateLimit     string        `yaml:"rate_limit" envconfig:"YTDLP_RATE_LIMIT"`
	MergeFormat   string        `yaml:"merge_format" envconfig:"MERGE_FORMAT"`
	MetaTimeout   time.Duration `yaml:"meta_timeout" envconfig:"META_TIMEOUT"`
	MaxFormats    int           `yaml:"max_formats" envconfig:"MAX_FORMATS"`
	FreeMaxHeight int           `yaml:"free_max_height" envconfig:"FREE_MAX_HEIGHT"`
}

type WorkerConfig struct {
	Mode        string        `yaml:"mode" envconfig:"WORKER_MODE"`
	Concurrency int           `yaml:"concurrency" envconfig:"WORKER_CONCURRENCY"`
	QueueSize   int           `yaml:"queue_size" envconfig:"WORKER_QUEUE_SIZE"`
	JobTimeout  time.Duration `yaml:"job_timeout" envconfig:"WORKER_JOB_TIMEOUT"`
}

type DeliveryConfig struct {
	DirectLimit int64 `yaml:"direct_limit" envconfig:"DIRECT_LIMIT_BYTES"`
}

type HealthConfig struct {
	Addr string `yaml:"addr" envconfig:"HEALTH_ADDR"`
}

// Default returns the built-in values. The YAML file and the environment are
// applied on top of these.
func Default() *Config {
	return &Config{
		Redis:   RedisConfig{Addr: "localhost:6379"},
		Session: SessionConfig{Backend: BackendRedis, TTL: 24 * time.Hour},
		Storage: StorageConfig{DBPath: "users.db"},
		Download: DownloadConfig{
			SocketTimeout: 1200 * time.Second,
			RateLimit:     "10M",
			MergeFormat:   "mp4",
			MetaTimeout:   90 * time.Second,
			MaxFormats:    5,
			FreeMaxHeight: 480,
		},
		Worker: WorkerConfig{
			Mode:        ModeAsynq,
			Concurrency: 2,
			QueueSize:   32,
			JobTimeout:  2 * time.Hour,
		},
		Delivery: DeliveryConfig{DirectLimit: 50 * 1024 * 1024},
		Health:   HealthConfig{Addr: ":8080"},
	}
}

// Load reads .env (if present), then the YAML file at configPath (if any),
// then environment variables, which override file values.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	if c.Telegram.ChannelID == 0 {
		return fmt.Errorf("CHANNEL_ID is required")
	}
	switch c.Worker.Mode {
	case ModeAsynq, ModeInline:
	default:
		return fmt.Errorf("WORKER_MODE must be %q or %q, got %q", ModeAsynq, ModeInline, c.Worker.Mode)
	}
	switch c.Session.Backend {
	case BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("SESSION_BACKEND must be %q or %q, got %q", BackendRedis, BackendMemory, c.Session.Backend)
	}
	if c.Worker.Mode == ModeAsynq && c.Session.Backend != BackendRedis {
		return fmt.Errorf("WORKER_MODE=asynq needs SESSION_BACKEND=redis so the worker can release sessions")
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	if c.Download.MaxFormats < 1 || c.Download.MaxFormats > 5 {
		return fmt.Errorf("MAX_FORMATS must be between 1 and 5")
	}
	return nil
}
