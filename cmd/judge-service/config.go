package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"smartsolution/internal/common/cache"
	"smartsolution/internal/common/db"
	"smartsolution/internal/common/mq"
	"smartsolution/internal/common/storage"
	"smartsolution/internal/judge/archive"
	"smartsolution/internal/judge/sandbox/engine"
	"smartsolution/internal/judge/scorer"
	"smartsolution/internal/judge/scorer/firsttrack"
	"smartsolution/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8085"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultTaskTopic       = "judge.tasks"
	defaultResultTopic     = "judge.results"
	defaultConsumerGroup   = "judge-service"
	defaultWorkRoot        = "/tmp/judge-work"
	defaultMaxDownload     = 64 << 20

	backendProcess = "process"
	backendDocker  = "docker"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// KafkaConfig holds Kafka settings.
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	ClientID      string        `yaml:"clientID"`
	MinBytes      int           `yaml:"minBytes"`
	MaxBytes      int           `yaml:"maxBytes"`
	MaxWait       time.Duration `yaml:"maxWait"`
	BatchSize     int           `yaml:"batchSize"`
	BatchTimeout  time.Duration `yaml:"batchTimeout"`
	DialTimeout   time.Duration `yaml:"dialTimeout"`
	TaskTopic     string        `yaml:"taskTopic"`
	ResultTopic   string        `yaml:"resultTopic"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	PrefetchCount int           `yaml:"prefetchCount"`
	Concurrency   int           `yaml:"concurrency"`
}

// JudgeConfig holds orchestration settings.
type JudgeConfig struct {
	WorkRoot      string        `yaml:"workRoot"`
	Workers       int           `yaml:"workers"`
	Timeout       time.Duration `yaml:"timeout"`
	ResultTTL     time.Duration `yaml:"resultTTL"`
	StoreTimeout  time.Duration `yaml:"storeTimeout"`
	NotifyTimeout time.Duration `yaml:"notifyTimeout"`
	TrackCacheTTL time.Duration `yaml:"trackCacheTTL"`
}

// ArchiveConfig holds archive lookup and extraction settings.
type ArchiveConfig struct {
	archive.Config `yaml:",inline"`
	// Roots are the directories relative archive paths are resolved against.
	Roots []string `yaml:"roots"`
	// MaxDownloadBytes caps archives fetched from object storage.
	MaxDownloadBytes int64 `yaml:"maxDownloadBytes"`
}

// SandboxConfig selects and configures the isolation backend.
type SandboxConfig struct {
	// Backend is "process" or "docker".
	Backend     string               `yaml:"backend"`
	OutputLimit int64                `yaml:"outputLimit"`
	Process     engine.ProcessConfig `yaml:"process"`
	Docker      engine.DockerConfig  `yaml:"docker"`
}

// TrackConfig binds a scorer key to a first-track strategy.
type TrackConfig struct {
	// Key is "<competition>/<track>".
	Key               string `yaml:"key"`
	firsttrack.Config `yaml:",inline"`
}

// AppConfig holds judge-service config.
type AppConfig struct {
	Server   ServerConfig        `yaml:"server"`
	Logger   logger.Config       `yaml:"logger"`
	Kafka    KafkaConfig         `yaml:"kafka"`
	Database db.Config           `yaml:"database"`
	Redis    cache.RedisConfig   `yaml:"redis"`
	MinIO    storage.MinIOConfig `yaml:"minio"`
	Judge    JudgeConfig         `yaml:"judge"`
	Archive  ArchiveConfig       `yaml:"archive"`
	Sandbox  SandboxConfig       `yaml:"sandbox"`
	Tracks   []TrackConfig       `yaml:"tracks"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *AppConfig) applyDefaults() error {
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "mysql"
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required")
	}
	if len(cfg.Tracks) == 0 {
		return fmt.Errorf("at least one track is required")
	}
	seen := make(map[string]bool, len(cfg.Tracks))
	for i, track := range cfg.Tracks {
		key := scorer.Key("", track.Key)
		if key == "" {
			return fmt.Errorf("tracks[%d]: key is required", i)
		}
		if seen[key] {
			return fmt.Errorf("tracks[%d]: duplicate key %q", i, track.Key)
		}
		seen[key] = true
		if track.ReferencePath == "" {
			return fmt.Errorf("tracks[%d]: referencePath is required", i)
		}
	}

	if cfg.Redis.Addr != "" {
		applyRedisDefaults(&cfg.Redis)
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Kafka.TaskTopic == "" {
		cfg.Kafka.TaskTopic = defaultTaskTopic
	}
	if cfg.Kafka.ResultTopic == "" {
		cfg.Kafka.ResultTopic = defaultResultTopic
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = defaultConsumerGroup
	}
	if cfg.Judge.WorkRoot == "" {
		cfg.Judge.WorkRoot = defaultWorkRoot
	}
	if cfg.Judge.Workers <= 0 {
		cfg.Judge.Workers = 1
	}
	if cfg.Kafka.Concurrency <= 0 {
		cfg.Kafka.Concurrency = cfg.Judge.Workers
	}
	if cfg.Archive.MaxDownloadBytes <= 0 {
		cfg.Archive.MaxDownloadBytes = defaultMaxDownload
	}
	cfg.Sandbox.Backend = strings.ToLower(strings.TrimSpace(cfg.Sandbox.Backend))
	switch cfg.Sandbox.Backend {
	case "":
		cfg.Sandbox.Backend = backendDocker
	case backendProcess, backendDocker:
	default:
		return fmt.Errorf("unknown sandbox backend %q", cfg.Sandbox.Backend)
	}
	return nil
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
}

func (k KafkaConfig) toMQConfig() mq.KafkaConfig {
	return mq.KafkaConfig{
		Brokers:      k.Brokers,
		ClientID:     k.ClientID,
		MinBytes:     k.MinBytes,
		MaxBytes:     k.MaxBytes,
		MaxWait:      k.MaxWait,
		BatchSize:    k.BatchSize,
		BatchTimeout: k.BatchTimeout,
		DialTimeout:  k.DialTimeout,
	}
}
