package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Snowflake SnowflakeConfig `mapstructure:"snowflake"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig selects the persistence backend. Driver is one of
// "postgres", "mysql" or "memory".
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host                  string `mapstructure:"host"`
	Port                  string `mapstructure:"port"`
	Password              string `mapstructure:"password"`
	DB                    int    `mapstructure:"db"`
	PoolSize              int    `mapstructure:"pool_size"`
	MinIdleConns          int    `mapstructure:"min_idle_conns"`
	MemberCacheTTLSeconds int    `mapstructure:"member_cache_ttl_seconds"`
}

type JWTConfig struct {
	Secret       string `mapstructure:"secret"`
	ExpireHours  int    `mapstructure:"expire_hours"`
	RefreshHours int    `mapstructure:"refresh_hours"`
}

type RateLimitConfig struct {
	RegisterPerMinute int  `mapstructure:"register_per_minute"`
	LoginPerMinute    int  `mapstructure:"login_per_minute"`
	APIPerMinute      int  `mapstructure:"api_per_minute"`
	FailOpen          bool `mapstructure:"fail_open"`
}

type KafkaConfig struct {
	Enabled        bool           `mapstructure:"enabled"`
	Brokers        []string       `mapstructure:"brokers"`
	Topic          string         `mapstructure:"topic"`
	MaxRetries     int            `mapstructure:"max_retries"`
	RetryBackoffMs int            `mapstructure:"retry_backoff_ms"`
	Consumer       ConsumerConfig `mapstructure:"consumer"`
}

// ConsumerConfig controls the activity feed consumer. Messages that still
// fail after MaxRetries are forwarded to DLQTopic.
type ConsumerConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Group          string `mapstructure:"group"`
	DLQTopic       string `mapstructure:"dlq_topic"`
	MaxRetries     int    `mapstructure:"max_retries"`
	RetryBackoffMs int    `mapstructure:"retry_backoff_ms"`
	FeedSize       int64  `mapstructure:"feed_size"`
}

// StorageConfig configures the blob store that holds uploaded bytes.
type StorageConfig struct {
	Root         string `mapstructure:"root"`
	BaseURL      string `mapstructure:"base_url"`
	MaxFileBytes int64  `mapstructure:"max_file_bytes"`
}

type SnowflakeConfig struct {
	WorkerID int64 `mapstructure:"worker_id"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)

	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.member_cache_ttl_seconds", 600)

	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("jwt.refresh_hours", 168)

	v.SetDefault("ratelimit.register_per_minute", 5)
	v.SetDefault("ratelimit.login_per_minute", 10)
	v.SetDefault("ratelimit.api_per_minute", 300)
	v.SetDefault("ratelimit.fail_open", true)

	v.SetDefault("kafka.topic", "tavern-activity")
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff_ms", 100)
	v.SetDefault("kafka.consumer.group", "tavern-activity-feed")
	v.SetDefault("kafka.consumer.dlq_topic", "tavern-activity-dlq")
	v.SetDefault("kafka.consumer.max_retries", 3)
	v.SetDefault("kafka.consumer.retry_backoff_ms", 200)
	v.SetDefault("kafka.consumer.feed_size", 50)

	v.SetDefault("storage.root", "./data/blobs")
	v.SetDefault("storage.base_url", "http://localhost:8080/files")
	v.SetDefault("storage.max_file_bytes", 10<<20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// LoadConfig reads the file at path and overlays TAVERN_* environment
// variables, e.g. TAVERN_DATABASE_HOST overrides database.host.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("tavern")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects configurations the process cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "mysql", "memory":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	if c.Kafka.Consumer.Enabled && !c.Kafka.Enabled {
		return fmt.Errorf("kafka.consumer requires kafka.enabled")
	}
	if c.Kafka.Consumer.Enabled && c.Redis.Host == "" {
		return fmt.Errorf("kafka.consumer requires redis for the activity feed")
	}
	if c.Storage.MaxFileBytes <= 0 {
		return fmt.Errorf("storage.max_file_bytes must be positive")
	}
	return nil
}
