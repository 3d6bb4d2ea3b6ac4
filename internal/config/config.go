package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	MySQL      MySQLConfig      `mapstructure:"mysql"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Pagination PaginationConfig `mapstructure:"pagination"`
	Business   BusinessConfig   `mapstructure:"business"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Mode     string `mapstructure:"mode"` // gin 模式：debug / release / test
	WorkerID int64  `mapstructure:"worker_id"`
}

type MySQLConfig struct {
	Host                   string `mapstructure:"host"`
	Port                   int    `mapstructure:"port"`
	User                   string `mapstructure:"user"`
	Password               string `mapstructure:"password"`
	Database               string `mapstructure:"database"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	LockWaitTimeoutSeconds int    `mapstructure:"lock_wait_timeout_seconds"` // 会话级 innodb_lock_wait_timeout
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	LedgerEntry string `mapstructure:"ledger_entry"`
}

const (
	LockModeRedis = "redis"
	LockModeLocal = "local"
)

type LedgerConfig struct {
	LockMode string        `mapstructure:"lock_mode"` // redis：多实例部署；local：单实例
	LockWait time.Duration `mapstructure:"lock_wait"` // 等锁的最长时间
	LockTTL  time.Duration `mapstructure:"lock_ttl"`  // Redis 锁过期时间，必须大于一次记账的耗时
}

type PaginationConfig struct {
	DefaultPageSize int `mapstructure:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size"`
}

type BusinessConfig struct {
	MaxRetryCount    int           `mapstructure:"max_retry_count"`
	OutboxInterval   time.Duration `mapstructure:"outbox_interval"`
	OutboxBatchSize  int           `mapstructure:"outbox_batch_size"`
	RolloverInterval time.Duration `mapstructure:"rollover_interval"`
	RolloverBatch    int           `mapstructure:"rollover_batch"`
	NoRepeatWindow   time.Duration `mapstructure:"no_repeat_window"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

var GlobalConfig *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.worker_id", 1)

	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.user", "root")
	v.SetDefault("mysql.password", "")
	v.SetDefault("mysql.database", "account_ledger")
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.lock_wait_timeout_seconds", 5)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic.ledger_entry", "ledger_entry")

	v.SetDefault("ledger.lock_mode", LockModeRedis)
	v.SetDefault("ledger.lock_wait", 3*time.Second)
	v.SetDefault("ledger.lock_ttl", 30*time.Second)

	v.SetDefault("pagination.default_page_size", 20)
	v.SetDefault("pagination.max_page_size", 100)

	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.outbox_interval", time.Second)
	v.SetDefault("business.outbox_batch_size", 100)
	v.SetDefault("business.rollover_interval", 10*time.Minute)
	v.SetDefault("business.rollover_batch", 500)
	v.SetDefault("business.no_repeat_window", 2*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// Load 读取配置文件，环境变量 LEDGER_<SECTION>_<KEY> 覆盖同名配置
// path 为空时只使用默认值和环境变量
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Ledger.LockMode {
	case LockModeRedis, LockModeLocal:
	default:
		return fmt.Errorf("ledger.lock_mode 只能是 %s 或 %s: %q", LockModeRedis, LockModeLocal, c.Ledger.LockMode)
	}
	if c.Ledger.LockWait <= 0 {
		return fmt.Errorf("ledger.lock_wait 必须大于 0")
	}
	if c.Ledger.LockMode == LockModeRedis && c.Ledger.LockTTL <= c.Ledger.LockWait {
		return fmt.Errorf("ledger.lock_ttl 必须大于 ledger.lock_wait")
	}
	if c.Pagination.DefaultPageSize < 1 || c.Pagination.MaxPageSize < c.Pagination.DefaultPageSize {
		return fmt.Errorf("pagination 配置不合法: default=%d max=%d", c.Pagination.DefaultPageSize, c.Pagination.MaxPageSize)
	}
	return nil
}

// LoadConfig 加载配置文件，失败直接退出
func LoadConfig(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("%v", err)
	}
	GlobalConfig = cfg
	return cfg
}
