package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConns        int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int // 0 使用 go-redis 默认值
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// StreamConfig Redis Streams 消费者组配置
type StreamConfig struct {
	Stream        string
	ConsumerGroup string
	ConsumerName  string
	BatchSize     int64
}

// DefaultDatabaseConfig 本地开发用的数据库默认值
func DefaultDatabaseConfig(database string) DatabaseConfig {
	return DatabaseConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Password:        "postgres",
		Database:        database,
		SSLMode:         "disable",
		MaxConns:        20,
		MaxIdle:         5,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// DefaultRedisConfig 本地开发用的 Redis 默认值
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{Addr: "localhost:6379"}
}

// DefaultMQTTConfig 本地开发用的 MQTT 默认值
func DefaultMQTTConfig(clientID string) MQTTConfig {
	return MQTTConfig{
		Broker:   "tcp://localhost:1883",
		ClientID: clientID,
		QoS:      1,
	}
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// LoadFromEnv 从环境变量加载配置，未设置或无法解析的变量保留原值
func (c *DatabaseConfig) LoadFromEnv(prefix string) {
	c.Host = Env(prefix+"_HOST", c.Host)
	c.Port = EnvInt(prefix+"_PORT", c.Port)
	c.User = Env(prefix+"_USER", c.User)
	c.Password = Env(prefix+"_PASSWORD", c.Password)
	c.Database = Env(prefix+"_NAME", c.Database)
	c.SSLMode = Env(prefix+"_SSLMODE", c.SSLMode)
	c.MaxConns = EnvInt(prefix+"_MAX_CONNS", c.MaxConns)
	c.MaxIdle = EnvInt(prefix+"_MAX_IDLE", c.MaxIdle)
	c.ConnMaxLifetime = EnvDuration(prefix+"_CONN_MAX_LIFETIME", c.ConnMaxLifetime)
}

// Validate 检查连接参数
func (c *DatabaseConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("database port %d out of range", c.Port)
	}
	if c.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.MaxIdle > c.MaxConns && c.MaxConns > 0 {
		return fmt.Errorf("database max idle (%d) exceeds max conns (%d)", c.MaxIdle, c.MaxConns)
	}
	return nil
}

// LoadFromEnv 从环境变量加载Redis配置
func (c *RedisConfig) LoadFromEnv(prefix string) {
	c.Addr = Env(prefix+"_ADDR", c.Addr)
	c.Password = Env(prefix+"_PASSWORD", c.Password)
	c.DB = EnvInt(prefix+"_DB", c.DB)
	c.PoolSize = EnvInt(prefix+"_POOL_SIZE", c.PoolSize)
}

// LoadFromEnv 从环境变量加载MQTT配置，QoS 只接受 0-2
func (c *MQTTConfig) LoadFromEnv(prefix string) {
	c.Broker = Env(prefix+"_BROKER", c.Broker)
	c.ClientID = Env(prefix+"_CLIENT_ID", c.ClientID)
	c.Username = Env(prefix+"_USERNAME", c.Username)
	c.Password = Env(prefix+"_PASSWORD", c.Password)
	if qos := EnvInt(prefix+"_QOS", -1); qos >= 0 && qos <= 2 {
		c.QoS = byte(qos)
	}
}

// Validate 检查 broker 与 client id
func (c *MQTTConfig) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("mqtt broker is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("mqtt client id is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("mqtt qos %d out of range", c.QoS)
	}
	return nil
}

// LoadFromEnv 读取 <prefix>_STREAM、_CONSUMER_GROUP、_CONSUMER_NAME、_BATCH_SIZE
func (c *StreamConfig) LoadFromEnv(prefix string) {
	c.Stream = Env(prefix+"_STREAM", c.Stream)
	c.ConsumerGroup = Env(prefix+"_CONSUMER_GROUP", c.ConsumerGroup)
	c.ConsumerName = Env(prefix+"_CONSUMER_NAME", c.ConsumerName)
	c.BatchSize = int64(EnvInt(prefix+"_BATCH_SIZE", int(c.BatchSize)))
}

// Validate 检查消费者组参数
func (c *StreamConfig) Validate() error {
	if c.Stream == "" || c.ConsumerGroup == "" || c.ConsumerName == "" {
		return fmt.Errorf("stream, consumer group and consumer name are required")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("stream batch size must be positive, got %d", c.BatchSize)
	}
	return nil
}

// Env 读取字符串环境变量
func Env(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// EnvInt 读取整数环境变量，无法解析时返回默认值
func EnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// EnvBool 读取布尔环境变量（true/false/1/0）
func EnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// EnvDuration 读取时长环境变量，接受 "90s" 这类写法，纯数字按秒
func EnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return defaultValue
}
