// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Conf 是从配置文件加载的全局配置，仅在 main 中读取并向下传递各子配置。
var Conf Config

// Config 与 configs/config.yaml 的结构一一对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Assistant     AssistantConfig     `mapstructure:"assistant"`
	Mail          MailConfig          `mapstructure:"mail"`
	Chat          ChatConfig          `mapstructure:"chat"`
	Storage       StorageConfig       `mapstructure:"storage"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Archive       ArchiveConfig       `mapstructure:"archive"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储服务自身会话令牌的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// AssistantConfig 是助手后端的地址和访问密钥。
// APIKey 是应用级的静态密钥，不是用户凭证。
type AssistantConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MailConfig 选择发信通道。
// Provider: "gmail" 直接调用邮件服务商 API；"backend" 走助手后端的 /send-email。
type MailConfig struct {
	Provider    string        `mapstructure:"provider"`
	GmailAPIURL string        `mapstructure:"gmail_api_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ChatConfig 控制对话区的行为。
type ChatConfig struct {
	RevealInterval time.Duration `mapstructure:"reveal_interval"`
	ProcessingText string        `mapstructure:"processing_text"`
	Location       string        `mapstructure:"location"`
	// IdleTimeout 之内没有访问的对话从内存中回收，0 表示不回收。
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// StorageConfig 控制持久化键空间。
type StorageConfig struct {
	Namespace  string        `mapstructure:"namespace"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// RateLimitConfig 是每个客户端的限流参数。
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	// IdleTimeout 之内没有请求的客户端丢弃其令牌桶，检查间隔沿用 chat.sweep_interval。
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// ArchiveConfig 控制对话归档流水线（Kafka -> MinIO + Elasticsearch）。
type ArchiveConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "release")
	// 没有默认值的键也要注册，否则 AutomaticEnv 在 Unmarshal 时看不到它们
	v.SetDefault("database.mysql.dsn", "")
	v.SetDefault("database.redis.addr", "localhost:6379")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("assistant.base_url", "")
	v.SetDefault("assistant.api_key", "")
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("elasticsearch.addresses", "")
	v.SetDefault("minio.endpoint", "")
	v.SetDefault("jwt.access_token_expire_hours", 24)
	v.SetDefault("jwt.refresh_token_expire_days", 7)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("assistant.timeout", 60*time.Second)
	v.SetDefault("mail.provider", "gmail")
	v.SetDefault("mail.gmail_api_url", "https://gmail.googleapis.com/gmail/v1")
	v.SetDefault("mail.timeout", 30*time.Second)
	v.SetDefault("chat.reveal_interval", 10*time.Millisecond)
	v.SetDefault("chat.processing_text", "Processing...")
	v.SetDefault("chat.location", "Local")
	v.SetDefault("chat.idle_timeout", 30*time.Minute)
	v.SetDefault("chat.sweep_interval", time.Minute)
	v.SetDefault("storage.namespace", "root")
	v.SetDefault("storage.session_ttl", 24*time.Hour)
	v.SetDefault("rate_limit.requests_per_second", 2.0)
	v.SetDefault("rate_limit.burst", 5)
	v.SetDefault("rate_limit.idle_timeout", 10*time.Minute)
	v.SetDefault("archive.enabled", false)
	v.SetDefault("kafka.topic", "chat-transcripts")
	v.SetDefault("kafka.group_id", "next-chatbot-archiver")
	v.SetDefault("elasticsearch.index_name", "chat_transcripts")
	v.SetDefault("minio.bucket_name", "chat-transcripts")
}

// Load 读取 .env.local / .env 和 YAML 配置文件，环境变量 CHATBOT_<SECTION>_<KEY> 优先。
func Load(configPath string) (Config, error) {
	// 前端时代的 .env.local 习惯保留下来；文件不存在不算错误
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("CHATBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			// 配置文件缺失时只依赖默认值和环境变量
			if !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Init 加载配置到全局 Conf，失败直接 panic。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}

// Validate 检查启动所必需的配置项。
func (c Config) Validate() error {
	if c.Assistant.BaseURL == "" {
		return errors.New("assistant.base_url 不能为空")
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret 不能为空")
	}
	switch c.Mail.Provider {
	case "gmail", "backend":
	default:
		return fmt.Errorf("未知的 mail.provider: %q", c.Mail.Provider)
	}
	return nil
}

// TimeLocation 返回历史分组使用的时区，无法解析时回退到本地时区。
func (c ChatConfig) TimeLocation() *time.Location {
	if c.Location == "" || c.Location == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return time.Local
	}
	return loc
}
