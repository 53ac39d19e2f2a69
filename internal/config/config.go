// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Speech        SpeechConfig        `mapstructure:"speech"`
	Tutor         TutorConfig         `mapstructure:"tutor"`
}

// ServerConfig 存储 HTTP 入口相关的配置。
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
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储队列相关的配置，每个命名队列对应一个 topic。
type KafkaConfig struct {
	Brokers      string        `mapstructure:"brokers"`
	GroupPrefix  string        `mapstructure:"group_prefix"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// WorkerConfig 决定当前进程消费哪些队列，空表示全部。
type WorkerConfig struct {
	Queues []string `mapstructure:"queues"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	BucketName      string        `mapstructure:"bucket_name"`
	URLExpiry       time.Duration `mapstructure:"url_expiry"`
}

// LLMConfig 存储生成模型相关的配置。
type LLMConfig struct {
	Provider   string              `mapstructure:"provider"` // "openai" 或 "gemini"
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Timeout    time.Duration       `mapstructure:"timeout"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
	Retry      RetryConfig         `mapstructure:"retry"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// RetryConfig 配置模型调用的指数退避。
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
}

// SpeechConfig 配置语音识别与合成后端。
type SpeechConfig struct {
	STTProvider  string `mapstructure:"stt_provider"` // "stub" 或 "google"
	TTSProvider  string `mapstructure:"tts_provider"` // "stub" 或 "polly"
	LanguageCode string `mapstructure:"language_code"`
	VoiceID      string `mapstructure:"voice_id"`
	PollyRegion  string `mapstructure:"polly_region"`
}

// TutorConfig 配置辅导行为。
type TutorConfig struct {
	BotName        string `mapstructure:"bot_name"`
	HistoryLimit   int    `mapstructure:"history_limit"`
	NotifyFailures bool   `mapstructure:"notify_failures"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.group_prefix", "tutor-pipeline")
	v.SetDefault("kafka.max_attempts", 3)
	v.SetDefault("kafka.retry_backoff", 2*time.Second)
	v.SetDefault("elasticsearch.index_name", "chat_messages")
	v.SetDefault("minio.bucket_name", "tutor-audio")
	v.SetDefault("minio.url_expiry", 24*time.Hour)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.retry.max_attempts", 3)
	v.SetDefault("llm.retry.initial_interval", time.Second)
	v.SetDefault("llm.retry.max_interval", 10*time.Second)
	v.SetDefault("llm.retry.multiplier", 2.0)
	v.SetDefault("speech.stt_provider", "stub")
	v.SetDefault("speech.tts_provider", "stub")
	v.SetDefault("speech.language_code", "en-US")
	v.SetDefault("speech.voice_id", "Joanna")
	v.SetDefault("tutor.bot_name", "Bolchaal")
	v.SetDefault("tutor.history_limit", 20)
	v.SetDefault("tutor.notify_failures", true)
}

// Load 读取 .env（可选）与 YAML 配置文件，环境变量优先于文件。
// 例如 KAFKA_BROKERS 覆盖 kafka.brokers。
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return &conf, nil
}
