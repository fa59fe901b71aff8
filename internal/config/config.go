// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Ragas         RagasConfig         `mapstructure:"ragas"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Encryption    EncryptionConfig    `mapstructure:"encryption"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port       string `mapstructure:"port"`
	Mode       string `mapstructure:"mode"`
	AppVersion string `mapstructure:"app_version"`
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

// AuthConfig 存储身份认证相关的配置。
// 默认通过外部身份提供方 (Keycloak) 的 JWKS 校验 RS256 token；
// DevSecret 非空时额外接受 HS256 签名的本地开发 token。
type AuthConfig struct {
	KeycloakBaseURL string   `mapstructure:"keycloak_base_url"`
	Realm           string   `mapstructure:"realm"`
	JWKSURL         string   `mapstructure:"jwks_url"`
	Algorithms      []string `mapstructure:"algorithms"`
	DevSecret       string   `mapstructure:"dev_secret"`
	JWKSCacheMinute int      `mapstructure:"jwks_cache_minutes"`
}

// JWKSEndpoint 返回 JWKS 地址，未显式配置时按 Keycloak 约定拼接。
func (a AuthConfig) JWKSEndpoint() string {
	if a.JWKSURL != "" {
		return a.JWKSURL
	}
	realm := a.Realm
	if realm == "" {
		realm = "llm-eval"
	}
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", strings.TrimRight(a.KeycloakBaseURL, "/"), realm)
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers     string `mapstructure:"brokers"`
	Topic       string `mapstructure:"topic"`
	GroupID     string `mapstructure:"group_id"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
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
	PresignMinutes  int    `mapstructure:"presign_minutes"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
// Provider 为 "azure" 时使用 Azure OpenAI 部署，否则按 OpenAI 兼容接口调用。
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	APIVersion string `mapstructure:"api_version"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	BatchSize  int    `mapstructure:"batch_size"`
}

// LLMConfig 存储默认大语言模型的配置，仅在生成请求未指定 LLM endpoint 时使用。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// RagasConfig 存储知识图谱问答生成器的配置。
type RagasConfig struct {
	ParallelGenerationLimit int     `mapstructure:"parallel_generation_limit"`
	KnowledgeGraphLocation  string  `mapstructure:"knowledge_graph_location"`
	MaxDocumentTokens       int     `mapstructure:"max_document_tokens"`
	ChunkTokens             int     `mapstructure:"chunk_tokens"`
	SimilarityThreshold     float64 `mapstructure:"similarity_threshold"`
	Encoding                string  `mapstructure:"encoding"`
}

// StorageConfig 存储本地临时文件目录的配置。
type StorageConfig struct {
	UploadTempDir string `mapstructure:"upload_temp_dir"`
}

// EncryptionConfig 存储 LLM endpoint 密钥加密所用的主密钥。
type EncryptionConfig struct {
	Key string `mapstructure:"key"`
}

// setDefaults 注册配置缺省值，配置文件中未出现的键使用这些值。
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("auth.keycloak_base_url", "http://localhost:8080")
	v.SetDefault("auth.realm", "llm-eval")
	v.SetDefault("auth.algorithms", []string{"RS256"})
	v.SetDefault("auth.jwks_cache_minutes", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("kafka.topic", "qa-catalog-generation")
	v.SetDefault("kafka.group_id", "llm-eval-go-consumer")
	v.SetDefault("kafka.max_attempts", 3)
	v.SetDefault("minio.presign_minutes", 60)
	v.SetDefault("embedding.batch_size", 16)
	v.SetDefault("ragas.parallel_generation_limit", 5)
	v.SetDefault("ragas.max_document_tokens", 100000)
	v.SetDefault("ragas.chunk_tokens", 1024)
	v.SetDefault("ragas.similarity_threshold", 0.8)
	v.SetDefault("ragas.encoding", "cl100k_base")
	v.SetDefault("storage.upload_temp_dir", "./data/uploaded_files")
}

// Load 从指定路径读取 YAML 文件并返回解析后的配置，环境变量可覆盖同名键
// (例如 ENCRYPTION_KEY 覆盖 encryption.key)。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// 兼容旧部署使用的变量名
	_ = v.BindEnv("encryption.key", "ENCRYPTION_KEY", "LLM_EVAL_ENCRYPTION_KEY")
	_ = v.BindEnv("server.app_version", "SERVER_APP_VERSION", "APP_VERSION")

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return cfg, nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}
