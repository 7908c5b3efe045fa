package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用程序配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Mapper   MapperConfig   `mapstructure:"mapper"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Database DatabaseConfig `mapstructure:"database"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`                                     // 服务器主机
	Port         int           `mapstructure:"port" validate:"min=1,max=65535"`          // 服务器端口
	Mode         string        `mapstructure:"mode" validate:"oneof=debug release test"` // 运行模式
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`                             // 读取超时
	WriteTimeout time.Duration `mapstructure:"write_timeout"`                            // 写入超时
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	Format     string `mapstructure:"format" validate:"oneof=json text"`
	File       string `mapstructure:"file"`         // 日志文件，为空时输出到标准输出
	MaxSizeMB  int    `mapstructure:"max_size_mb"`  // 单个日志文件大小上限
	MaxBackups int    `mapstructure:"max_backups"`  // 保留的旧文件数量
	MaxAgeDays int    `mapstructure:"max_age_days"` // 旧文件保留天数
}

// LLMConfig 大语言模型配置
type LLMConfig struct {
	Provider          string        `mapstructure:"provider" validate:"required"`
	Model             string        `mapstructure:"model" validate:"required"`
	APIKey            string        `mapstructure:"api_key"`  // API密钥，支持${ENV}写法
	Endpoint          string        `mapstructure:"endpoint"` // API端点
	Temperature       float32       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxTokens         int           `mapstructure:"max_tokens" validate:"gte=0"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries" validate:"gte=0"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gte=0"`
	StructuredOutput  bool          `mapstructure:"structured_output"` // 是否使用JSON Schema结构化输出
}

// MapperConfig 映射流程配置
type MapperConfig struct {
	CorpusPath  string        `mapstructure:"corpus_path" validate:"required"` // 法规语料文件
	Workers     int           `mapstructure:"workers" validate:"min=1"`        // 并发分类数
	TaskTimeout time.Duration `mapstructure:"task_timeout"`                    // 单章节分类超时，0表示不限制
}

// FetchConfig 文档元数据获取配置
type FetchConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Type      string `mapstructure:"type" validate:"oneof=local minio http"` // 存储类型
	Path      string `mapstructure:"path"`                                    // 本地存储路径
	Endpoint  string `mapstructure:"endpoint"`                                // MinIO端点
	Bucket    string `mapstructure:"bucket"`                                  // MinIO桶名称
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`    // 是否使用SSL
	PublicURL string `mapstructure:"public_url"` // 报告公开访问地址前缀
	UploadURL string `mapstructure:"upload_url"` // HTTP上传地址前缀
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Enable   bool   `mapstructure:"enable"`                            // 是否启用缓存
	Type     string `mapstructure:"type" validate:"oneof=memory redis"` // 缓存类型
	Address  string `mapstructure:"address"`                           // Redis地址
	Password string `mapstructure:"password"`                          // Redis密码
	DB       int    `mapstructure:"db"`                                // Redis数据库
	TTL      int    `mapstructure:"ttl" validate:"gte=0"`              // 缓存TTL（秒）
}

// QueueConfig 任务队列配置
type QueueConfig struct {
	Enable        bool   `mapstructure:"enable"`                       // 是否启用任务队列
	RedisAddr     string `mapstructure:"redis_addr"`                   // Redis地址
	RedisPassword string `mapstructure:"redis_password"`               // Redis密码
	RedisDB       int    `mapstructure:"redis_db"`                     // Redis数据库编号
	Concurrency   int    `mapstructure:"concurrency" validate:"gte=0"` // 任务处理并发数
	RetryLimit    int    `mapstructure:"retry_limit" validate:"gte=0"` // 任务最大重试次数
	RetryDelay    int    `mapstructure:"retry_delay" validate:"gte=0"` // 重试延迟(秒)
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type string `mapstructure:"type" validate:"oneof=sqlite"` // 数据库类型
	DSN  string `mapstructure:"dsn" validate:"required"`      // 数据源名称
}

// Load 从文件和环境变量加载配置
func Load(configPath string) (*Config, error) {
	var config Config

	if configPath == "" {
		configPath = "config.yaml"
	}

	// .env 不存在时忽略
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Failed to load .env file: %v", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			log.Printf("Warning: Config file not found at %s, using defaults", configPath)
			writeDefaults(v, configPath)
		} else {
			return nil, fmt.Errorf("failed to read config file: %v", err)
		}
	} else {
		log.Printf("Using config file: %s", v.ConfigFileUsed())
	}

	// 支持环境变量覆盖，例如 SERVER_PORT=9090
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %v", err)
	}

	processEnvironmentVariables(&config)

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate 校验配置项
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	switch cfg.Storage.Type {
	case "local":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("invalid config: storage.path is required for local storage")
		}
	case "minio":
		if cfg.Storage.Endpoint == "" || cfg.Storage.Bucket == "" {
			return fmt.Errorf("invalid config: storage.endpoint and storage.bucket are required for minio storage")
		}
	case "http":
		if cfg.Storage.UploadURL == "" || cfg.Storage.PublicURL == "" {
			return fmt.Errorf("invalid config: storage.upload_url and storage.public_url are required for http storage")
		}
	}

	if cfg.Queue.Enable && cfg.Queue.RedisAddr == "" {
		return fmt.Errorf("invalid config: queue.redis_addr is required when queue is enabled")
	}
	return nil
}

// writeDefaults 在配置文件缺失时写出一份默认配置
func writeDefaults(v *viper.Viper, configPath string) {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return
	}
	if err := v.WriteConfigAs(configPath); err != nil {
		log.Printf("Warning: Could not write default config to %s: %v", configPath, err)
	}
}

// processEnvironmentVariables 展开配置中的 ${ENV} 占位符
func processEnvironmentVariables(cfg *Config) {
	for _, field := range []*string{
		&cfg.LLM.APIKey,
		&cfg.Storage.AccessKey,
		&cfg.Storage.SecretKey,
		&cfg.Storage.UploadURL,
		&cfg.Storage.PublicURL,
		&cfg.Cache.Password,
		&cfg.Queue.RedisPassword,
	} {
		*field = expandEnv(*field)
	}
}

// expandEnv 替换 ${NAME} 形式的值，环境变量未设置时返回空字符串
func expandEnv(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		return os.Getenv(value[2 : len(value)-1])
	}
	return value
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "10m")

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	// LLM默认配置
	v.SetDefault("llm.provider", "openrouter")
	v.SetDefault("llm.model", "openai/gpt-4o-mini")
	v.SetDefault("llm.api_key", "${OPENROUTER_API_KEY}")
	v.SetDefault("llm.endpoint", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.requests_per_second", 0)
	v.SetDefault("llm.structured_output", true)

	// 映射流程默认配置
	v.SetDefault("mapper.corpus_path", "data/regulations.json")
	v.SetDefault("mapper.workers", 10)
	v.SetDefault("mapper.task_timeout", "0s")

	// 元数据获取默认配置
	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.max_retries", 2)

	// 存储默认配置
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "./data/reports")
	v.SetDefault("storage.bucket", "regulation-reports")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.public_url", "")
	v.SetDefault("storage.upload_url", "")

	// 缓存默认配置
	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.ttl", 86400) // 24小时

	// 队列默认配置
	v.SetDefault("queue.enable", false)
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.concurrency", 2)
	v.SetDefault("queue.retry_limit", 1)
	v.SetDefault("queue.retry_delay", 60) // 60秒

	// 数据库默认配置
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "data/mapper.db")
}
