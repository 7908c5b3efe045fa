package llm

import (
	"context"
	"encoding/json"
	"time"
)

// Client 大模型客户端接口
// 负责处理与大语言模型的交互
type Client interface {
	// Chat 进行多轮对话
	Chat(ctx context.Context, messages []Message, options ...ChatOption) (*Response, error)

	// Name 返回模型名称
	Name() string
}

// Config 大模型客户端配置
type Config struct {
	APIKey            string        // API密钥
	BaseURL           string        // API基础URL
	Model             string        // 模型名称
	Timeout           time.Duration // 请求超时时间
	MaxRetries        int           // 最大重试次数
	RetryDelay        time.Duration // 首次重试等待时间
	MaxTokens         int           // 最大生成Token数
	Temperature       float32       // 采样温度(0.0-2.0)
	TopP              float32       // 核采样概率阈值(0.0-1.0)
	RequestsPerSecond float64       // 每秒请求上限，0表示不限速
	Burst             int           // 令牌桶容量
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     DefaultOpenRouterEndpoint,
		Model:       ModelGPT4oMini,
		Timeout:     60 * time.Second,
		MaxRetries:  3,
		RetryDelay:  500 * time.Millisecond,
		MaxTokens:   1024,
		Temperature: 0.1,
		Burst:       1,
	}
}

// Option 客户端配置选项函数类型
type Option func(*Config)

// WithAPIKey 设置API密钥
func WithAPIKey(apiKey string) Option {
	return func(c *Config) {
		c.APIKey = apiKey
	}
}

// WithBaseURL 设置API基础URL
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithModel 设置模型名称
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithTimeout 设置请求超时时间
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithMaxRetries 设置最大重试次数
func WithMaxRetries(retries int) Option {
	return func(c *Config) {
		c.MaxRetries = retries
	}
}

// WithRetryDelay 设置重试等待时间
func WithRetryDelay(delay time.Duration) Option {
	return func(c *Config) {
		c.RetryDelay = delay
	}
}

// WithMaxTokens 设置最大生成Token数
func WithMaxTokens(tokens int) Option {
	return func(c *Config) {
		c.MaxTokens = tokens
	}
}

// WithTemperature 设置采样温度
func WithTemperature(temp float32) Option {
	return func(c *Config) {
		c.Temperature = temp
	}
}

// WithTopP 设置核采样概率阈值
func WithTopP(topP float32) Option {
	return func(c *Config) {
		c.TopP = topP
	}
}

// WithRateLimit 设置请求速率限制
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return func(c *Config) {
		c.RequestsPerSecond = requestsPerSecond
		c.Burst = burst
	}
}

// NewConfig 创建一个新的配置并应用选项
func NewConfig(opts ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// ChatOption 聊天请求的选项
type ChatOption func(*ChatOptions)

// ChatOptions 聊天请求的选项集合
type ChatOptions struct {
	MaxTokens   *int              // 最大生成Token数
	Temperature *float32          // 采样温度
	TopP        *float32          // 核采样概率阈值
	JSONSchema  *JSONSchemaFormat // 结构化输出约束
}

// JSONSchemaFormat 要求模型按JSON Schema输出
type JSONSchemaFormat struct {
	Name   string          // schema名称
	Schema json.RawMessage // schema文档
	Strict bool            // 是否严格模式
}

// WithChatMaxTokens 设置聊天请求的最大Token数
func WithChatMaxTokens(tokens int) ChatOption {
	return func(o *ChatOptions) {
		o.MaxTokens = &tokens
	}
}

// WithChatTemperature 设置聊天请求的采样温度
func WithChatTemperature(temp float32) ChatOption {
	return func(o *ChatOptions) {
		o.Temperature = &temp
	}
}

// WithChatTopP 设置聊天请求的核采样概率阈值
func WithChatTopP(topP float32) ChatOption {
	return func(o *ChatOptions) {
		o.TopP = &topP
	}
}

// WithChatJSONSchema 设置结构化输出的JSON Schema
func WithChatJSONSchema(name string, schema json.RawMessage, strict bool) ChatOption {
	return func(o *ChatOptions) {
		o.JSONSchema = &JSONSchemaFormat{
			Name:   name,
			Schema: schema,
			Strict: strict,
		}
	}
}

// Factory 大模型客户端工厂函数类型
type Factory func(opts ...Option) (Client, error)

// 全局注册的大模型客户端工厂函数
var clientFactories = make(map[string]Factory)

// RegisterClient 注册大模型客户端工厂函数
func RegisterClient(name string, factory Factory) {
	clientFactories[name] = factory
}

// NewClient 根据名称创建大模型客户端
func NewClient(name string, opts ...Option) (Client, error) {
	factory, exists := clientFactories[name]
	if !exists {
		return nil, NewLLMError(
			ErrCodeInvalidRequest,
			"llm client type not registered: "+name)
	}
	return factory(opts...)
}
