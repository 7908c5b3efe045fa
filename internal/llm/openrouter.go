package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	// DefaultOpenRouterEndpoint OpenRouter的OpenAI兼容端点
	DefaultOpenRouterEndpoint = "https://openrouter.ai/api/v1"
)

// OpenRouterClient 基于OpenAI兼容协议的大模型客户端
// 同时适用于OpenRouter和其他兼容端点
type OpenRouterClient struct {
	client      *openai.Client
	model       string
	maxRetries  int
	retryDelay  time.Duration
	maxTokens   int
	temperature float32
	topP        float32
	limiter     *rate.Limiter
}

// NewOpenRouterClient 创建新的OpenRouter客户端
func NewOpenRouterClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	if cfg.APIKey == "" {
		return nil, NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = DefaultOpenRouterEndpoint
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	c := &OpenRouterClient{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
	}

	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return c, nil
}

// Name 返回模型名称
func (c *OpenRouterClient) Name() string {
	return c.model
}

// Chat 进行多轮对话
func (c *OpenRouterClient) Chat(ctx context.Context, messages []Message, options ...ChatOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewLLMError(ErrCodeInvalidRequest, "messages cannot be empty")
	}
	if messages[len(messages)-1].Content == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}

	opts := &ChatOptions{}
	for _, opt := range options {
		opt(opts)
	}

	req := c.buildRequest(messages, opts)

	var resp openai.ChatCompletionResponse
	err := retry.Do(
		func() error {
			if c.limiter != nil {
				if err := c.limiter.Wait(ctx); err != nil {
					return retry.Unrecoverable(NewLLMError(ErrCodeTimeout, err.Error()))
				}
			}

			var err error
			resp, err = c.client.CreateChatCompletion(ctx, req)
			if err != nil {
				return classifyError(ctx, err)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries+1)),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsRetryable),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if ctx.Err() != nil && CodeOf(err) == 0 {
			return nil, NewLLMError(ErrCodeTimeout, ctx.Err().Error())
		}
		return nil, err
	}

	return c.processResponse(resp)
}

// buildRequest 组装OpenAI兼容的请求
func (c *OpenRouterClient) buildRequest(messages []Message, opts *ChatOptions) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
	}

	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
			Name:    m.Name,
		})
	}

	if opts.MaxTokens != nil {
		req.MaxTokens = *opts.MaxTokens
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.TopP != nil {
		req.TopP = *opts.TopP
	}
	if opts.JSONSchema != nil {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   opts.JSONSchema.Name,
				Schema: opts.JSONSchema.Schema,
				Strict: opts.JSONSchema.Strict,
			},
		}
	}

	return req
}

// processResponse 转换为统一的响应结构
func (c *OpenRouterClient) processResponse(resp openai.ChatCompletionResponse) (*Response, error) {
	if len(resp.Choices) == 0 {
		return nil, NewLLMError(ErrCodeEmptyResponse, ErrMsgEmptyResponse)
	}

	choice := resp.Choices[0]
	modelName := resp.Model
	if modelName == "" {
		modelName = c.model
	}

	return &Response{
		Text: choice.Message.Content,
		Messages: []Message{{
			Role:    MessageRole(choice.Message.Role),
			Content: choice.Message.Content,
		}},
		TokenCount:   resp.Usage.TotalTokens,
		ModelName:    modelName,
		FinishReason: string(choice.FinishReason),
		FinishTime:   time.Now(),
	}, nil
}

// classifyError 将SDK错误映射为LLMError
func classifyError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return retry.Unrecoverable(NewLLMError(ErrCodeTimeout, ctx.Err().Error()))
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	msg := err.Error()
	switch {
	case status == 0:
		return NewLLMError(ErrCodeNetworkError, fmt.Sprintf("%s: %s", ErrMsgNetworkError, msg))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewLLMError(ErrCodeInvalidAPIKey, msg)
	case status == http.StatusTooManyRequests:
		return NewLLMError(ErrCodeRateLimited, msg)
	case status == http.StatusServiceUnavailable:
		return NewLLMError(ErrCodeModelOverload, msg)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return NewLLMError(ErrCodeNetworkError, msg)
	case status >= 500:
		return NewLLMError(ErrCodeServerError, msg)
	default:
		return NewLLMError(ErrCodeInvalidRequest, msg)
	}
}

// 在包初始化时注册OpenRouter客户端
func init() {
	RegisterClient("openrouter", NewOpenRouterClient)
	RegisterClient("openai", NewOpenRouterClient)
}
