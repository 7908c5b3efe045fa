package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/regulation-mapper/internal/cache"
	"github.com/fyerfyer/regulation-mapper/internal/llm"
	"github.com/fyerfyer/regulation-mapper/internal/models"
)

// MissingAPIKeyMessage 未配置API密钥时返回的错误信息
const MissingAPIKeyMessage = "API key not found. Please set OPENROUTER_API_KEY in your .env file"

// verdictCachePrefix 判定缓存键前缀
const verdictCachePrefix = "verdict"

// Config 分类器配置
type Config struct {
	APIKey           string  // 大模型API密钥，为空时直接返回认证失败
	Model            string  // 模型名称，参与缓存键计算
	Temperature      float32 // 采样温度
	StructuredOutput bool    // 是否要求模型按JSON Schema输出
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Model:       llm.ModelGPT4oMini,
		Temperature: 0.1,
	}
}

// Classifier 章节相关性分类器
// 对每个(文档, 章节)发起一次大模型调用并严格解析结果
type Classifier struct {
	client   llm.Client
	cfg      Config
	schema   *jsonschema.Schema
	cache    cache.Cache
	cacheTTL time.Duration
	logger   *logrus.Logger
}

// Option 分类器选项
type Option func(*Classifier)

// WithCache 设置判定缓存
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(cl *Classifier) {
		cl.cache = c
		cl.cacheTTL = ttl
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) Option {
	return func(cl *Classifier) {
		cl.logger = logger
	}
}

// New 创建分类器
// 未配置API密钥时client可以为nil
func New(client llm.Client, cfg Config, opts ...Option) (*Classifier, error) {
	if client == nil && cfg.APIKey != "" {
		return nil, fmt.Errorf("llm client is required when an API key is configured")
	}

	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}

	cl := &Classifier{
		client: client,
		cfg:    cfg,
		schema: schema,
		logger: logrus.New(),
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl, nil
}

// Classify 判定一个章节与文档的相关性
// 缺少凭证和解析失败都作为结果返回；只有大模型调用本身失败时才返回error
func (c *Classifier) Classify(ctx context.Context, documentText, chapterText, chapterNum, partNum string) (*models.ClassificationResult, error) {
	if c.cfg.APIKey == "" {
		c.logger.WithFields(logrus.Fields{
			"chapter_num": chapterNum,
			"part_num":    partNum,
		}).Warn("Skipping classification, API key not configured")
		return models.NewAuthFailure(chapterNum, partNum, MissingAPIKeyMessage), nil
	}

	cacheKey := cache.HashKey(verdictCachePrefix, c.cfg.Model, documentText, chapterText)
	if verdict, ok := c.cachedVerdict(cacheKey); ok {
		c.logVerdict(chapterNum, partNum, verdict, true)
		return models.NewVerdictResult(chapterNum, partNum, verdict), nil
	}

	opts := []llm.ChatOption{llm.WithChatTemperature(c.cfg.Temperature)}
	if c.cfg.StructuredOutput {
		opts = append(opts, llm.WithChatJSONSchema(SchemaName, VerdictSchema(), true))
	}

	resp, err := c.client.Chat(ctx, BuildMessages(documentText, chapterText), opts...)
	if err != nil {
		return nil, fmt.Errorf("completion failed for chapter %s part %s: %w", chapterNum, partNum, err)
	}

	verdict, err := parseVerdict(c.schema, resp.Text)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"chapter_num": chapterNum,
			"part_num":    partNum,
		}).Warn("Failed to parse classification output")
		return models.NewParseFailure(chapterNum, partNum, err.Error(), resp.Text), nil
	}

	c.storeVerdict(cacheKey, verdict)
	c.logVerdict(chapterNum, partNum, verdict, false)
	return models.NewVerdictResult(chapterNum, partNum, verdict), nil
}

// cachedVerdict 读取缓存的判定，缓存错误只记录日志
func (c *Classifier) cachedVerdict(key string) (*models.RelevanceVerdict, bool) {
	if c.cache == nil {
		return nil, false
	}

	raw, found, err := c.cache.Get(key)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to read verdict cache")
		return nil, false
	}
	if !found {
		return nil, false
	}

	var verdict models.RelevanceVerdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		c.logger.WithError(err).Warn("Discarding malformed cached verdict")
		_ = c.cache.Delete(key)
		return nil, false
	}
	return &verdict, true
}

// storeVerdict 缓存成功的判定
func (c *Classifier) storeVerdict(key string, verdict *models.RelevanceVerdict) {
	if c.cache == nil {
		return
	}

	data, err := json.Marshal(verdict)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to marshal verdict for cache")
		return
	}
	if err := c.cache.Set(key, string(data), c.cacheTTL); err != nil {
		c.logger.WithError(err).Warn("Failed to write verdict cache")
	}
}

func (c *Classifier) logVerdict(chapterNum, partNum string, verdict *models.RelevanceVerdict, cached bool) {
	c.logger.WithFields(logrus.Fields{
		"chapter_num":     chapterNum,
		"part_num":        partNum,
		"is_relevant":     verdict.IsRelevant,
		"relevance_score": verdict.RelevanceScore,
		"cached":          cached,
	}).Info("Chapter classified")
}
