package document

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/regulation-mapper/internal/models"
)

// maxMetadataSize 元数据响应体的大小上限
const maxMetadataSize = 10 << 20

// Fetcher 文档元数据获取接口
type Fetcher interface {
	// Fetch 根据文档引用获取并解析元数据
	Fetch(ctx context.Context, ref string) (*models.DocumentMetadata, error)
}

// HTTPFetcher 通过HTTP GET获取文档元数据
type HTTPFetcher struct {
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     *logrus.Logger
}

// FetcherOption HTTPFetcher配置选项
type FetcherOption func(*HTTPFetcher)

// WithHTTPClient 设置HTTP客户端
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *HTTPFetcher) {
		f.client = client
	}
}

// WithTimeout 设置请求超时时间
func WithTimeout(timeout time.Duration) FetcherOption {
	return func(f *HTTPFetcher) {
		f.client = &http.Client{Timeout: timeout}
	}
}

// WithRetry 设置重试次数和首次重试等待时间
func WithRetry(maxRetries int, delay time.Duration) FetcherOption {
	return func(f *HTTPFetcher) {
		f.maxRetries = maxRetries
		f.retryDelay = delay
	}
}

// WithFetcherLogger 设置日志记录器
func WithFetcherLogger(logger *logrus.Logger) FetcherOption {
	return func(f *HTTPFetcher) {
		f.logger = logger
	}
}

// NewHTTPFetcher 创建HTTP元数据获取器
func NewHTTPFetcher(opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client:     &http.Client{Timeout: 30 * time.Second},
		maxRetries: 2,
		retryDelay: 500 * time.Millisecond,
		logger:     logrus.New(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ValidateRef 校验文档引用是否为http(s)地址
func ValidateRef(ref string) error {
	u, err := url.ParseRequestURI(ref)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidDocumentRef, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: unsupported url %q", models.ErrInvalidDocumentRef, ref)
	}
	return nil
}

// Fetch 获取并解析文档元数据
// 网络错误和5xx响应会重试，4xx响应和无效JSON直接失败
func (f *HTTPFetcher) Fetch(ctx context.Context, ref string) (*models.DocumentMetadata, error) {
	if err := ValidateRef(ref); err != nil {
		return nil, err
	}

	var body []byte
	err := retry.Do(
		func() error {
			data, err := f.get(ctx, ref)
			if err != nil {
				return err
			}
			body = data
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(f.maxRetries+1)),
		retry.Delay(f.retryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			f.logger.WithError(err).WithFields(logrus.Fields{
				"url":     ref,
				"attempt": n + 1,
			}).Warn("Retrying document metadata fetch")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrFetchFailed, err)
	}

	meta, err := models.ParseDocumentMetadata(body)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid metadata JSON: %v", models.ErrFetchFailed, err)
	}

	f.logger.WithFields(logrus.Fields{
		"url":        ref,
		"size":       len(body),
		"toc_items":  len(meta.TableOfContents),
		"key_topics": len(meta.KeyTopics),
	}).Debug("Document metadata fetched")

	return meta, nil
}

// get 发送一次GET请求
func (f *HTTPFetcher) get(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, retry.Unrecoverable(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("metadata server returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, retry.Unrecoverable(fmt.Errorf("metadata server returned status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata response: %w", err)
	}
	return data, nil
}
