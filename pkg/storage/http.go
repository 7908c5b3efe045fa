package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// HTTPStorage 通过HTTP PUT上传对象的存储实现
// 适用于Cloudflare R2 Worker一类"上传地址 + CDN地址"的部署方式
type HTTPStorage struct {
	client    *http.Client
	uploadURL string
	publicURL string
}

// HTTPConfig HTTP存储配置
type HTTPConfig struct {
	UploadURL string        // 上传地址前缀，对象名直接拼接在后面
	PublicURL string        // 公开访问地址前缀
	Timeout   time.Duration // 请求超时时间
}

// NewHTTPStorage 创建HTTP存储实例
func NewHTTPStorage(cfg HTTPConfig) (*HTTPStorage, error) {
	if cfg.UploadURL == "" {
		return nil, fmt.Errorf("upload url is required for http storage")
	}
	if cfg.PublicURL == "" {
		return nil, fmt.Errorf("public url is required for http storage")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &HTTPStorage{
		client:    &http.Client{Timeout: timeout},
		uploadURL: cfg.UploadURL,
		publicURL: cfg.PublicURL,
	}, nil
}

// Upload 以PUT方式上传本地文件
func (s *HTTPStorage) Upload(ctx context.Context, localPath, objectName string) (FileInfo, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to open source file: %v", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to stat source file: %v", err)
	}

	contentType := getMimeType(objectName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, joinURL(s.uploadURL, objectName), file)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to create upload request: %v", err)
	}
	req.ContentLength = stat.Size()
	req.Header.Set("Content-Type", contentType)

	if err := s.do(req); err != nil {
		return FileInfo{}, fmt.Errorf("failed to upload object: %w", err)
	}

	return FileInfo{
		ID:       objectID(objectName),
		Name:     objectName,
		Size:     stat.Size(),
		MimeType: contentType,
		Path:     joinURL(s.uploadURL, objectName),
		URL:      joinURL(s.publicURL, objectName),
	}, nil
}

// Get 从公开地址读取对象
func (s *HTTPStorage) Get(ctx context.Context, objectName string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, joinURL(s.publicURL, objectName), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %v", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, objectName)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to get object: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// Delete 向上传地址发送DELETE请求
func (s *HTTPStorage) Delete(ctx context.Context, objectName string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, joinURL(s.uploadURL, objectName), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	if err := s.do(req); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// do 发送请求，非2xx响应视为失败
func (s *HTTPStorage) do(req *http.Request) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusNotFound && req.Method == http.MethodDelete {
		return ErrObjectNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
