package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
)

// ErrObjectNotFound 对象不存在
var ErrObjectNotFound = errors.New("object not found")

// FileInfo 已上传对象的元数据
type FileInfo struct {
	ID       string // 对象标识（对象名去掉扩展名）
	Name     string // 对象名
	Size     int64  // 对象大小(字节)
	MimeType string // 对象MIME类型
	Path     string // 内部存储路径(实现相关)
	URL      string // 对外访问地址
}

// Storage 对象存储接口
// 报告先写入本地临时文件，再通过Upload上传
type Storage interface {
	// Upload 上传本地文件，objectName为目标对象名
	Upload(ctx context.Context, localPath, objectName string) (FileInfo, error)

	// Get 读取对象内容
	Get(ctx context.Context, objectName string) (io.ReadCloser, error)

	// Delete 删除对象
	Delete(ctx context.Context, objectName string) error
}

// Config 存储配置
type Config struct {
	Type      string        // 存储类型: local, minio, http
	Path      string        // 本地存储路径(local)
	Endpoint  string        // 服务端点(minio)
	Bucket    string        // 存储桶(minio)
	AccessKey string        // 访问密钥ID(minio)
	SecretKey string        // 秘密访问密钥(minio)
	UseSSL    bool          // 是否使用SSL(minio)
	UploadURL string        // 上传地址前缀(http)
	PublicURL string        // 公开访问地址前缀
	Timeout   time.Duration // 请求超时时间(http)
}

// New 根据配置创建存储实例
func New(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "local", "":
		return NewLocalStorage(LocalConfig{Path: cfg.Path, PublicURL: cfg.PublicURL})
	case "minio":
		return NewMinioStorage(MinioConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
			PublicURL: cfg.PublicURL,
		})
	case "http":
		return NewHTTPStorage(HTTPConfig{
			UploadURL: cfg.UploadURL,
			PublicURL: cfg.PublicURL,
			Timeout:   cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// joinURL 拼接地址前缀和对象名
// 前缀按原样拼接，调用方负责保证前缀以 "/" 结尾
func joinURL(prefix, objectName string) string {
	if prefix == "" {
		return ""
	}
	return prefix + objectName
}

// objectID 对象名去掉扩展名
func objectID(objectName string) string {
	base := filepath.Base(objectName)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// getMimeType 根据扩展名判断MIME类型
func getMimeType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
