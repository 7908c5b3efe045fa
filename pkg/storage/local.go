package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage 本地文件存储实现
type LocalStorage struct {
	basePath  string // 基础存储路径
	publicURL string // 公开访问地址前缀，为空时返回file://地址
}

// LocalConfig 本地存储配置
type LocalConfig struct {
	Path      string // 本地存储路径
	PublicURL string // 公开访问地址前缀
}

// NewLocalStorage 创建本地存储实例
func NewLocalStorage(cfg LocalConfig) (*LocalStorage, error) {
	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %v", err)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %v", err)
	}

	return &LocalStorage{
		basePath:  absPath,
		publicURL: cfg.PublicURL,
	}, nil
}

// Upload 将本地文件复制到存储目录
func (s *LocalStorage) Upload(ctx context.Context, localPath, objectName string) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return FileInfo{}, err
	}

	target, err := s.resolve(objectName)
	if err != nil {
		return FileInfo{}, err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to open source file: %v", err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return FileInfo{}, fmt.Errorf("failed to create directory: %v", err)
	}

	dst, err := os.Create(target)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to create file: %v", err)
	}

	size, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(target)
		return FileInfo{}, fmt.Errorf("failed to write file: %v", err)
	}

	url := joinURL(s.publicURL, objectName)
	if url == "" {
		url = "file://" + filepath.ToSlash(target)
	}

	return FileInfo{
		ID:       objectID(objectName),
		Name:     objectName,
		Size:     size,
		MimeType: getMimeType(objectName),
		Path:     target,
		URL:      url,
	}, nil
}

// Get 读取文件内容
func (s *LocalStorage) Get(ctx context.Context, objectName string) (io.ReadCloser, error) {
	target, err := s.resolve(objectName)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(target)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, objectName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %v", err)
	}
	return file, nil
}

// Delete 删除文件
func (s *LocalStorage) Delete(ctx context.Context, objectName string) error {
	target, err := s.resolve(objectName)
	if err != nil {
		return err
	}

	err = os.Remove(target)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, objectName)
	}
	if err != nil {
		return fmt.Errorf("failed to delete file: %v", err)
	}
	return nil
}

// resolve 将对象名映射为存储目录下的路径，拒绝越出存储目录的对象名
func (s *LocalStorage) resolve(objectName string) (string, error) {
	if objectName == "" {
		return "", fmt.Errorf("object name cannot be empty")
	}

	target := filepath.Join(s.basePath, filepath.FromSlash(objectName))
	rel, err := filepath.Rel(s.basePath, target)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid object name: %s", objectName)
	}
	return target, nil
}
