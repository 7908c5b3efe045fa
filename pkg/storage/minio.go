package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStorage MinIO(S3/R2兼容)存储实现
type MinioStorage struct {
	client     *minio.Client // MinIO客户端
	bucketName string        // 存储桶名称
	publicURL  string        // 公开访问地址前缀
}

// MinioConfig MinIO存储配置
type MinioConfig struct {
	Endpoint  string // 服务端点
	AccessKey string // 访问密钥ID
	SecretKey string // 秘密访问密钥
	UseSSL    bool   // 是否使用SSL
	Bucket    string // 存储桶名称
	PublicURL string // 公开访问地址前缀(CDN)，为空时使用端点地址
}

// NewMinioStorage 创建MinIO存储实例，存储桶不存在时自动创建
func NewMinioStorage(cfg MinioConfig) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %v", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %v", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %v", err)
		}
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		publicURL = strings.TrimRight(client.EndpointURL().String(), "/") + "/" + cfg.Bucket + "/"
	}

	return &MinioStorage{
		client:     client,
		bucketName: cfg.Bucket,
		publicURL:  publicURL,
	}, nil
}

// Upload 上传本地文件到存储桶
func (s *MinioStorage) Upload(ctx context.Context, localPath, objectName string) (FileInfo, error) {
	contentType := getMimeType(objectName)

	info, err := s.client.FPutObject(ctx, s.bucketName, objectName, localPath,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to upload object: %v", err)
	}

	return FileInfo{
		ID:       objectID(objectName),
		Name:     objectName,
		Size:     info.Size,
		MimeType: contentType,
		Path:     s.bucketName + "/" + objectName,
		URL:      joinURL(s.publicURL, objectName),
	}, nil
}

// Get 读取对象内容
func (s *MinioStorage) Get(ctx context.Context, objectName string) (io.ReadCloser, error) {
	// GetObject是惰性的，先Stat确认对象存在
	if _, err := s.client.StatObject(ctx, s.bucketName, objectName, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, objectName)
		}
		return nil, fmt.Errorf("failed to stat object: %v", err)
	}

	obj, err := s.client.GetObject(ctx, s.bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %v", err)
	}
	return obj, nil
}

// Delete 删除对象
func (s *MinioStorage) Delete(ctx context.Context, objectName string) error {
	err := s.client.RemoveObject(ctx, s.bucketName, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete object: %v", err)
	}
	return nil
}
