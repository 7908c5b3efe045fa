package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fyerfyer/regulation-mapper/internal/models"
	"github.com/fyerfyer/regulation-mapper/pkg/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Publisher 将汇总报告写入临时文件后上传到对象存储
type Publisher struct {
	storage storage.Storage
	logger  *logrus.Logger
}

// NewPublisher 创建报告发布器
func NewPublisher(store storage.Storage, logger *logrus.Logger) *Publisher {
	if logger == nil {
		logger = logrus.New()
	}
	return &Publisher{storage: store, logger: logger}
}

// Publish 上传报告并返回公开地址
// 临时文件在任何情况下都会被删除，上传失败直接返回错误
func (p *Publisher) Publish(ctx context.Context, report *models.AggregateReport) (string, error) {
	info, err := p.publish(ctx, report)
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// publish 返回完整的上传信息，供服务层记录对象名
func (p *Publisher) publish(ctx context.Context, report *models.AggregateReport) (storage.FileInfo, error) {
	tmp, err := os.CreateTemp("", "*.json")
	if err != nil {
		return storage.FileInfo{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer p.cleanup(tmpPath)

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "    ")
	encodeErr := encoder.Encode(report)
	if closeErr := tmp.Close(); encodeErr == nil {
		encodeErr = closeErr
	}
	if encodeErr != nil {
		return storage.FileInfo{}, fmt.Errorf("failed to write report: %w", encodeErr)
	}

	objectName := uuid.New().String() + ".json"
	info, err := p.storage.Upload(ctx, tmpPath, objectName)
	if err != nil {
		return storage.FileInfo{}, fmt.Errorf("failed to upload report: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"object": objectName,
		"url":    info.URL,
		"size":   info.Size,
	}).Info("Report published")

	return info, nil
}

func (p *Publisher) cleanup(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		p.logger.WithError(err).WithField("path", path).Error("Failed to remove temp report file")
	}
}
