package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/regulation-mapper/internal/database"
	"github.com/fyerfyer/regulation-mapper/internal/models"
	"gorm.io/gorm"
)

// mappingRepository 映射记录仓储实现
type mappingRepository struct {
	db *gorm.DB // 数据库连接
}

// NewMappingRepository 使用全局数据库连接创建仓储实例
func NewMappingRepository() MappingRepository {
	return &mappingRepository{db: database.MustDB()}
}

// NewMappingRepositoryWithDB 使用指定的数据库连接创建仓储实例
func NewMappingRepositoryWithDB(db *gorm.DB) MappingRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &mappingRepository{db: db}
}

// Create 创建映射记录
func (r *mappingRepository) Create(run *models.MappingRun) error {
	if run.ID == "" {
		return errors.New("mapping ID cannot be empty")
	}
	return r.db.Create(run).Error
}

// Update 更新映射记录
func (r *mappingRepository) Update(run *models.MappingRun) error {
	if run.ID == "" {
		return errors.New("mapping ID cannot be empty")
	}
	return r.db.Save(run).Error
}

// GetByID 根据ID获取映射记录
func (r *mappingRepository) GetByID(id string) (*models.MappingRun, error) {
	var run models.MappingRun
	err := r.db.Where("id = ?", id).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrMappingNotFound, id)
		}
		return nil, err
	}
	return &run, nil
}

// List 列出映射记录，按创建时间倒序
func (r *mappingRepository) List(offset, limit int, filters map[string]interface{}) ([]*models.MappingRun, int64, error) {
	var runs []*models.MappingRun
	var total int64

	query := r.db.Model(&models.MappingRun{})

	if status, ok := filters["status"]; ok {
		switch s := status.(type) {
		case models.MappingStatus:
			if s != "" {
				query = query.Where("status = ?", string(s))
			}
		case string:
			if s != "" {
				query = query.Where("status = ?", s)
			}
		}
	}

	if url, ok := filters["document_url"].(string); ok && url != "" {
		query = query.Where("document_url = ?", url)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, 0, err
	}

	return runs, total, nil
}

// Delete 删除映射记录
func (r *mappingRepository) Delete(id string) error {
	result := r.db.Where("id = ?", id).Delete(&models.MappingRun{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", models.ErrMappingNotFound, id)
	}
	return nil
}

// UpdateStatus 更新映射状态
func (r *mappingRepository) UpdateStatus(id string, status models.MappingStatus, errorMsg string) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}

	if errorMsg != "" {
		updates["error"] = errorMsg
	}

	if status == models.MappingStatusCompleted || status == models.MappingStatusFailed {
		now := time.Now()
		updates["completed_at"] = &now
	}

	result := r.db.Model(&models.MappingRun{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", models.ErrMappingNotFound, id)
	}
	return nil
}
