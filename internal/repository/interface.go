package repository

import "github.com/fyerfyer/regulation-mapper/internal/models"

// MappingRepository 映射记录仓储接口
// 负责映射运行记录的存储和检索
type MappingRepository interface {
	// Create 创建映射记录
	Create(run *models.MappingRun) error

	// Update 更新映射记录
	Update(run *models.MappingRun) error

	// GetByID 根据ID获取映射记录
	GetByID(id string) (*models.MappingRun, error)

	// List 列出映射记录，支持分页和按状态筛选
	List(offset, limit int, filters map[string]interface{}) ([]*models.MappingRun, int64, error)

	// Delete 删除映射记录
	Delete(id string) error

	// UpdateStatus 更新映射状态
	UpdateStatus(id string, status models.MappingStatus, errorMsg string) error
}
