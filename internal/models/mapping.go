package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MappingStatus 映射任务状态
type MappingStatus string

const (
	// MappingStatusPending 等待处理
	MappingStatusPending MappingStatus = "pending"
	// MappingStatusProcessing 处理中
	MappingStatusProcessing MappingStatus = "processing"
	// MappingStatusCompleted 已完成
	MappingStatusCompleted MappingStatus = "completed"
	// MappingStatusFailed 处理失败
	MappingStatusFailed MappingStatus = "failed"
)

// MappingRun 映射运行记录
// 记录每次映射请求的输入、状态和报告地址，报告本身存放在对象存储中
type MappingRun struct {
	ID               string         `gorm:"primaryKey"`             // 运行ID
	DocumentURL      string         `gorm:"type:text;not null"`     // 文档引用
	Status           MappingStatus  `gorm:"not null;index;size:20"` // 状态
	ReportURL        string         `gorm:"type:text"`              // 报告地址
	ReportObject     string         `gorm:"size:100"`               // 报告在对象存储中的对象名
	TotalChapters    int            `gorm:"not null;default:0"`     // 执行完成的章节数
	RelevantChapters int            `gorm:"not null;default:0"`     // 相关章节数
	Summary          datatypes.JSON `gorm:"type:json"`              // 报告摘要
	TaskID           string         `gorm:"size:50;index"`          // 异步任务ID
	Error            string         `gorm:"type:text"`              // 错误信息
	CreatedAt        time.Time      `gorm:"not null;index"`         // 创建时间
	UpdatedAt        time.Time      `gorm:"not null"`               // 更新时间
	CompletedAt      *time.Time     `gorm:"index"`                  // 完成时间
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (m *MappingRun) BeforeCreate(tx *gorm.DB) (err error) {
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	if m.Status == "" {
		m.Status = MappingStatusPending
	}
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (m *MappingRun) BeforeUpdate(tx *gorm.DB) (err error) {
	m.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (MappingRun) TableName() string {
	return "mapping_runs"
}
