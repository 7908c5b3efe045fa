package taskqueue

import (
	"encoding/json"
	"time"
)

// TaskType 任务类型
type TaskType string

const (
	// TaskMapRegulations 法规映射任务
	TaskMapRegulations TaskType = "map_regulations"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	// StatusPending 等待处理
	StatusPending TaskStatus = "pending"
	// StatusProcessing 处理中
	StatusProcessing TaskStatus = "processing"
	// StatusCompleted 已完成
	StatusCompleted TaskStatus = "completed"
	// StatusFailed 处理失败
	StatusFailed TaskStatus = "failed"
)

// Task 任务基础结构
type Task struct {
	ID          string          `json:"id"`           // 任务唯一标识符
	Type        TaskType        `json:"type"`         // 任务类型
	MappingID   string          `json:"mapping_id"`   // 关联的映射记录ID
	Status      TaskStatus      `json:"status"`       // 任务状态
	Payload     json.RawMessage `json:"payload"`      // 任务载荷数据
	Result      json.RawMessage `json:"result"`       // 任务结果数据
	Error       string          `json:"error"`        // 错误信息（如果处理失败）
	CreatedAt   time.Time       `json:"created_at"`   // 创建时间
	UpdatedAt   time.Time       `json:"updated_at"`   // 更新时间
	StartedAt   *time.Time      `json:"started_at"`   // 开始处理时间
	CompletedAt *time.Time      `json:"completed_at"` // 完成时间
	Attempts    int             `json:"attempts"`     // 尝试次数
	MaxRetries  int             `json:"max_retries"`  // 最大重试次数
}

// Done 任务是否已结束
func (t *Task) Done() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// MapRegulationsPayload 法规映射任务载荷
type MapRegulationsPayload struct {
	MappingID   string `json:"mapping_id"`   // 映射记录ID
	DocumentURL string `json:"document_url"` // 文档元数据地址
}

// MapRegulationsResult 法规映射任务结果
type MapRegulationsResult struct {
	MappingID        string `json:"mapping_id"`        // 映射记录ID
	ReportURL        string `json:"report_url"`        // 报告地址
	TotalChapters    int    `json:"total_chapters"`    // 分类成功的章节数
	RelevantChapters int    `json:"relevant_chapters"` // 相关章节数
}
