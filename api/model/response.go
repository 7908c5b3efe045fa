package model

import (
	"encoding/json"
	"time"

	"github.com/fyerfyer/regulation-mapper/internal/models"
	"github.com/fyerfyer/regulation-mapper/pkg/taskqueue"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// MapRegulationsResponse 同步映射接口的响应，data为报告地址
type MapRegulationsResponse struct {
	Status string `json:"status"`
	Data   string `json:"data"`
}

// RootResponse 根路径响应
type RootResponse struct {
	Message string `json:"message"`
}

// MappingSubmitResponse 异步映射提交响应
type MappingSubmitResponse struct {
	MappingID string `json:"mapping_id"` // 映射记录ID
	TaskID    string `json:"task_id"`    // 任务ID
	Status    string `json:"status"`     // 初始状态
}

// MappingInfo 映射记录信息
type MappingInfo struct {
	ID               string          `json:"id"`                     // 映射记录ID
	DocumentURL      string          `json:"document_url"`           // 文档引用
	Status           string          `json:"status"`                 // 状态
	ReportURL        string          `json:"report_url,omitempty"`   // 报告地址
	TotalChapters    int             `json:"total_chapters"`         // 执行完成的章节数
	RelevantChapters int             `json:"relevant_chapters"`      // 相关章节数
	Summary          json.RawMessage `json:"summary,omitempty"`      // 报告摘要
	TaskID           string          `json:"task_id,omitempty"`      // 异步任务ID
	Error            string          `json:"error,omitempty"`        // 错误信息
	CreatedAt        time.Time       `json:"created_at"`             // 创建时间
	UpdatedAt        time.Time       `json:"updated_at"`             // 更新时间
	CompletedAt      *time.Time      `json:"completed_at,omitempty"` // 完成时间
}

// NewMappingInfo 将映射记录转换为响应结构
func NewMappingInfo(run *models.MappingRun) MappingInfo {
	info := MappingInfo{
		ID:               run.ID,
		DocumentURL:      run.DocumentURL,
		Status:           string(run.Status),
		ReportURL:        run.ReportURL,
		TotalChapters:    run.TotalChapters,
		RelevantChapters: run.RelevantChapters,
		TaskID:           run.TaskID,
		Error:            run.Error,
		CreatedAt:        run.CreatedAt,
		UpdatedAt:        run.UpdatedAt,
		CompletedAt:      run.CompletedAt,
	}
	if len(run.Summary) > 0 {
		info.Summary = json.RawMessage(run.Summary)
	}
	return info
}

// MappingListResponse 映射记录列表响应
type MappingListResponse struct {
	Total    int64         `json:"total"`     // 总数量
	Page     int           `json:"page"`      // 当前页码
	PageSize int           `json:"page_size"` // 每页大小
	Mappings []MappingInfo `json:"mappings"`  // 映射记录列表
}

// MappingDeleteResponse 映射记录删除响应
type MappingDeleteResponse struct {
	Success   bool   `json:"success"`    // 是否成功
	MappingID string `json:"mapping_id"` // 映射记录ID
}

// TaskStatusResponse 异步任务状态响应
type TaskStatusResponse struct {
	*taskqueue.TaskInfo
	ReportURL string `json:"report_url,omitempty"` // 任务完成后的报告地址
}

// NewTaskStatusResponse 根据任务生成状态响应
func NewTaskStatusResponse(task *taskqueue.Task) TaskStatusResponse {
	resp := TaskStatusResponse{TaskInfo: taskqueue.NewTaskInfo(task)}
	if task.Status == taskqueue.StatusCompleted && len(task.Result) > 0 {
		var result taskqueue.MapRegulationsResult
		if err := json.Unmarshal(task.Result, &result); err == nil {
			resp.ReportURL = result.ReportURL
		}
	}
	return resp
}
