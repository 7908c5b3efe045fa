package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Queue 定义任务队列的接口
// 负责任务的入队、获取状态和结果等操作
type Queue interface {
	// Enqueue 将任务加入队列
	Enqueue(ctx context.Context, taskType TaskType, mappingID string, payload interface{}) (string, error)

	// GetTask 获取任务信息
	GetTask(ctx context.Context, taskID string) (*Task, error)

	// GetTasksByMapping 获取映射记录相关的所有任务
	GetTasksByMapping(ctx context.Context, mappingID string) ([]*Task, error)

	// WaitForTask 等待任务完成并返回结果
	// timeout为0表示不设置超时
	WaitForTask(ctx context.Context, taskID string, timeout time.Duration) (*Task, error)

	// DeleteTask 删除任务
	DeleteTask(ctx context.Context, taskID string) error

	// UpdateTaskStatus 更新任务状态和结果
	UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, result interface{}, errorMsg string) error

	// NotifyTaskUpdate 通知任务状态已更新
	NotifyTaskUpdate(ctx context.Context, taskID string) error

	// Close 关闭队列连接
	Close() error
}

// Handler 任务处理器接口
type Handler interface {
	// ProcessTask 处理任务，返回值会作为任务结果保存
	ProcessTask(ctx context.Context, task *Task) (interface{}, error)

	// GetTaskTypes 返回此处理器支持的任务类型
	GetTaskTypes() []TaskType
}

// HandlerFunc 将普通函数适配为Handler
type HandlerFunc func(ctx context.Context, task *Task) (interface{}, error)

// ProcessTask 调用函数本身
func (f HandlerFunc) ProcessTask(ctx context.Context, task *Task) (interface{}, error) {
	return f(ctx, task)
}

// GetTaskTypes HandlerFunc不声明任务类型，由注册时指定
func (f HandlerFunc) GetTaskTypes() []TaskType {
	return nil
}

// Worker 工作者接口
// 负责运行一组Handler来处理队列中的任务
type Worker interface {
	// RegisterHandler 注册任务处理器
	RegisterHandler(taskType TaskType, handler Handler)

	// Start 启动工作者，开始处理任务
	Start() error

	// Stop 停止工作者
	Stop()
}

// Config 队列配置
type Config struct {
	RedisAddr     string         // Redis地址
	RedisPassword string         // Redis密码
	RedisDB       int            // Redis数据库
	Concurrency   int            // 并发处理任务数
	RetryLimit    int            // 最大重试次数
	RetryDelay    time.Duration  // 重试延迟
	Queues        map[string]int // 队列名称到优先级的映射
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		RedisAddr:   "localhost:6379",
		RedisDB:     0,
		Concurrency: 2,
		RetryLimit:  1,
		RetryDelay:  time.Minute,
		Queues: map[string]int{
			"default": 1,
		},
	}
}

// TaskInfo 表示任务的元信息
// 用于传递给客户端的简化任务信息
type TaskInfo struct {
	ID          string          `json:"id"`                     // 任务唯一标识符
	Type        TaskType        `json:"type"`                   // 任务类型
	MappingID   string          `json:"mapping_id"`             // 关联的映射记录ID
	Status      TaskStatus      `json:"status"`                 // 任务状态
	Result      json.RawMessage `json:"result,omitempty"`       // 任务结果
	Error       string          `json:"error,omitempty"`        // 错误信息
	CreatedAt   time.Time       `json:"created_at"`             // 创建时间
	StartedAt   *time.Time      `json:"started_at,omitempty"`   // 开始处理时间
	CompletedAt *time.Time      `json:"completed_at,omitempty"` // 完成时间
	Progress    float64         `json:"progress"`               // 处理进度（0-100）
}

// Factory 队列工厂函数类型
// 用于创建不同类型的队列实现
type Factory func(cfg *Config) (Queue, error)

// NewTaskInfo 从Task创建TaskInfo
func NewTaskInfo(task *Task) *TaskInfo {
	return &TaskInfo{
		ID:          task.ID,
		Type:        task.Type,
		MappingID:   task.MappingID,
		Status:      task.Status,
		Result:      task.Result,
		Error:       task.Error,
		CreatedAt:   task.CreatedAt,
		StartedAt:   task.StartedAt,
		CompletedAt: task.CompletedAt,
		Progress:    getTaskProgress(task),
	}
}

// getTaskProgress 根据任务状态计算进度
func getTaskProgress(task *Task) float64 {
	switch task.Status {
	case StatusProcessing:
		return 50.0
	case StatusCompleted, StatusFailed:
		return 100.0
	default:
		return 0.0
	}
}

// ErrTaskNotFound 任务未找到错误
var ErrTaskNotFound = TaskError("task not found")

// ErrTaskTimeout 任务超时错误
var ErrTaskTimeout = TaskError("task timed out")

// ErrInvalidPayload 无效的任务载荷错误
var ErrInvalidPayload = TaskError("invalid task payload")

// TaskError 任务错误类型
type TaskError string

// Error 实现error接口
func (e TaskError) Error() string {
	return string(e)
}

// permanentError 不应重试的任务错误
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent 标记错误为不可重试，工作者收到后直接将任务置为失败
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent 判断错误是否被标记为不可重试
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// retryStateKey 上下文中重试信息的键
type retryStateKey struct{}

// retryState 当前执行的重试信息
type retryState struct {
	retried  int
	maxRetry int
}

// WithRetryState 在上下文中记录已重试次数和最大重试次数
// 工作者在调用Handler前设置
func WithRetryState(ctx context.Context, retried, maxRetry int) context.Context {
	return context.WithValue(ctx, retryStateKey{}, retryState{retried: retried, maxRetry: maxRetry})
}

// WillRetry 判断任务失败后是否还会被重新执行
// 不可重试的错误和没有剩余重试次数时返回false
func WillRetry(ctx context.Context, err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}
	state, ok := ctx.Value(retryStateKey{}).(retryState)
	if !ok {
		return false
	}
	return state.retried < state.maxRetry
}

// MarshalPayload 将任务载荷序列化为JSON
func MarshalPayload(payload interface{}) (json.RawMessage, error) {
	if payload == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(payload)
}

// UnmarshalPayload 将JSON反序列化为任务载荷
func UnmarshalPayload(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return ErrInvalidPayload
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
