package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	// 任务键前缀
	taskKeyPrefix = "task:"
	// 映射任务集合键前缀
	mappingTasksKeyPrefix = "mapping_tasks:"
	// 任务状态通知频道前缀
	taskStatusChannelPrefix = "task_status:"
	// 默认队列名
	defaultQueueName = "default"
	// 默认任务过期时间（7天）
	defaultTaskExpiry = 7 * 24 * time.Hour
)

// RedisQueue Redis任务队列实现
type RedisQueue struct {
	client      *asynq.Client    // 用于添加任务
	inspector   *asynq.Inspector // 用于检查任务状态
	redisClient *redis.Client    // Redis客户端，用于存储任务数据
	cfg         *Config          // 队列配置
	logger      *logrus.Logger   // 日志记录器
}

// NewRedisQueue 创建Redis任务队列实例
func NewRedisQueue(cfg *Config) (*RedisQueue, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	opt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// 测试Redis连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &RedisQueue{
		client:      asynq.NewClient(opt),
		inspector:   asynq.NewInspector(opt),
		redisClient: redisClient,
		cfg:         cfg,
		logger:      logger,
	}, nil
}

// SetLogger 替换队列使用的日志记录器
func (q *RedisQueue) SetLogger(logger *logrus.Logger) {
	if logger != nil {
		q.logger = logger
	}
}

// Enqueue 将任务加入队列
func (q *RedisQueue) Enqueue(ctx context.Context, taskType TaskType, mappingID string, payload interface{}) (string, error) {
	taskID := uuid.New().String()

	payloadBytes, err := MarshalPayload(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := time.Now()
	task := &Task{
		ID:         taskID,
		Type:       taskType,
		MappingID:  mappingID,
		Status:     StatusPending,
		Payload:    payloadBytes,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: q.cfg.RetryLimit,
	}

	if err := q.saveTaskToRedis(ctx, task); err != nil {
		return "", fmt.Errorf("failed to save task to redis: %w", err)
	}

	// asynq任务只携带任务ID，任务数据从Redis读取
	asynqTask := asynq.NewTask(string(taskType), []byte(taskID))
	_, err = q.client.EnqueueContext(ctx, asynqTask,
		asynq.TaskID(taskID),
		asynq.Queue(defaultQueueName),
		asynq.MaxRetry(q.cfg.RetryLimit),
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	q.logger.WithFields(logrus.Fields{
		"task_id":    taskID,
		"task_type":  taskType,
		"mapping_id": mappingID,
	}).Info("Task enqueued successfully")

	return taskID, nil
}

// GetTask 获取任务信息
func (q *RedisQueue) GetTask(ctx context.Context, taskID string) (*Task, error) {
	data, err := q.redisClient.Get(ctx, taskKeyPrefix+taskID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task from redis: %w", err)
	}

	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task data: %w", err)
	}

	return &task, nil
}

// GetTasksByMapping 获取映射记录相关的所有任务
func (q *RedisQueue) GetTasksByMapping(ctx context.Context, mappingID string) ([]*Task, error) {
	taskIDs, err := q.redisClient.SMembers(ctx, mappingTasksKeyPrefix+mappingID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping tasks: %w", err)
	}

	tasks := make([]*Task, 0, len(taskIDs))
	for _, taskID := range taskIDs {
		task, err := q.GetTask(ctx, taskID)
		if err != nil {
			if errors.Is(err, ErrTaskNotFound) {
				// 任务可能已过期被删除，跳过
				continue
			}
			return nil, err
		}
		tasks = append(tasks, task)
	}

	return tasks, nil
}

// WaitForTask 等待任务完成并返回结果
// 同时监听状态通知和定时轮询，两者任一发现任务结束即返回
func (q *RedisQueue) WaitForTask(ctx context.Context, taskID string, timeout time.Duration) (*Task, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Done() {
		return task, nil
	}

	pubsub := q.redisClient.Subscribe(ctx, taskStatusChannelPrefix+taskID)
	defer pubsub.Close()
	updates := pubsub.Channel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ErrTaskTimeout
		case <-updates:
		case <-ticker.C:
		}

		task, err := q.GetTask(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ErrTaskTimeout
			}
			return nil, err
		}
		if task.Done() {
			return task, nil
		}
	}
}

// DeleteTask 删除任务
func (q *RedisQueue) DeleteTask(ctx context.Context, taskID string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	if task.MappingID != "" {
		if err := q.redisClient.SRem(ctx, mappingTasksKeyPrefix+task.MappingID, taskID).Err(); err != nil {
			return fmt.Errorf("failed to remove task from mapping tasks: %w", err)
		}
	}

	if err := q.redisClient.Del(ctx, taskKeyPrefix+taskID).Err(); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	// 已在处理中的任务无法从asynq队列删除
	if err := q.inspector.DeleteTask(defaultQueueName, taskID); err != nil {
		q.logger.WithError(err).WithField("task_id", taskID).Debug("Task not removed from asynq queue")
	}

	return nil
}

// Close 关闭队列连接
func (q *RedisQueue) Close() error {
	if err := q.client.Close(); err != nil {
		return err
	}
	if err := q.inspector.Close(); err != nil {
		return err
	}
	return q.redisClient.Close()
}

// saveTaskToRedis 将任务信息保存到Redis
func (q *RedisQueue) saveTaskToRedis(ctx context.Context, task *Task) error {
	taskData, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	if err := q.redisClient.Set(ctx, taskKeyPrefix+task.ID, taskData, defaultTaskExpiry).Err(); err != nil {
		return fmt.Errorf("failed to save task data: %w", err)
	}

	if task.MappingID != "" {
		key := mappingTasksKeyPrefix + task.MappingID
		if err := q.redisClient.SAdd(ctx, key, task.ID).Err(); err != nil {
			return fmt.Errorf("failed to add task to mapping tasks: %w", err)
		}
		q.redisClient.Expire(ctx, key, defaultTaskExpiry)
	}

	return nil
}

// UpdateTaskStatus 更新任务状态
func (q *RedisQueue) UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, result interface{}, errMsg string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	now := time.Now()
	task.Status = status
	task.UpdatedAt = now

	switch status {
	case StatusProcessing:
		task.Attempts++
		if task.StartedAt == nil {
			task.StartedAt = &now
		}
	case StatusCompleted, StatusFailed:
		task.CompletedAt = &now
	}

	if result != nil {
		resultBytes, err := MarshalPayload(result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		task.Result = resultBytes
	}

	if errMsg != "" {
		task.Error = errMsg
	}

	return q.saveTaskToRedis(ctx, task)
}

// NotifyTaskUpdate 通知任务状态更新
func (q *RedisQueue) NotifyTaskUpdate(ctx context.Context, taskID string) error {
	return q.redisClient.Publish(ctx, taskStatusChannelPrefix+taskID, "updated").Err()
}

// RedisWorker Redis工作者实现
type RedisWorker struct {
	server   *asynq.Server
	queue    *RedisQueue
	handlers map[TaskType]Handler
	logger   *logrus.Logger
}

// NewRedisWorker 创建Redis工作者
func NewRedisWorker(queue *RedisQueue, cfg *Config) *RedisWorker {
	if cfg == nil {
		cfg = queue.cfg
	}

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      cfg.Queues,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return cfg.RetryDelay
			},
			Logger: queue.logger,
		},
	)

	return &RedisWorker{
		server:   server,
		queue:    queue,
		handlers: make(map[TaskType]Handler),
		logger:   queue.logger,
	}
}

// RegisterHandler 注册任务处理器
func (w *RedisWorker) RegisterHandler(taskType TaskType, handler Handler) {
	w.handlers[taskType] = handler
}

// Start 启动工作者
func (w *RedisWorker) Start() error {
	mux := asynq.NewServeMux()

	for taskType, handler := range w.handlers {
		h := handler
		mux.HandleFunc(string(taskType), func(ctx context.Context, task *asynq.Task) error {
			return w.handle(ctx, h, string(task.Payload()))
		})

		w.logger.WithField("task_type", taskType).Info("Registered handler for task type")
	}

	return w.server.Start(mux)
}

// Stop 停止工作者
func (w *RedisWorker) Stop() {
	w.server.Shutdown()
}

// handle 执行单个任务并维护任务状态
func (w *RedisWorker) handle(ctx context.Context, h Handler, taskID string) error {
	logger := w.logger.WithField("task_id", taskID)

	taskInfo, err := w.queue.GetTask(ctx, taskID)
	if err != nil {
		logger.WithError(err).Error("Failed to get task info")
		if errors.Is(err, ErrTaskNotFound) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	if err := w.queue.UpdateTaskStatus(ctx, taskID, StatusProcessing, nil, ""); err != nil {
		logger.WithError(err).Error("Failed to update task status to processing")
	}
	w.notify(ctx, taskID)

	ctx = withAsynqRetryState(ctx)
	result, err := h.ProcessTask(ctx, taskInfo)
	if err != nil {
		// 还有重试机会时保持pending状态
		status := StatusFailed
		if WillRetry(ctx, err) {
			status = StatusPending
		}
		if updateErr := w.queue.UpdateTaskStatus(ctx, taskID, status, nil, err.Error()); updateErr != nil {
			logger.WithError(updateErr).Error("Failed to update task status after failure")
		}
		w.notify(ctx, taskID)

		logger.WithError(err).WithField("status", status).Warn("Task processing failed")
		if IsPermanent(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	if err := w.queue.UpdateTaskStatus(ctx, taskID, StatusCompleted, result, ""); err != nil {
		logger.WithError(err).Error("Failed to update task status after completion")
	}
	w.notify(ctx, taskID)

	logger.Info("Task processed successfully")
	return nil
}

func (w *RedisWorker) notify(ctx context.Context, taskID string) {
	if err := w.queue.NotifyTaskUpdate(ctx, taskID); err != nil {
		w.logger.WithError(err).WithField("task_id", taskID).Warn("Failed to publish task update")
	}
}

// withAsynqRetryState 将asynq上下文中的重试信息转存为WillRetry可读的形式
// 已经带有重试信息的上下文保持不变
func withAsynqRetryState(ctx context.Context) context.Context {
	if _, ok := ctx.Value(retryStateKey{}).(retryState); ok {
		return ctx
	}
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return ctx
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return ctx
	}
	return WithRetryState(ctx, retried, maxRetry)
}

func init() {
	RegisterQueueFactory("redis", func(cfg *Config) (Queue, error) {
		return NewRedisQueue(cfg)
	})
}

// RegisterQueueFactory 注册队列工厂函数
func RegisterQueueFactory(name string, factory Factory) {
	queueFactories[name] = factory
}

// 队列工厂函数映射
var queueFactories = make(map[string]Factory)

// NewQueue 根据名称创建队列实例
func NewQueue(name string, cfg *Config) (Queue, error) {
	factory, exists := queueFactories[name]
	if !exists {
		return nil, fmt.Errorf("unknown queue implementation: %s", name)
	}
	return factory(cfg)
}
