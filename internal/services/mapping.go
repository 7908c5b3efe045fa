package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fyerfyer/regulation-mapper/internal/corpus"
	"github.com/fyerfyer/regulation-mapper/internal/document"
	"github.com/fyerfyer/regulation-mapper/internal/models"
	"github.com/fyerfyer/regulation-mapper/internal/render"
	"github.com/fyerfyer/regulation-mapper/internal/repository"
	"github.com/fyerfyer/regulation-mapper/pkg/storage"
	"github.com/fyerfyer/regulation-mapper/pkg/taskqueue"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// MappingResult 一次映射的结果
type MappingResult struct {
	MappingID    string                  // 映射记录ID
	ReportURL    string                  // 报告地址
	ReportObject string                  // 报告对象名
	Report       *models.AggregateReport // 汇总报告
}

// MappingService 法规映射服务
// 负责协调文档获取、渲染、分类汇总和报告发布
type MappingService struct {
	fetcher    document.Fetcher             // 文档元数据获取
	corpus     corpus.Loader                // 法规语料
	aggregator *Aggregator                  // 分类汇总
	publisher  *Publisher                   // 报告发布
	repo       repository.MappingRepository // 映射记录，可为空
	taskQueue  taskqueue.Queue              // 任务队列，可为空
	logger     *logrus.Logger               // 日志记录器
}

// MappingOption 映射服务配置选项
type MappingOption func(*MappingService)

// WithMappingRepository 设置映射记录仓储
func WithMappingRepository(repo repository.MappingRepository) MappingOption {
	return func(s *MappingService) {
		s.repo = repo
	}
}

// WithTaskQueue 设置任务队列，启用异步映射
func WithTaskQueue(queue taskqueue.Queue) MappingOption {
	return func(s *MappingService) {
		s.taskQueue = queue
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) MappingOption {
	return func(s *MappingService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewMappingService 创建映射服务
func NewMappingService(
	fetcher document.Fetcher,
	loader corpus.Loader,
	aggregator *Aggregator,
	publisher *Publisher,
	opts ...MappingOption,
) *MappingService {
	srv := &MappingService{
		fetcher:    fetcher,
		corpus:     loader,
		aggregator: aggregator,
		publisher:  publisher,
		logger:     logrus.New(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	return srv
}

// AsyncEnabled 是否支持异步映射
func (s *MappingService) AsyncEnabled() bool {
	return s.taskQueue != nil
}

// Map 同步执行一次映射并返回报告地址
func (s *MappingService) Map(ctx context.Context, documentURL string) (*MappingResult, error) {
	if err := document.ValidateRef(documentURL); err != nil {
		return nil, err
	}

	run := &models.MappingRun{
		ID:          uuid.New().String(),
		DocumentURL: documentURL,
		Status:      models.MappingStatusProcessing,
	}
	s.createRun(run)

	result, err := s.execute(ctx, run.ID, documentURL)
	s.finishRun(run.ID, result, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Submit 提交异步映射任务，返回映射记录ID和任务ID
func (s *MappingService) Submit(ctx context.Context, documentURL string) (string, string, error) {
	if s.taskQueue == nil {
		return "", "", models.ErrAsyncDisabled
	}
	if err := document.ValidateRef(documentURL); err != nil {
		return "", "", err
	}

	run := &models.MappingRun{
		ID:          uuid.New().String(),
		DocumentURL: documentURL,
		Status:      models.MappingStatusPending,
	}
	s.createRun(run)

	payload := taskqueue.MapRegulationsPayload{MappingID: run.ID, DocumentURL: documentURL}
	taskID, err := s.taskQueue.Enqueue(ctx, taskqueue.TaskMapRegulations, run.ID, payload)
	if err != nil {
		s.finishRun(run.ID, nil, err)
		return "", "", fmt.Errorf("failed to enqueue mapping task: %w", err)
	}

	if s.repo != nil {
		run.TaskID = taskID
		if err := s.repo.Update(run); err != nil {
			s.logger.WithError(err).WithField("mapping_id", run.ID).Warn("Failed to record task id")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"mapping_id":   run.ID,
		"task_id":      taskID,
		"document_url": documentURL,
	}).Info("Mapping task submitted")

	return run.ID, taskID, nil
}

// ProcessTask 处理异步映射任务，实现taskqueue.Handler
func (s *MappingService) ProcessTask(ctx context.Context, task *taskqueue.Task) (interface{}, error) {
	var payload taskqueue.MapRegulationsPayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return nil, taskqueue.Permanent(err)
	}
	if payload.MappingID == "" {
		payload.MappingID = task.MappingID
	}

	if err := document.ValidateRef(payload.DocumentURL); err != nil {
		s.finishRun(payload.MappingID, nil, err)
		return nil, taskqueue.Permanent(err)
	}

	if s.repo != nil {
		if err := s.repo.UpdateStatus(payload.MappingID, models.MappingStatusProcessing, ""); err != nil {
			s.logger.WithError(err).WithField("mapping_id", payload.MappingID).Warn("Failed to mark mapping as processing")
		}
	}

	result, err := s.execute(ctx, payload.MappingID, payload.DocumentURL)
	if err != nil {
		if taskqueue.WillRetry(ctx, err) {
			// 任务会被重新执行，记录保持pending
			s.retryRun(payload.MappingID, err)
		} else {
			s.finishRun(payload.MappingID, nil, err)
		}
		return nil, err
	}
	s.finishRun(payload.MappingID, result, nil)

	return taskqueue.MapRegulationsResult{
		MappingID:        result.MappingID,
		ReportURL:        result.ReportURL,
		TotalChapters:    result.Report.Summary.TotalChaptersProcessed,
		RelevantChapters: result.Report.Summary.RelevantChaptersCount,
	}, nil
}

// GetTaskTypes 返回支持的任务类型
func (s *MappingService) GetTaskTypes() []taskqueue.TaskType {
	return []taskqueue.TaskType{taskqueue.TaskMapRegulations}
}

// TaskStatus 查询异步任务状态
func (s *MappingService) TaskStatus(ctx context.Context, taskID string) (*taskqueue.Task, error) {
	if s.taskQueue == nil {
		return nil, models.ErrAsyncDisabled
	}
	return s.taskQueue.GetTask(ctx, taskID)
}

// GetRun 获取映射记录
func (s *MappingService) GetRun(id string) (*models.MappingRun, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrMappingNotFound, id)
	}
	return s.repo.GetByID(id)
}

// ListRuns 分页列出映射记录
func (s *MappingService) ListRuns(offset, limit int, status string) ([]*models.MappingRun, int64, error) {
	if s.repo == nil {
		return []*models.MappingRun{}, 0, nil
	}

	filters := map[string]interface{}{}
	if status != "" {
		filters["status"] = status
	}
	return s.repo.List(offset, limit, filters)
}

// GetReport 读取映射报告内容
func (s *MappingService) GetReport(ctx context.Context, id string) (io.ReadCloser, error) {
	run, err := s.GetRun(id)
	if err != nil {
		return nil, err
	}
	if run.ReportObject == "" {
		return nil, fmt.Errorf("%w: %s", models.ErrReportUnavailable, id)
	}
	return s.publisher.storage.Get(ctx, run.ReportObject)
}

// DeleteRun 删除映射记录以及对应的报告和任务
func (s *MappingService) DeleteRun(ctx context.Context, id string) error {
	run, err := s.GetRun(id)
	if err != nil {
		return err
	}

	if run.ReportObject != "" {
		err := s.publisher.storage.Delete(ctx, run.ReportObject)
		if err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			return fmt.Errorf("failed to delete report: %w", err)
		}
	}

	if s.taskQueue != nil {
		tasks, err := s.taskQueue.GetTasksByMapping(ctx, id)
		if err == nil {
			for _, task := range tasks {
				// 任务可能已经过期
				_ = s.taskQueue.DeleteTask(ctx, task.ID)
			}
		}
	}

	return s.repo.Delete(id)
}

// execute 执行完整的映射流程：获取文档、渲染、分类汇总、发布
func (s *MappingService) execute(ctx context.Context, mappingID, documentURL string) (*MappingResult, error) {
	start := time.Now()
	logger := s.logger.WithFields(logrus.Fields{
		"mapping_id":   mappingID,
		"document_url": documentURL,
	})

	meta, err := s.fetcher.Fetch(ctx, documentURL)
	if err != nil {
		logger.WithError(err).Error("Failed to fetch document metadata")
		return nil, err
	}

	documentText := render.Document(meta).String()

	chapters, err := s.corpus.Load(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to load chapter corpus")
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}

	report := s.aggregator.Aggregate(ctx, documentText, chapters)

	info, err := s.publisher.publish(ctx, report)
	if err != nil {
		logger.WithError(err).Error("Failed to publish report")
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"report_url":        info.URL,
		"total_chapters":    report.Summary.TotalChaptersProcessed,
		"relevant_chapters": report.Summary.RelevantChaptersCount,
		"duration_ms":       time.Since(start).Milliseconds(),
	}).Info("Mapping completed")

	return &MappingResult{
		MappingID:    mappingID,
		ReportURL:    info.URL,
		ReportObject: info.Name,
		Report:       report,
	}, nil
}

// createRun 保存映射记录，记录失败不影响映射本身
func (s *MappingService) createRun(run *models.MappingRun) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Create(run); err != nil {
		s.logger.WithError(err).WithField("mapping_id", run.ID).Warn("Failed to create mapping record")
	}
}

// retryRun 将等待重试的映射记录置回pending并保留本次错误
func (s *MappingService) retryRun(id string, runErr error) {
	if s.repo == nil {
		return
	}
	if err := s.repo.UpdateStatus(id, models.MappingStatusPending, runErr.Error()); err != nil {
		s.logger.WithError(err).WithField("mapping_id", id).Warn("Failed to mark mapping as pending retry")
	}
}

// finishRun 根据执行结果更新映射记录
func (s *MappingService) finishRun(id string, result *MappingResult, runErr error) {
	if s.repo == nil {
		return
	}

	logger := s.logger.WithField("mapping_id", id)
	if runErr != nil {
		if err := s.repo.UpdateStatus(id, models.MappingStatusFailed, runErr.Error()); err != nil {
			logger.WithError(err).Warn("Failed to mark mapping as failed")
		}
		return
	}

	run, err := s.repo.GetByID(id)
	if err != nil {
		logger.WithError(err).Warn("Failed to load mapping record")
		return
	}

	now := time.Now()
	run.Status = models.MappingStatusCompleted
	run.ReportURL = result.ReportURL
	run.ReportObject = result.ReportObject
	run.TotalChapters = result.Report.Summary.TotalChaptersProcessed
	run.RelevantChapters = result.Report.Summary.RelevantChaptersCount
	run.Error = ""
	run.CompletedAt = &now
	if summary, err := json.Marshal(result.Report.Summary); err == nil {
		run.Summary = datatypes.JSON(summary)
	}

	if err := s.repo.Update(run); err != nil {
		logger.WithError(err).Warn("Failed to save mapping result")
	}
}
