package handler

import (
	"errors"
	"net/http"

	"github.com/fyerfyer/regulation-mapper/api/middleware"
	"github.com/fyerfyer/regulation-mapper/api/model"
	"github.com/fyerfyer/regulation-mapper/internal/models"
	"github.com/fyerfyer/regulation-mapper/internal/services"
	"github.com/fyerfyer/regulation-mapper/pkg/storage"
	"github.com/fyerfyer/regulation-mapper/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// MappingHandler 法规映射处理器
type MappingHandler struct {
	mappingService *services.MappingService // 映射服务
	logger         *logrus.Logger           // 日志记录器
}

// NewMappingHandler 创建映射处理器
func NewMappingHandler(mappingService *services.MappingService) *MappingHandler {
	return &MappingHandler{
		mappingService: mappingService,
		logger:         middleware.GetLogger(),
	}
}

// Root 服务存活提示
// GET /
func (h *MappingHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, model.RootResponse{Message: "Regulation Mapper API is running"})
}

// MapRegulations 同步执行一次映射，返回报告地址
// POST /map-regulations
func (h *MappingHandler) MapRegulations(c *gin.Context) {
	var req model.MapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid request body", err.Error()))
		return
	}

	h.logger.WithField("url", req.URL).Info("Mapping regulations")

	result, err := h.mappingService.Map(c.Request.Context(), req.URL)
	if err != nil {
		middleware.HandleError(c, mappingError(err))
		return
	}

	c.JSON(http.StatusOK, model.MapRegulationsResponse{
		Status: "success",
		Data:   result.ReportURL,
	})
}

// SubmitMapping 提交异步映射任务
// POST /api/mappings
func (h *MappingHandler) SubmitMapping(c *gin.Context) {
	var req model.MapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid request body", err.Error()))
		return
	}

	mappingID, taskID, err := h.mappingService.Submit(c.Request.Context(), req.URL)
	if err != nil {
		middleware.HandleError(c, mappingError(err))
		return
	}

	c.JSON(http.StatusAccepted, model.NewSuccessResponse(model.MappingSubmitResponse{
		MappingID: mappingID,
		TaskID:    taskID,
		Status:    string(taskqueue.StatusPending),
	}))
}

// GetTaskStatus 查询异步任务状态
// GET /api/tasks/:id
func (h *MappingHandler) GetTaskStatus(c *gin.Context) {
	var req model.MappingIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid task id"))
		return
	}

	task, err := h.mappingService.TaskStatus(c.Request.Context(), req.ID)
	if err != nil {
		if errors.Is(err, taskqueue.ErrTaskNotFound) {
			middleware.HandleError(c, middleware.NewNotFoundError("task not found"))
			return
		}
		middleware.HandleError(c, mappingError(err))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.NewTaskStatusResponse(task)))
}

// ListMappings 分页获取映射记录
// GET /api/mappings
func (h *MappingHandler) ListMappings(c *gin.Context) {
	var req model.MappingListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid query parameters", err.Error()))
		return
	}

	runs, total, err := h.mappingService.ListRuns(req.Offset(), req.GetPageSize(), req.Status)
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("failed to list mappings", err.Error()))
		return
	}

	mappings := make([]model.MappingInfo, 0, len(runs))
	for _, run := range runs {
		mappings = append(mappings, model.NewMappingInfo(run))
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.MappingListResponse{
		Total:    total,
		Page:     req.GetPage(),
		PageSize: req.GetPageSize(),
		Mappings: mappings,
	}))
}

// GetMapping 获取单条映射记录
// GET /api/mappings/:id
func (h *MappingHandler) GetMapping(c *gin.Context) {
	var req model.MappingIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid mapping id"))
		return
	}

	run, err := h.mappingService.GetRun(req.ID)
	if err != nil {
		middleware.HandleError(c, mappingError(err))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.NewMappingInfo(run)))
}

// GetReport 返回映射报告原文
// GET /api/mappings/:id/report
func (h *MappingHandler) GetReport(c *gin.Context) {
	var req model.MappingIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid mapping id"))
		return
	}

	rc, err := h.mappingService.GetReport(c.Request.Context(), req.ID)
	if err != nil {
		middleware.HandleError(c, mappingError(err))
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, -1, "application/json", rc, nil)
}

// DeleteMapping 删除映射记录及其报告
// DELETE /api/mappings/:id
func (h *MappingHandler) DeleteMapping(c *gin.Context) {
	var req model.MappingIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid mapping id"))
		return
	}

	if err := h.mappingService.DeleteRun(c.Request.Context(), req.ID); err != nil {
		middleware.HandleError(c, mappingError(err))
		return
	}

	h.logger.WithField("mapping_id", req.ID).Info("Mapping deleted")

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.MappingDeleteResponse{
		Success:   true,
		MappingID: req.ID,
	}))
}

// mappingError 将服务层错误转换为应用错误
func mappingError(err error) middleware.AppError {
	switch {
	case errors.Is(err, models.ErrInvalidDocumentRef):
		return middleware.NewValidationError("invalid document url", err.Error())
	case errors.Is(err, models.ErrFetchFailed):
		return middleware.NewUpstreamError("failed to fetch document metadata", err.Error())
	case errors.Is(err, models.ErrMappingNotFound):
		return middleware.NewNotFoundError("mapping not found")
	case errors.Is(err, models.ErrReportUnavailable), errors.Is(err, storage.ErrObjectNotFound):
		return middleware.NewNotFoundError("report not available")
	case errors.Is(err, models.ErrAsyncDisabled):
		return middleware.NewUnavailableError("async mapping is not enabled")
	default:
		return middleware.NewInternalError("mapping failed", err.Error())
	}
}
