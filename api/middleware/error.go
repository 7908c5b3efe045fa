package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/fyerfyer/regulation-mapper/api/model"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// 定义应用中的错误类型常量
const (
	ErrorTypeValidation  = "VALIDATION_ERROR"  // 输入验证错误
	ErrorTypeNotFound    = "NOT_FOUND_ERROR"   // 资源不存在错误
	ErrorTypeInternal    = "INTERNAL_ERROR"    // 内部服务器错误
	ErrorTypeUpstream    = "UPSTREAM_ERROR"    // 上游服务错误
	ErrorTypeUnavailable = "UNAVAILABLE_ERROR" // 功能未启用
)

// AppError 应用错误结构体
type AppError struct {
	Type    string // 错误类型
	Message string // 错误消息
	Details string // 详细错误信息
	Code    int    // 错误代码
}

// Error 实现error接口的方法
func (e AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewValidationError 创建输入验证错误
func NewValidationError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeValidation,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadRequest,
	}
}

// NewNotFoundError 创建资源不存在错误
func NewNotFoundError(message string) AppError {
	return AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

// NewInternalError 创建内部服务器错误
func NewInternalError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusInternalServerError,
	}
}

// NewUpstreamError 创建上游服务错误，如文档元数据获取失败
func NewUpstreamError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeUpstream,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadGateway,
	}
}

// NewUnavailableError 创建功能未启用错误
func NewUnavailableError(message string) AppError {
	return AppError{
		Type:    ErrorTypeUnavailable,
		Message: message,
		Code:    http.StatusServiceUnavailable,
	}
}

// ErrorMiddleware 统一错误处理中间件
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 捕获 panic
		defer func() {
			if err := recover(); err != nil {
				// 获取堆栈跟踪信息
				stack := string(debug.Stack())

				// 记录错误日志
				log.WithFields(logrus.Fields{
					"error": err,
					"stack": stack,
					"path":  c.Request.URL.Path,
				}).Error("Panic recovered in API request")

				// 构造客户端响应
				errorResponse := model.NewErrorResponse(
					http.StatusInternalServerError,
					"An unexpected error occurred",
				)

				// 在开发环境中可以返回详细错误
				if gin.Mode() == gin.DebugMode {
					errorResponse.Message = fmt.Sprintf("Panic: %v", err)
				}

				// 添加请求跟踪ID
				traceID, exists := c.Get("TraceID")
				if exists {
					errorResponse.TraceID = traceID.(string)
				}

				// 中止请求处理并返回错误响应
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse)
			}
		}()

		// 处理请求
		c.Next()

		// 检查是否已经有错误被处理
		if len(c.Errors) > 0 {
			// 取最后一个错误进行处理
			err := c.Errors.Last().Err

			// 获取跟踪ID
			traceID := ""
			if traceIDValue, exists := c.Get("TraceID"); exists {
				traceID = traceIDValue.(string)
			}

			// AppError 按类型返回对应状态码，其他错误作为内部错误处理
			var appErr AppError
			if asAppError(err, &appErr) {
				log.WithFields(logrus.Fields{
					"error_type": appErr.Type,
					"details":    appErr.Details,
					"trace_id":   traceID,
					"path":       c.Request.URL.Path,
				}).Error(appErr.Message)

				errResp := model.NewErrorResponse(appErr.Code, appErr.Message)
				errResp.TraceID = traceID
				c.JSON(appErr.Code, errResp)
			} else {
				log.WithFields(logrus.Fields{
					"trace_id": traceID,
					"path":     c.Request.URL.Path,
				}).Error(err.Error())

				errResp := model.NewErrorResponse(
					http.StatusInternalServerError,
					"Internal server error",
				)
				errResp.TraceID = traceID

				// 在开发环境下显示具体错误信息
				if gin.Mode() == gin.DebugMode {
					errResp.Message = err.Error()
				}

				c.JSON(http.StatusInternalServerError, errResp)
			}

			// 中止继续处理
			c.Abort()
		}
	}
}

// HandleError 在处理器中使用的错误处理辅助函数
func HandleError(c *gin.Context, err error) {
	// 添加错误到上下文中
	_ = c.Error(err)
}

// asAppError 从错误链中取出AppError，支持值和指针两种形式
func asAppError(err error, target *AppError) bool {
	if errors.As(err, target) {
		return true
	}
	var ptr *AppError
	if errors.As(err, &ptr) && ptr != nil {
		*target = *ptr
		return true
	}
	return false
}
