package models

import "errors"

var (
	// ErrMappingNotFound 映射记录不存在
	ErrMappingNotFound = errors.New("mapping run not found")

	// ErrInvalidDocumentRef 无效的文档引用
	ErrInvalidDocumentRef = errors.New("invalid document reference")

	// ErrFetchFailed 获取文档元数据失败
	ErrFetchFailed = errors.New("failed to fetch document metadata")

	// ErrAsyncDisabled 未启用任务队列
	ErrAsyncDisabled = errors.New("async mapping is not enabled")

	// ErrReportUnavailable 映射尚未生成报告
	ErrReportUnavailable = errors.New("mapping report is not available")
)
