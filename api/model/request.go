package model

// PaginationRequest 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1"`           // 当前页码，从1开始
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,min=1"` // 每页记录数
}

// GetPage 获取页码，默认为1
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 获取每页记录数，默认为10，最大为100
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return 10
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// Offset 返回分页偏移量
func (p *PaginationRequest) Offset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

// MapRequest 映射请求，url为文档元数据地址
type MapRequest struct {
	URL string `json:"url" binding:"required"`
}

// MappingIDRequest 映射记录ID路径参数
type MappingIDRequest struct {
	ID string `uri:"id" binding:"required"`
}

// MappingListRequest 映射记录列表请求
type MappingListRequest struct {
	PaginationRequest
	Status string `form:"status" json:"status" binding:"omitempty,oneof=pending processing completed failed"`
}
