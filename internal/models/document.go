package models

import (
	"encoding/json"
)

// DocumentMetadata 待映射文档的元数据
// 由文档引用(URL)解析得到，只在一次映射请求内存活
type DocumentMetadata struct {
	FileName        Value      // 文件名
	Title           Value      // 文档标题
	Type            Value      // 文档类型
	TotalPages      Value      // 总页数
	Summary         Value      // 文档摘要
	KeyTopics       []Value    // 关键主题
	TableOfContents []TocEntry // 目录
}

// documentPayload 元数据接口返回的原始结构
type documentPayload struct {
	FileName  Value           `json:"file_name"`
	OCRResult json.RawMessage `json:"ocr_result"`
}

// ocrPayload OCR结果部分
type ocrPayload struct {
	DocumentTitle   Value           `json:"document_title"`
	DocumentType    Value           `json:"document_type"`
	TotalPages      Value           `json:"total_pages"`
	Summary         Value           `json:"summary"`
	KeyTopics       json.RawMessage `json:"key_topics"`
	TableOfContents json.RawMessage `json:"table_of_contents"`
}

// ParseDocumentMetadata 解析元数据接口返回的JSON
// 字段类型不符时尽量降级保留，而不是整体失败
func ParseDocumentMetadata(data []byte) (*DocumentMetadata, error) {
	var payload documentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	// ocr_result 缺失或不是对象时，各字段按缺失处理
	var ocr ocrPayload
	_ = json.Unmarshal(payload.OCRResult, &ocr)

	meta := &DocumentMetadata{
		FileName:   payload.FileName,
		Title:      ocr.DocumentTitle,
		Type:       ocr.DocumentType,
		TotalPages: ocr.TotalPages,
		Summary:    ocr.Summary,
	}

	// key_topics 不是数组时按空列表处理
	var topics []Value
	if err := json.Unmarshal(ocr.KeyTopics, &topics); err == nil {
		meta.KeyTopics = topics
	}

	var toc []TocEntry
	if err := json.Unmarshal(ocr.TableOfContents, &toc); err == nil {
		meta.TableOfContents = toc
	}

	return meta, nil
}

// TocEntry 目录条目
// 非对象的条目（例如纯字符串）保存在Raw中，渲染为普通列表项
type TocEntry struct {
	Level       Value      // 层级
	Title       Value      // 标题
	Page        Value      // 页码
	Summary     Value      // 摘要
	Subsections []TocEntry // 子条目
	Raw         *Value     // 非对象条目的原始值
}

// tocPayload 目录条目的JSON结构
type tocPayload struct {
	Level       Value           `json:"level"`
	Title       Value           `json:"title"`
	Page        Value           `json:"page"`
	Summary     Value           `json:"summary"`
	Subsections json.RawMessage `json:"subsections"`
}

// UnmarshalJSON 实现json.Unmarshaler接口
func (e *TocEntry) UnmarshalJSON(data []byte) error {
	var raw Value
	if err := raw.UnmarshalJSON(data); err != nil {
		return err
	}

	if !raw.IsObject() {
		*e = TocEntry{Raw: &raw}
		return nil
	}

	var p tocPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	*e = TocEntry{
		Level:   p.Level,
		Title:   p.Title,
		Page:    p.Page,
		Summary: p.Summary,
	}

	// subsections 不是数组时忽略
	var subs []TocEntry
	if err := json.Unmarshal(p.Subsections, &subs); err == nil {
		e.Subsections = subs
	}
	return nil
}

// IsStructured 是否为结构化（对象）条目
func (e TocEntry) IsStructured() bool {
	return e.Raw == nil
}
