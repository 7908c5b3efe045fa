package models

// ReportSummary 报告摘要
type ReportSummary struct {
	TotalChaptersProcessed int `json:"total_chapters_processed"` // 执行完成的章节数（不含被丢弃的任务）
	RelevantChaptersCount  int `json:"relevant_chapters_count"`  // 相关章节数
}

// AggregateReport 一次映射请求的汇总报告
type AggregateReport struct {
	Summary              ReportSummary           `json:"summary"`
	AllMappedIdentifiers []string                `json:"all_mapped_identifiers"` // 展开后的条款标识，可能重复
	RelevantChapters     []*ClassificationResult `json:"relevant_chapters"`      // 相关章节，按完成顺序
}

// NewAggregateReport 创建空报告，列表字段序列化为[]而不是null
func NewAggregateReport() *AggregateReport {
	return &AggregateReport{
		AllMappedIdentifiers: []string{},
		RelevantChapters:     []*ClassificationResult{},
	}
}

// Add 合并一个执行完成的章节结果
func (r *AggregateReport) Add(result *ClassificationResult) {
	r.Summary.TotalChaptersProcessed++
	if !result.IsRelevant() {
		return
	}
	r.RelevantChapters = append(r.RelevantChapters, result)
	r.Summary.RelevantChaptersCount++
	r.AllMappedIdentifiers = append(r.AllMappedIdentifiers, result.Identifiers()...)
}
