package models

import (
	"encoding/json"
)

// ConfidenceLevel 模型给出的置信度
type ConfidenceLevel string

const (
	// ConfidenceHigh 高置信度
	ConfidenceHigh ConfidenceLevel = "high"
	// ConfidenceMedium 中等置信度
	ConfidenceMedium ConfidenceLevel = "medium"
	// ConfidenceLow 低置信度
	ConfidenceLow ConfidenceLevel = "low"
)

// NoneIdentifier 哨兵值，["None"] 表示没有可映射的条款
const NoneIdentifier = "None"

// StatusAuthenticationError 缺少API密钥时的状态值
const StatusAuthenticationError = "authentication_error"

// RelevanceVerdict 通过校验的相关性判定
type RelevanceVerdict struct {
	RelevanceScore     float64         `json:"relevance_score"`     // 相关性分数，0.0-1.0
	RelevanceReasoning string          `json:"relevance_reasoning"` // 判定理由
	ConfidenceLevel    ConfidenceLevel `json:"confidence_level"`    // 置信度
	MappedIdentifiers  []string        `json:"mapped_identifiers"`  // 映射到的条款标识
	IsRelevant         bool            `json:"is_relevant"`         // 是否相关
}

// ClassificationFailure 分类失败记录
// 解析失败时带有RawOutput，缺少凭证时带有Status
type ClassificationFailure struct {
	Error     string `json:"error"`                // 错误信息
	RawOutput string `json:"raw_output,omitempty"` // 模型原始输出
	Status    string `json:"status,omitempty"`     // 失败状态
}

// ClassificationResult 单个章节的分类结果
// Verdict 与 Failure 有且只有一个非空
type ClassificationResult struct {
	ChapterNum string
	PartNum    string
	Verdict    *RelevanceVerdict
	Failure    *ClassificationFailure
}

// NewVerdictResult 创建成功的分类结果
func NewVerdictResult(chapterNum, partNum string, verdict *RelevanceVerdict) *ClassificationResult {
	return &ClassificationResult{
		ChapterNum: chapterNum,
		PartNum:    partNum,
		Verdict:    verdict,
	}
}

// NewParseFailure 创建解析失败的分类结果
func NewParseFailure(chapterNum, partNum, errMsg, rawOutput string) *ClassificationResult {
	return &ClassificationResult{
		ChapterNum: chapterNum,
		PartNum:    partNum,
		Failure: &ClassificationFailure{
			Error:     errMsg,
			RawOutput: rawOutput,
		},
	}
}

// NewAuthFailure 创建缺少凭证的分类结果
func NewAuthFailure(chapterNum, partNum, errMsg string) *ClassificationResult {
	return &ClassificationResult{
		ChapterNum: chapterNum,
		PartNum:    partNum,
		Failure: &ClassificationFailure{
			Error:  errMsg,
			Status: StatusAuthenticationError,
		},
	}
}

// IsRelevant 是否判定为相关，失败记录永远不相关
func (r *ClassificationResult) IsRelevant() bool {
	return r != nil && r.Verdict != nil && r.Verdict.IsRelevant
}

// Identifiers 返回可参与汇总的条款标识
// 不相关的结果以及哨兵列表 ["None"] 都返回nil
func (r *ClassificationResult) Identifiers() []string {
	if !r.IsRelevant() {
		return nil
	}
	ids := r.Verdict.MappedIdentifiers
	if len(ids) == 1 && ids[0] == NoneIdentifier {
		return nil
	}
	return ids
}

// classificationJSON 扁平化的JSON结构
type classificationJSON struct {
	RelevanceScore     *float64        `json:"relevance_score,omitempty"`
	RelevanceReasoning string          `json:"relevance_reasoning,omitempty"`
	ConfidenceLevel    ConfidenceLevel `json:"confidence_level,omitempty"`
	MappedIdentifiers  *[]string       `json:"mapped_identifiers,omitempty"`
	IsRelevant         *bool           `json:"is_relevant,omitempty"`
	Error              string          `json:"error,omitempty"`
	RawOutput          string          `json:"raw_output,omitempty"`
	Status             string          `json:"status,omitempty"`
	ChapterNum         string          `json:"chapter_num"`
	PartNum            string          `json:"part_num"`
}

// MarshalJSON 输出与报告格式一致的扁平JSON
func (r ClassificationResult) MarshalJSON() ([]byte, error) {
	out := classificationJSON{
		ChapterNum: r.ChapterNum,
		PartNum:    r.PartNum,
	}

	switch {
	case r.Verdict != nil:
		v := r.Verdict
		out.RelevanceScore = &v.RelevanceScore
		out.RelevanceReasoning = v.RelevanceReasoning
		out.ConfidenceLevel = v.ConfidenceLevel
		ids := v.MappedIdentifiers
		if ids == nil {
			ids = []string{}
		}
		out.MappedIdentifiers = &ids
		out.IsRelevant = &v.IsRelevant
	case r.Failure != nil:
		out.Error = r.Failure.Error
		out.RawOutput = r.Failure.RawOutput
		out.Status = r.Failure.Status
	}

	return json.Marshal(out)
}

// UnmarshalJSON 解析扁平JSON，带error字段的记录还原为Failure
func (r *ClassificationResult) UnmarshalJSON(data []byte) error {
	var in classificationJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	*r = ClassificationResult{ChapterNum: in.ChapterNum, PartNum: in.PartNum}
	if in.Error != "" {
		r.Failure = &ClassificationFailure{
			Error:     in.Error,
			RawOutput: in.RawOutput,
			Status:    in.Status,
		}
		return nil
	}

	verdict := &RelevanceVerdict{
		RelevanceReasoning: in.RelevanceReasoning,
		ConfidenceLevel:    in.ConfidenceLevel,
	}
	if in.MappedIdentifiers != nil {
		verdict.MappedIdentifiers = *in.MappedIdentifiers
	}
	if in.RelevanceScore != nil {
		verdict.RelevanceScore = *in.RelevanceScore
	}
	if in.IsRelevant != nil {
		verdict.IsRelevant = *in.IsRelevant
	}
	r.Verdict = verdict
	return nil
}
