package classifier

import (
	"fmt"

	"github.com/fyerfyer/regulation-mapper/internal/llm"
)

// SystemPrompt 分类请求的系统角色提示
const SystemPrompt = "You are an expert in Irish consumer protection compliance analysis."

const userPromptTemplate = `Analyze document relevance to specific CPC Ireland chapter.

DOCUMENT DETAILS:
%s

CPC IRELAND CHAPTER:
%s

RELEVANCE ASSESSMENT:
Rate the relevance of this document to the CPC Ireland chapter (0.0-1.0):
- 0.0: No relevance - document doesn't relate to this chapter's requirements
- 0.3-0.4: Minimal relevance - some tangential connection
- 0.5-0.6: Moderate relevance - document addresses some chapter requirements
- 0.7-0.8: High relevance - document directly addresses key chapter requirements
- 0.9-1.0: Very high relevance - document primarily focused on chapter requirements

Set is_relevant to true only when relevance_score is 0.5 or higher.

FORMAT OF MAPPED IDENTIFIERS:
For mapped_identifiers, use structured identifiers in format: "section-section_id_chapter-chapter_num_part-part_num"
Example: "section-16_chapter-1_part-1" for section 16 in chapter 1 of part 1
If multiple sections are relevant, list them as separate array items.
If no specific sections are relevant, use ["None"].

REQUIRED OUTPUT FORMAT (JSON only, no other text):
{
  "relevance_score": 0.0,
  "relevance_reasoning": "reason here",
  "confidence_level": "high" | "medium" | "low",
  "mapped_identifiers": ["section-16_chapter-1_part-1", "section-17_chapter-1_part-1"] or ["None"],
  "is_relevant": true | false
}`

// BuildPrompt 生成用户提示词，两段文本原样嵌入
func BuildPrompt(documentText, chapterText string) string {
	return fmt.Sprintf(userPromptTemplate, documentText, chapterText)
}

// BuildMessages 生成一次分类请求的完整消息列表
func BuildMessages(documentText, chapterText string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: SystemPrompt},
		{Role: llm.RoleUser, Content: BuildPrompt(documentText, chapterText)},
	}
}
