package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseDocumentMetadata 测试元数据解析
func TestParseDocumentMetadata(t *testing.T) {
	data := []byte(`{
		"file_name": "policy.pdf",
		"ocr_result": {
			"document_title": "Complaints Policy",
			"document_type": "policy",
			"total_pages": 12,
			"summary": null,
			"key_topics": ["complaints", {"name": "vulnerable customers"}],
			"table_of_contents": [
				{"level": 1, "title": "Intro", "page": 1, "summary": "overview",
				 "subsections": [{"title": "Scope", "summary": "who"}, "Definitions"]},
				"Appendix A"
			]
		}
	}`)

	meta, err := ParseDocumentMetadata(data)
	require.NoError(t, err)

	assert.Equal(t, "policy.pdf", meta.FileName.Raw)
	assert.Equal(t, json.Number("12"), meta.TotalPages.Raw)
	assert.True(t, meta.Summary.Valid)
	assert.Nil(t, meta.Summary.Raw)
	assert.Len(t, meta.KeyTopics, 2)

	require.Len(t, meta.TableOfContents, 2)
	first := meta.TableOfContents[0]
	assert.True(t, first.IsStructured())
	assert.Equal(t, "Intro", first.Title.Raw)
	require.Len(t, first.Subsections, 2)
	assert.True(t, first.Subsections[0].IsStructured())
	assert.False(t, first.Subsections[1].IsStructured())
	assert.Equal(t, "Definitions", first.Subsections[1].Raw.Raw)

	second := meta.TableOfContents[1]
	assert.False(t, second.IsStructured())
	assert.Equal(t, "Appendix A", second.Raw.Raw)
}

// TestParseDocumentMetadataMalformed 测试字段类型异常时的降级
func TestParseDocumentMetadataMalformed(t *testing.T) {
	meta, err := ParseDocumentMetadata([]byte(`{"ocr_result": "not an object"}`))
	require.NoError(t, err)
	assert.False(t, meta.FileName.Valid)
	assert.False(t, meta.Title.Valid)
	assert.Empty(t, meta.TableOfContents)

	meta, err = ParseDocumentMetadata([]byte(`{"ocr_result": {"key_topics": "single", "table_of_contents": {"a": 1}}}`))
	require.NoError(t, err)
	assert.Empty(t, meta.KeyTopics)
	assert.Empty(t, meta.TableOfContents)

	_, err = ParseDocumentMetadata([]byte(`not json`))
	assert.Error(t, err)
}

// TestValueOr 测试缺失字段的默认值
func TestValueOr(t *testing.T) {
	var missing Value
	assert.Equal(t, "Unknown", missing.Or("Unknown"))

	null := NewValue(nil)
	assert.Nil(t, null.Or("Unknown"))

	present := NewValue("x")
	assert.Equal(t, "x", present.Or("Unknown"))
}

// TestParseCorpus 测试法规语料解析
func TestParseCorpus(t *testing.T) {
	corpus, err := ParseCorpus([]byte(`[
		{"Part": 1, "Title": "General", "chapters": [
			{"chapter_num": 1, "chapter_title": "Scope", "sections": [{"id": "1", "title": "Application", "content": "This code applies..."}]},
			{"chapter_num": "2", "chapter_title": "Definitions", "sections": []}
		]},
		{"Part": "2", "Title": "Conduct", "chapters": []}
	]`))
	require.NoError(t, err)
	require.Len(t, corpus, 2)
	assert.Equal(t, 2, corpus.ChapterCount())
	assert.Equal(t, json.Number("1"), corpus[0].PartNum.Raw)
	assert.Equal(t, "This code applies...", corpus[0].Chapters[0].Sections[0].Content.Raw)
}
