package render

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/regulation-mapper/internal/models"
)

func TestSafeString(t *testing.T) {
	t.Run("Nil", func(t *testing.T) {
		assert.Equal(t, "Not specified", SafeString(nil))
	})

	t.Run("ListOfTitledObjects", func(t *testing.T) {
		items := []any{}
		for _, title := range []string{"A", "B", "C", "D", "E", "F", "G"} {
			items = append(items, map[string]any{"title": title})
		}
		assert.Equal(t, "A, B, C, D, E", SafeString(items))
	})

	t.Run("MixedList", func(t *testing.T) {
		items := []any{"plain", map[string]any{"name": "named"}, json.Number("3"), nil}
		assert.Equal(t, "plain, named, 3, None", SafeString(items))
	})

	t.Run("StringList", func(t *testing.T) {
		assert.Equal(t, "a, b", SafeString([]string{"a", "b"}))
	})

	t.Run("ObjectPrefersTitle", func(t *testing.T) {
		assert.Equal(t, "T", SafeString(map[string]any{"title": "T", "name": "N"}))
		assert.Equal(t, "N", SafeString(map[string]any{"name": "N"}))
	})

	t.Run("ObjectFallbackTruncated", func(t *testing.T) {
		long := strings.Repeat("x", 300)
		out := SafeString(map[string]any{"body": long})
		assert.Len(t, []rune(out), MaxFallbackLength)
		assert.True(t, strings.HasPrefix(out, `{"body":"xxx`))
	})

	t.Run("Scalars", func(t *testing.T) {
		assert.Equal(t, "hello", SafeString("hello"))
		assert.Equal(t, "42", SafeString(json.Number("42")))
		assert.Equal(t, "1.5", SafeString(1.5))
		assert.Equal(t, "true", SafeString(true))
		assert.Equal(t, "7", SafeString(7))
	})
}

func loadMetadata(t *testing.T, raw string) *models.DocumentMetadata {
	t.Helper()
	meta, err := models.ParseDocumentMetadata([]byte(raw))
	require.NoError(t, err)
	return meta
}

func TestDocument(t *testing.T) {
	meta := loadMetadata(t, `{
		"file_name": "terms.pdf",
		"ocr_result": {
			"document_title": "Terms of Business",
			"document_type": "Policy",
			"total_pages": 12,
			"summary": "Customer terms",
			"key_topics": ["fees", {"title": "complaints"}],
			"table_of_contents": [
				{
					"level": 1,
					"title": "Intro",
					"page": 2,
					"summary": "Overview",
					"subsections": [
						{"title": "Scope", "summary": "Who it covers", "subsections": ["Definitions"]},
						"Contact"
					]
				},
				"Appendix"
			]
		}
	}`)

	out := Document(meta)
	require.True(t, out.OK())

	expected := strings.Join([]string{
		"<document>",
		"  <file_name>terms.pdf</file_name>",
		"  <title>Terms of Business</title>",
		"  <type>Policy</type>",
		"  <total_pages>12</total_pages>",
		"  <summary>Customer terms</summary>",
		"  <key_topics>",
		"    <topic>fees</topic>",
		"    <topic>complaints</topic>",
		"  </key_topics>",
		"  <table_of_contents>",
		`    <section level="1" page="2">`,
		"      <title>Intro</title>",
		"      <summary>Overview</summary>",
		"      <subsections>",
		"        <subsection>",
		"          <title>Scope</title>",
		"          <summary>Who it covers</summary>",
		"          <subsections>",
		"            <subsection>Definitions</subsection>",
		"          </subsections>",
		"        </subsection>",
		"        <subsection>Contact</subsection>",
		"      </subsections>",
		"    </section>",
		"    <item>Appendix</item>",
		"  </table_of_contents>",
		"</document>",
	}, "\n")
	assert.Equal(t, expected, out.String())

	// 重复渲染结果一致
	assert.Equal(t, out.String(), Document(meta).String())
}

func TestDocumentDefaults(t *testing.T) {
	meta := loadMetadata(t, `{"ocr_result": {"summary": null, "table_of_contents": "not a list"}}`)

	out := Document(meta).String()
	assert.Contains(t, out, "<file_name>Unknown</file_name>")
	assert.Contains(t, out, "<title>Unknown</title>")
	assert.Contains(t, out, "<total_pages>N/A</total_pages>")
	assert.Contains(t, out, "<summary>Not specified</summary>")
	assert.Contains(t, out, "<item>No table of contents available</item>")
}

func TestDocumentNil(t *testing.T) {
	out := Document(nil)
	assert.False(t, out.OK())
	assert.JSONEq(t, `{"error": "document metadata is nil"}`, out.String())
}

// explosive 字符串化时panic的元数据值
type explosive struct{}

func (explosive) String() string { panic("boom") }

// TestDocumentRecoversPanic 渲染中的panic转为错误记录
func TestDocumentRecoversPanic(t *testing.T) {
	meta := loadMetadata(t, `{"file_name": "a.pdf"}`)
	meta.KeyTopics = []models.Value{models.NewValue("ok"), models.NewValue(explosive{})}

	out := Document(meta)
	require.False(t, out.OK())
	assert.EqualError(t, out.Err, "render failed: boom")
	assert.JSONEq(t, `{"error": "render failed: boom"}`, out.String())
}

// TestChapterRecoversPanic 条款正文渲染panic时返回错误记录
func TestChapterRecoversPanic(t *testing.T) {
	chapter := models.Chapter{
		ChapterNum:   models.NewValue(json.Number("3")),
		ChapterTitle: models.NewValue("Disclosure"),
		Sections: []models.Section{
			{ID: models.NewValue("20"), Content: models.NewValue(explosive{})},
		},
	}

	out := Chapter(chapter, models.NewValue("1"), models.NewValue("Preliminary"))
	require.False(t, out.OK())

	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(out.String()), &body))
	assert.Equal(t, "render failed: boom", body["error"])
}

func TestChapter(t *testing.T) {
	corpus, err := models.ParseCorpus([]byte(`[
		{
			"Part": "1",
			"Title": "Preliminary",
			"chapters": [
				{
					"chapter_num": 2,
					"chapter_title": "Complaints",
					"sections": [
						{"id": "16", "title": "Handling", "content": "A regulated entity must..."},
						{"content": ["a", "b", "c", "d", "e", "f"]}
					]
				}
			]
		}
	]`))
	require.NoError(t, err)
	part := corpus[0]

	out := Chapter(part.Chapters[0], part.PartNum, part.PartTitle)
	require.True(t, out.OK())

	expected := strings.Join([]string{
		"<regulations>",
		`  <part name="1" title="Preliminary">`,
		`    <chapter number="2" title="Complaints">`,
		`      <section id="16" title="Handling">`,
		"        <content>A regulated entity must...</content>",
		"      </section>",
		`      <section id="unknown_section" title="Unknown Section">`,
		"        <content>a, b, c, d, e</content>",
		"      </section>",
		"    </chapter>",
		"  </part>",
		"</regulations>",
	}, "\n")
	assert.Equal(t, expected, out.String())
}

func TestChapterMissingPart(t *testing.T) {
	out := Chapter(models.Chapter{}, models.Value{}, models.Value{})
	assert.Contains(t, out.String(), `<part name="None" title="None">`)
	assert.Contains(t, out.String(), `<chapter number="Unknown" title="Unknown Chapter">`)
}

func TestIdentifier(t *testing.T) {
	assert.Equal(t, "3", Identifier(models.NewValue(json.Number("3")), "Unknown"))
	assert.Equal(t, "Unknown", Identifier(models.Value{}, "Unknown"))
}
