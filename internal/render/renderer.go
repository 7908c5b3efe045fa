package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyerfyer/regulation-mapper/internal/models"
)

// Rendered 渲染结果
// 渲染失败时Err非空，String()返回 {"error": ...} 记录代替正文
type Rendered struct {
	Text string
	Err  error
}

// OK 渲染是否成功
func (r Rendered) OK() bool {
	return r.Err == nil
}

// String 返回可直接嵌入提示词的文本
func (r Rendered) String() string {
	if r.Err == nil {
		return r.Text
	}
	data, err := json.Marshal(map[string]string{"error": r.Err.Error()})
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, r.Err.Error())
	}
	return string(data)
}

// guard 将渲染过程中的panic转换为错误记录
func guard(out *Rendered) {
	if rec := recover(); rec != nil {
		*out = Rendered{Err: fmt.Errorf("render failed: %v", rec)}
	}
}

// Document 将文档元数据渲染为标签树文本
// 字段顺序固定，同一份元数据重复渲染结果完全一致
func Document(meta *models.DocumentMetadata) (out Rendered) {
	defer guard(&out)

	if meta == nil {
		return Rendered{Err: fmt.Errorf("document metadata is nil")}
	}

	var b strings.Builder
	b.WriteString("<document>\n")
	fmt.Fprintf(&b, "  <file_name>%s</file_name>\n", SafeString(meta.FileName.Or("Unknown")))
	fmt.Fprintf(&b, "  <title>%s</title>\n", SafeString(meta.Title.Or("Unknown")))
	fmt.Fprintf(&b, "  <type>%s</type>\n", SafeString(meta.Type.Or("Unknown")))
	fmt.Fprintf(&b, "  <total_pages>%s</total_pages>\n", SafeString(meta.TotalPages.Or("N/A")))
	fmt.Fprintf(&b, "  <summary>%s</summary>\n", SafeString(meta.Summary.Or("Unknown")))

	b.WriteString("  <key_topics>\n")
	for _, topic := range meta.KeyTopics {
		fmt.Fprintf(&b, "    <topic>%s</topic>\n", SafeString(topic.Raw))
	}
	b.WriteString("  </key_topics>\n")

	b.WriteString("  <table_of_contents>\n")
	if len(meta.TableOfContents) > 0 {
		for _, entry := range meta.TableOfContents {
			writeTocEntry(&b, entry)
		}
	} else {
		b.WriteString("    <item>No table of contents available</item>\n")
	}
	b.WriteString("  </table_of_contents>\n")

	b.WriteString("</document>")
	return Rendered{Text: b.String()}
}

// writeTocEntry 渲染一级目录条目
func writeTocEntry(b *strings.Builder, entry models.TocEntry) {
	if !entry.IsStructured() {
		fmt.Fprintf(b, "    <item>%s</item>\n", SafeString(entry.Raw.Raw))
		return
	}

	fmt.Fprintf(b, "    <section level=\"%s\" page=\"%s\">\n",
		stringify(entry.Level.Or(1)), SafeString(entry.Page.Or("N/A")))
	fmt.Fprintf(b, "      <title>%s</title>\n", SafeString(entry.Title.Or("Unknown")))
	fmt.Fprintf(b, "      <summary>%s</summary>\n", SafeString(entry.Summary.Or("No summary")))
	writeSubsections(b, entry.Subsections, "      ")
	b.WriteString("    </section>\n")
}

// writeSubsections 递归渲染子目录
func writeSubsections(b *strings.Builder, subs []models.TocEntry, indent string) {
	if len(subs) == 0 {
		return
	}

	fmt.Fprintf(b, "%s<subsections>\n", indent)
	inner := indent + "  "
	for _, sub := range subs {
		if !sub.IsStructured() {
			fmt.Fprintf(b, "%s<subsection>%s</subsection>\n", inner, SafeString(sub.Raw.Raw))
			continue
		}
		fmt.Fprintf(b, "%s<subsection>\n", inner)
		fmt.Fprintf(b, "%s  <title>%s</title>\n", inner, SafeString(sub.Title.Or("Unknown")))
		fmt.Fprintf(b, "%s  <summary>%s</summary>\n", inner, SafeString(sub.Summary.Or("No summary")))
		writeSubsections(b, sub.Subsections, inner+"  ")
		fmt.Fprintf(b, "%s</subsection>\n", inner)
	}
	fmt.Fprintf(b, "%s</subsections>\n", indent)
}

// Chapter 将一个章节及其所属Part渲染为标签树文本
// 条款正文原样嵌入（仅受SafeString的截断规则约束）
func Chapter(chapter models.Chapter, partNum, partTitle models.Value) (out Rendered) {
	defer guard(&out)

	var b strings.Builder
	b.WriteString("<regulations>\n")
	fmt.Fprintf(&b, "  <part name=\"%s\" title=\"%s\">\n",
		stringify(partNum.Or("None")), SafeString(partTitle.Or("None")))
	fmt.Fprintf(&b, "    <chapter number=\"%s\" title=\"%s\">\n",
		stringify(chapter.ChapterNum.Or("Unknown")), SafeString(chapter.ChapterTitle.Or("Unknown Chapter")))

	for _, section := range chapter.Sections {
		fmt.Fprintf(&b, "      <section id=\"%s\" title=\"%s\">\n",
			stringify(section.ID.Or("unknown_section")), SafeString(section.Title.Or("Unknown Section")))
		fmt.Fprintf(&b, "        <content>%s</content>\n", SafeString(section.Content.Or("")))
		b.WriteString("      </section>\n")
	}

	b.WriteString("    </chapter>\n")
	b.WriteString("  </part>\n")
	b.WriteString("</regulations>")
	return Rendered{Text: b.String()}
}

// Identifier 将编号类字段转换为标识文本，用于日志和分类结果
func Identifier(v models.Value, def string) string {
	return stringify(v.Or(def))
}
