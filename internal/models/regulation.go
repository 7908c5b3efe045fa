package models

import "encoding/json"

// Part 法规的一个部分(Part)
type Part struct {
	PartNum   Value     `json:"Part"`     // 部分编号
	PartTitle Value     `json:"Title"`    // 部分标题
	Chapters  []Chapter `json:"chapters"` // 章节列表
}

// Chapter 法规章节
type Chapter struct {
	ChapterNum   Value     `json:"chapter_num"`   // 章节编号
	ChapterTitle Value     `json:"chapter_title"` // 章节标题
	Sections     []Section `json:"sections"`      // 条款列表
}

// Section 章节中的条款
type Section struct {
	ID      Value `json:"id"`      // 条款编号
	Title   Value `json:"title"`   // 条款标题
	Content Value `json:"content"` // 条款正文，原样嵌入提示词
}

// Corpus 完整的法规语料，按Part有序排列
type Corpus []Part

// ParseCorpus 解析法规语料JSON
func ParseCorpus(data []byte) (Corpus, error) {
	var corpus Corpus
	if err := json.Unmarshal(data, &corpus); err != nil {
		return nil, err
	}
	return corpus, nil
}

// ChapterCount 返回语料中章节的总数
func (c Corpus) ChapterCount() int {
	total := 0
	for _, part := range c {
		total += len(part.Chapters)
	}
	return total
}
