package render

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// MaxListItems 列表最多保留的元素个数
	MaxListItems = 5
	// MaxFallbackLength 对象无法提取标题时字符串化结果的最大长度
	MaxFallbackLength = 100
	// NotSpecified 空值的占位文本
	NotSpecified = "Not specified"
)

// SafeString 将任意元数据值归一化为简短文本
// 列表只保留前5项并用逗号连接；对象优先取title，其次name，否则截断到100个字符；
// nil 返回 "Not specified"。任何输入都不会panic
func SafeString(value any) string {
	switch v := value.(type) {
	case nil:
		return NotSpecified
	case []string:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = item
		}
		return SafeString(items)
	case []any:
		items := v
		if len(items) > MaxListItems {
			items = items[:MaxListItems]
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				parts = append(parts, mapString(m))
			} else {
				parts = append(parts, stringify(item))
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		return mapString(v)
	default:
		return stringify(v)
	}
}

// mapString 对象的归一化规则
func mapString(m map[string]any) string {
	if title, ok := m["title"]; ok {
		return stringify(title)
	}
	if name, ok := m["name"]; ok {
		return stringify(name)
	}
	return truncate(stringify(m), MaxFallbackLength)
}

// stringify 普通字符串化
// 数字保留原始文本，对象和数组使用紧凑JSON（键有序，结果稳定）
func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return "None"
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(v)
	case fmt.Stringer:
		return v.String()
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// truncate 按字符截断，避免切断多字节字符
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
