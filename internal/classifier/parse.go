package classifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/fyerfyer/regulation-mapper/internal/models"
)

const codeFence = "```"

// StripCodeFences 去掉模型输出外层的markdown代码块
// 去掉首尾空白后以 ``` 开头时，取第一个换行之后到最后一个 ``` 之前的内容；
// 不满足条件时原样返回
func StripCodeFences(text string) string {
	if !strings.HasPrefix(strings.TrimSpace(text), codeFence) {
		return text
	}

	start := strings.Index(text, "\n") + 1
	end := strings.LastIndex(text, codeFence)
	if start > 0 && end > start {
		return strings.TrimSpace(text[start:end])
	}
	return text
}

// parseVerdict 严格解析模型输出
// JSON解析、schema校验、类型解码任一步失败都返回错误
func parseVerdict(schema *jsonschema.Schema, text string) (*models.RelevanceVerdict, error) {
	body := StripCodeFences(text)

	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("verdict does not match schema: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.DisallowUnknownFields()

	var verdict models.RelevanceVerdict
	if err := dec.Decode(&verdict); err != nil {
		return nil, fmt.Errorf("failed to decode verdict: %w", err)
	}
	return &verdict, nil
}
