package classifier

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaName 结构化输出时提交给模型的schema名称
const SchemaName = "relevance_verdict"

// verdictSchema 相关性判定的JSON Schema
// 五个字段全部必填，不允许额外字段
var verdictSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "relevance_score": {"type": "number", "minimum": 0, "maximum": 1},
    "relevance_reasoning": {"type": "string"},
    "confidence_level": {"type": "string", "enum": ["high", "medium", "low"]},
    "mapped_identifiers": {"type": "array", "items": {"type": "string"}},
    "is_relevant": {"type": "boolean"}
  },
  "required": ["relevance_score", "relevance_reasoning", "confidence_level", "mapped_identifiers", "is_relevant"],
  "additionalProperties": false
}`)

// VerdictSchema 返回判定schema的副本
func VerdictSchema() json.RawMessage {
	out := make(json.RawMessage, len(verdictSchema))
	copy(out, verdictSchema)
	return out
}

// compileSchema 编译判定schema
func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("verdict.json", bytes.NewReader(verdictSchema)); err != nil {
		return nil, fmt.Errorf("failed to load verdict schema: %w", err)
	}
	schema, err := compiler.Compile("verdict.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile verdict schema: %w", err)
	}
	return schema, nil
}
