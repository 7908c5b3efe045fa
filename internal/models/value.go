package models

import (
	"bytes"
	"encoding/json"
)

// Value 任意JSON值
// 元数据和法规语料中的字段类型并不可靠（字符串、数字、对象、数组都可能出现），
// 解码时原样保留，渲染时再统一做文本归一化
type Value struct {
	Raw   any  // 解码后的原始值，数字保持为json.Number
	Valid bool // JSON中是否出现了该字段
}

// NewValue 用给定的原始值构造Value
func NewValue(raw any) Value {
	return Value{Raw: raw, Valid: true}
}

// UnmarshalJSON 实现json.Unmarshaler接口，任何合法JSON都不会解码失败
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	v.Raw = raw
	v.Valid = true
	return nil
}

// MarshalJSON 实现json.Marshaler接口
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Raw)
}

// Or 字段缺失时返回默认值
// 与原始数据保持一致：显式的null不会被默认值替换
func (v Value) Or(def any) any {
	if !v.Valid {
		return def
	}
	return v.Raw
}

// IsObject 判断是否为JSON对象
func (v Value) IsObject() bool {
	_, ok := v.Raw.(map[string]any)
	return ok
}
