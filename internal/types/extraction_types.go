package types

import (
	"encoding/json"
	"fmt"
)

// ExtractedExperience LLM从单份CV中提取的一段工作经历
type ExtractedExperience struct {
	Role        string `json:"role"`
	Company     string `json:"company"`
	Duration    string `json:"duration"`
	Description string `json:"description,omitempty"`
}

// ExtractedEducation LLM从单份CV中提取的一条教育经历
type ExtractedEducation struct {
	Degree      string `json:"degree"`
	Institution string `json:"institution"`
	Year        string `json:"year"`
}

// RawContactInfo 联系方式的标签联合：结构化对象或遗留的自由文本
// 旧版提取器返回整段字符串，新版返回结构化对象，两种形态在边界处统一解析
type RawContactInfo struct {
	Structured *ContactInfo
	Freeform   string
}

// UnmarshalJSON 同时接受JSON对象和JSON字符串两种形态
func (r *RawContactInfo) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return fmt.Errorf("解析遗留联系方式文本失败: %w", err)
		}
		r.Freeform = text
		return nil
	}
	var structured ContactInfo
	if err := json.Unmarshal(data, &structured); err != nil {
		return fmt.Errorf("解析结构化联系方式失败: %w", err)
	}
	r.Structured = &structured
	return nil
}

// MarshalJSON 按当前持有的形态序列化
func (r RawContactInfo) MarshalJSON() ([]byte, error) {
	if r.Structured != nil {
		return json.Marshal(r.Structured)
	}
	return json.Marshal(r.Freeform)
}

// IsEmpty 两种形态均无内容时为真
// 空的结构化对象（五个字段全空）同样视为无内容
func (r *RawContactInfo) IsEmpty() bool {
	if r.Structured != nil {
		return r.Structured.FieldCount() == 0
	}
	return r.Freeform == ""
}

// ExtractedCVInfo 提取协作方产出的单份CV结构化快照
// 合并引擎的唯一输入；联系方式在进入合并逻辑前必须已标准化为 ContactInfo
type ExtractedCVInfo struct {
	Name        string                `json:"name,omitempty"`
	ContactInfo RawContactInfo        `json:"contact_info"`
	Skills      []string              `json:"skills,omitempty"`
	Experience  []ExtractedExperience `json:"experience,omitempty"`
	Education   []ExtractedEducation  `json:"education,omitempty"`
}
