package extractor

import (
	"regexp"
	"strings"

	"cv-insight-go/internal/types"
)

var (
	emailPattern    = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern    = regexp.MustCompile(`\+?[0-9][0-9\-\s().]{6,}[0-9]`)
	linkedinPattern = regexp.MustCompile(`(?:https?://)?(?:www\.)?linkedin\.com/[^\s,;|]+`)
	urlPattern      = regexp.MustCompile(`https?://[^\s,;|]+`)
)

// NormalizeContact 将提取阶段的联系方式统一为标准化的五字段结构
// 结构化形态原样返回；自由文本形态按邮箱/电话/LinkedIn/网址逐类识别，
// 剩余文本归入所在地
func NormalizeContact(raw types.RawContactInfo) types.ContactInfo {
	if raw.Structured != nil {
		return *raw.Structured
	}
	return parseFreeformContact(raw.Freeform)
}

func parseFreeformContact(text string) types.ContactInfo {
	var contact types.ContactInfo
	if strings.TrimSpace(text) == "" {
		return contact
	}

	remainder := text

	if match := emailPattern.FindString(remainder); match != "" {
		contact.Email = match
		remainder = strings.Replace(remainder, match, "", 1)
	}
	if match := linkedinPattern.FindString(remainder); match != "" {
		contact.LinkedIn = match
		remainder = strings.Replace(remainder, match, "", 1)
	}
	if match := urlPattern.FindString(remainder); match != "" {
		contact.Website = match
		remainder = strings.Replace(remainder, match, "", 1)
	}
	if match := phonePattern.FindString(remainder); match != "" {
		contact.Phone = match
		remainder = strings.Replace(remainder, match, "", 1)
	}

	// 识别完已知类别后，剩余的非空片段视为所在地描述
	var leftover []string
	for _, part := range strings.FieldsFunc(remainder, func(r rune) bool {
		return r == ',' || r == ';' || r == '|' || r == '\n'
	}) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			leftover = append(leftover, trimmed)
		}
	}
	contact.Location = strings.Join(leftover, ", ")

	return contact
}
