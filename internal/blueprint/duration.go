package blueprint

import (
	"regexp"
	"strconv"
)

// 匹配 "3 years" / "3 yrs" / "2.5 year" 等年数表达
var yearPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:years?|yrs?)`)

// 匹配 "6 months" / "6 mos" / "6 mo" 等月数表达
var monthPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:months?|mos?)`)

// ParseDuration 将自由文本的时长描述解析为近似年数
// 无法解析时静默返回0；该值只作为排序和去重的辅助信号，不是唯一标识
func ParseDuration(text string) float64 {
	if text == "" {
		return 0
	}

	var years, months float64
	if m := yearPattern.FindStringSubmatch(text); len(m) > 1 {
		years, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := monthPattern.FindStringSubmatch(text); len(m) > 1 {
		months, _ = strconv.ParseFloat(m[1], 64)
	}

	return years + months/12
}
