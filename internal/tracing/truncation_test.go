package tracing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPII(t *testing.T) {
	assert.Equal(t, "", MaskPII(""))
	assert.Equal(t, "*", MaskPII("a"))
	assert.Equal(t, "张*", MaskPII("张三"))
	assert.Equal(t, "王*明", MaskPII("王小明"))
	assert.Equal(t, "my***************om", MaskPII("myemail@example.com"))
	assert.Equal(t, "13*******78", MaskPII("13812345678"))
}

func TestSafeAttributeValue(t *testing.T) {
	// 敏感字段名触发掩码
	masked := SafeAttributeValue("user.email", "jane@example.com", DefaultMaxLength)
	assert.NotContains(t, masked, "jane@example")
	assert.True(t, strings.HasPrefix(masked, "ja"))

	// 非敏感字段只做截断
	long := strings.Repeat("x", 300)
	truncated := SafeAttributeValue("db.table", long, DefaultMaxLength)
	assert.LessOrEqual(t, len([]rune(truncated)), DefaultMaxLength)
	assert.Contains(t, truncated, "...")
}

func TestSafeCVContent(t *testing.T) {
	short := "简短的CV文本"
	assert.Equal(t, short, SafeCVContent(short))

	long := strings.Repeat("经验丰富的工程师。", 100)
	safe := SafeCVContent(long)
	assert.LessOrEqual(t, len([]rune(safe)), MaxCVContentLength)
	assert.Contains(t, safe, "...")
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", TruncateString("abc", 10))
	assert.Equal(t, "ab", TruncateString("abcdef", 2))
	assert.Equal(t, "ab...ij", TruncateString("abcdefghij", 7))
}
