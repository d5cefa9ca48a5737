package blueprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{"纯年数", "3 years", 3.0},
		{"单数年", "1 year", 1.0},
		{"缩写yr", "2 yrs", 2.0},
		{"纯月数", "6 months", 0.5},
		{"缩写mo", "3 mos", 0.25},
		{"年加月", "2 years 3 months", 2.25},
		{"大小写混合", "2 Years 6 MONTHS", 2.5},
		{"小数年", "1.5 years", 1.5},
		{"无空格", "3years", 3.0},
		{"无法解析", "since 2019", 0},
		{"空字符串", "", 0},
		{"纯乱码", "!!??", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, ParseDuration(tt.input), 1e-9)
		})
	}
}

func TestParseDurationNeverNegative(t *testing.T) {
	inputs := []string{"", "0 years", "0 months", "garbage", "-5", "many years ago"}
	for _, input := range inputs {
		assert.GreaterOrEqual(t, ParseDuration(input), 0.0, "输入: %q", input)
	}
}
