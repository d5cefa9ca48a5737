// Package extractor 将CV原始文本转换为结构化提取结果
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"cv-insight-go/internal/blueprint"
	"cv-insight-go/internal/logger"
	"cv-insight-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
)

// CVExtractor CV文本结构化提取接口
type CVExtractor interface {
	ExtractCVInfo(ctx context.Context, text string) (*types.ExtractedCVInfo, error)
}

// LLMCVExtractor 使用LLM从CV文本提取结构化信息
type LLMCVExtractor struct {
	llmModel    model.ToolCallingChatModel
	callTimeout time.Duration
	maxRetries  int
	retryDelay  time.Duration
}

// LLMExtractorOption 提取器配置选项
type LLMExtractorOption func(*LLMCVExtractor)

// WithCallTimeout 设置单次LLM调用超时
func WithCallTimeout(timeout time.Duration) LLMExtractorOption {
	return func(e *LLMCVExtractor) {
		if timeout > 0 {
			e.callTimeout = timeout
		}
	}
}

// WithMaxRetries 设置可重试错误的最大重试次数
func WithMaxRetries(retries int) LLMExtractorOption {
	return func(e *LLMCVExtractor) {
		if retries >= 0 {
			e.maxRetries = retries
		}
	}
}

// NewLLMCVExtractor 创建LLM提取器
func NewLLMCVExtractor(llmModel model.ToolCallingChatModel, options ...LLMExtractorOption) *LLMCVExtractor {
	e := &LLMCVExtractor{
		llmModel:    llmModel,
		callTimeout: 60 * time.Second,
		maxRetries:  2,
		retryDelay:  2 * time.Second,
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

const extractionSystemPrompt = `你是一个专业的简历解析专家，从简历文本中提取结构化信息。

核心任务：
1. 提取候选人姓名。
2. 提取联系方式：邮箱、电话、所在地、LinkedIn、个人网站。
3. 提取技能列表：每项技能为一个独立字符串。
4. 提取工作经历：角色、公司、时长（保留原文，如"2 years 3 months"）、职责描述。
5. 提取教育经历：学位、院校、年份。

重要指令：
- 信息缺失处理：缺失的字段设为空字符串或空数组，请勿编造信息。
- 时长保留原文：不要把"2 years"换算成数字，原样输出。
- 技能拆分：合并在一行的技能（如"Python, SQL, Docker"）拆分为独立条目。

严格按以下JSON格式输出，不要输出任何其他内容：
{
  "name": "string",
  "contact_info": {
    "email": "string",
    "phone": "string",
    "location": "string",
    "linkedin": "string",
    "website": "string"
  },
  "skills": ["string"],
  "experience": [
    { "role": "string", "company": "string", "duration": "string", "description": "string" }
  ],
  "education": [
    { "degree": "string", "institution": "string", "year": "string" }
  ]
}`

// ExtractCVInfo 调用LLM提取结构化CV信息
// LLM返回无法解析或完全为空的结果时返回包装了 ErrInvalidExtraction 的错误
func (e *LLMCVExtractor) ExtractCVInfo(ctx context.Context, text string) (*types.ExtractedCVInfo, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: CV文本为空", blueprint.ErrInvalidExtraction)
	}

	response, err := e.callLLM(ctx, extractionSystemPrompt, text)
	if err != nil {
		return nil, fmt.Errorf("LLM调用失败: %w", err)
	}

	extraction, err := parseExtractionResponse(response)
	if err != nil {
		return nil, err
	}

	logger.Ctx(ctx).Debug().
		Str("name", extraction.Name).
		Int("skills", len(extraction.Skills)).
		Int("experience", len(extraction.Experience)).
		Int("education", len(extraction.Education)).
		Msg("CV结构化提取完成")

	return extraction, nil
}

// callLLM 带指数退避重试的LLM调用
func (e *LLMCVExtractor) callLLM(ctx context.Context, systemContent, userContent string) (string, error) {
	messages := []*einoschema.Message{
		{Role: einoschema.System, Content: systemContent},
		{Role: einoschema.User, Content: userContent},
	}

	retryDelay := e.retryDelay
	var response *einoschema.Message
	var err error

	for retry := 0; retry <= e.maxRetries; retry++ {
		if retry > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("上下文已取消: %w", ctx.Err())
			case <-time.After(retryDelay):
				retryDelay *= 2
				logger.Ctx(ctx).Warn().Int("retry", retry).Msg("重试LLM调用")
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		response, err = e.llmModel.Generate(callCtx, messages)
		cancel()

		if err == nil {
			break
		}
		if !isRetryableError(err) || retry >= e.maxRetries {
			return "", fmt.Errorf("LLM Generate failed: %w", err)
		}
	}

	return response.Content, nil
}

// isRetryableError 判断错误是否属于瞬时网络故障
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host")
}

// parseExtractionResponse 解析LLM响应并做最低限度的结构校验
func parseExtractionResponse(response string) (*types.ExtractedCVInfo, error) {
	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return nil, fmt.Errorf("%w: 无法从LLM响应中提取有效的JSON", blueprint.ErrInvalidExtraction)
	}

	var result types.ExtractedCVInfo
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return nil, fmt.Errorf("%w: 解析JSON失败: %v", blueprint.ErrInvalidExtraction, err)
	}

	// 完全空的提取结果视为无效，避免污染蓝图处理计数
	if result.Name == "" && len(result.Skills) == 0 &&
		len(result.Experience) == 0 && len(result.Education) == 0 &&
		result.ContactInfo.IsEmpty() {
		return nil, fmt.Errorf("%w: 提取结果不含任何有效字段", blueprint.ErrInvalidExtraction)
	}

	return &result, nil
}

var jsonFencePattern = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

// extractJSON 从LLM响应中提取JSON文本
// 优先匹配```json代码块，回退到花括号配对扫描
func extractJSON(text string) string {
	matches := jsonFencePattern.FindStringSubmatch(text)
	if len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}

	level := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			level++
		case '}':
			level--
			if level == 0 {
				return strings.TrimSpace(text[start : i+1])
			}
		}
	}
	return ""
}
