package extractor

import (
	"context"
	"errors"
	"testing"
	"time"

	"cv-insight-go/internal/blueprint"
	"cv-insight-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockChatModel 返回预设响应的聊天模型
type mockChatModel struct {
	response  string
	err       error
	callCount int
	failTimes int // 前N次调用返回err，之后返回response
}

func (m *mockChatModel) Generate(ctx context.Context, in []*einoschema.Message, opts ...model.Option) (*einoschema.Message, error) {
	m.callCount++
	if m.err != nil && (m.failTimes == 0 || m.callCount <= m.failTimes) {
		return nil, m.err
	}
	return &einoschema.Message{Role: einoschema.Assistant, Content: m.response}, nil
}

func (m *mockChatModel) Stream(ctx context.Context, in []*einoschema.Message, opts ...model.Option) (*einoschema.StreamReader[*einoschema.Message], error) {
	return nil, errors.New("stream not supported in mock")
}

func (m *mockChatModel) WithTools(tools []*einoschema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

const validExtractionJSON = `{
  "name": "Jane Doe",
  "contact_info": {"email": "jane@example.com", "phone": "", "location": "", "linkedin": "", "website": ""},
  "skills": ["Python", "SQL"],
  "experience": [{"role": "Analyst", "company": "Acme", "duration": "2 years", "description": ""}],
  "education": [{"degree": "BS", "institution": "State U", "year": "2019"}]
}`

func newTestExtractor(m model.ToolCallingChatModel) *LLMCVExtractor {
	e := NewLLMCVExtractor(m, WithCallTimeout(time.Second))
	e.retryDelay = time.Millisecond
	return e
}

func TestExtractCVInfoParsesFencedJSON(t *testing.T) {
	mockModel := &mockChatModel{response: "以下是提取结果：\n```json\n" + validExtractionJSON + "\n```"}
	extractor := newTestExtractor(mockModel)

	result, err := extractor.ExtractCVInfo(context.Background(), "Jane Doe 的简历全文...")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "Jane Doe", result.Name, "应提取姓名")
	require.NotNil(t, result.ContactInfo.Structured, "结构化联系方式应被解析")
	assert.Equal(t, "jane@example.com", result.ContactInfo.Structured.Email)
	assert.Equal(t, []string{"Python", "SQL"}, result.Skills)
	require.Len(t, result.Experience, 1)
	assert.Equal(t, "2 years", result.Experience[0].Duration, "时长应保留原文")
	require.Len(t, result.Education, 1)
	assert.Equal(t, "State U", result.Education[0].Institution)
}

func TestExtractCVInfoAcceptsBareJSON(t *testing.T) {
	mockModel := &mockChatModel{response: validExtractionJSON}
	extractor := newTestExtractor(mockModel)

	result, err := extractor.ExtractCVInfo(context.Background(), "some cv text")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", result.Name)
}

func TestExtractCVInfoRejectsEmptyText(t *testing.T) {
	extractor := newTestExtractor(&mockChatModel{response: validExtractionJSON})

	_, err := extractor.ExtractCVInfo(context.Background(), "   \n ")
	assert.ErrorIs(t, err, blueprint.ErrInvalidExtraction, "空文本应返回无效提取错误")
}

func TestExtractCVInfoRejectsGarbageResponse(t *testing.T) {
	mockModel := &mockChatModel{response: "抱歉，我无法处理这份简历。"}
	extractor := newTestExtractor(mockModel)

	_, err := extractor.ExtractCVInfo(context.Background(), "cv text")
	assert.ErrorIs(t, err, blueprint.ErrInvalidExtraction, "无JSON的响应应返回无效提取错误")
}

func TestExtractCVInfoRejectsEmptyExtraction(t *testing.T) {
	mockModel := &mockChatModel{response: `{"name": "", "contact_info": {}, "skills": [], "experience": [], "education": []}`}
	extractor := newTestExtractor(mockModel)

	_, err := extractor.ExtractCVInfo(context.Background(), "cv text")
	assert.ErrorIs(t, err, blueprint.ErrInvalidExtraction, "全空的提取结果应视为无效")
}

func TestExtractCVInfoRetriesTransientErrors(t *testing.T) {
	mockModel := &mockChatModel{
		response:  validExtractionJSON,
		err:       errors.New("connection reset by peer"),
		failTimes: 2,
	}
	extractor := newTestExtractor(mockModel)

	result, err := extractor.ExtractCVInfo(context.Background(), "cv text")
	require.NoError(t, err, "瞬时错误应在重试后成功")
	assert.Equal(t, "Jane Doe", result.Name)
	assert.Equal(t, 3, mockModel.callCount, "应重试两次")
}

func TestExtractCVInfoDoesNotRetryPermanentErrors(t *testing.T) {
	mockModel := &mockChatModel{err: errors.New("invalid api key")}
	extractor := newTestExtractor(mockModel)

	_, err := extractor.ExtractCVInfo(context.Background(), "cv text")
	require.Error(t, err)
	assert.Equal(t, 1, mockModel.callCount, "永久错误不应重试")
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "代码块优先",
			input:    "前置说明 ```json\n{\"a\": 1}\n``` 后置说明",
			expected: `{"a": 1}`,
		},
		{
			name:     "裸JSON花括号配对",
			input:    `结果是 {"a": {"b": 2}} 如上`,
			expected: `{"a": {"b": 2}}`,
		},
		{
			name:     "无JSON返回空",
			input:    "没有任何结构化内容",
			expected: "",
		},
		{
			name:     "未闭合花括号返回空",
			input:    `{"a": 1`,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractJSON(tt.input))
		})
	}
}

func TestNormalizeContactStructuredPassthrough(t *testing.T) {
	raw := types.RawContactInfo{Structured: &types.ContactInfo{Email: "a@b.com", Phone: "123-456-7890"}}
	contact := NormalizeContact(raw)
	assert.Equal(t, "a@b.com", contact.Email)
	assert.Equal(t, "123-456-7890", contact.Phone)
}

func TestNormalizeContactFreeform(t *testing.T) {
	raw := types.RawContactInfo{
		Freeform: "jane@example.com | +1 (555) 123-4567 | San Francisco, CA | linkedin.com/in/janedoe | https://janedoe.dev",
	}
	contact := NormalizeContact(raw)

	assert.Equal(t, "jane@example.com", contact.Email)
	assert.Equal(t, "linkedin.com/in/janedoe", contact.LinkedIn)
	assert.Equal(t, "https://janedoe.dev", contact.Website)
	assert.Contains(t, contact.Phone, "555")
	assert.Contains(t, contact.Location, "San Francisco")
}

func TestNormalizeContactEmptyFreeform(t *testing.T) {
	contact := NormalizeContact(types.RawContactInfo{})
	assert.Equal(t, 0, contact.FieldCount(), "空输入不应产生任何联系方式字段")
}
