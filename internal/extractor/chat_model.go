package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"cv-insight-go/internal/logger"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const (
	defaultChatCompletionsURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"
	defaultModelName          = "qwen-plus"
)

// openAITool OpenAI兼容的工具声明
type openAITool struct {
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// OpenAICompatChatModel 通过OpenAI兼容的chat completions接口调用LLM
// 实现 model.ToolCallingChatModel，可直接注入提取器
type OpenAICompatChatModel struct {
	apiKey     string
	modelName  string
	apiURL     string
	httpClient *http.Client
	boundTools []openAITool
}

// NewOpenAICompatChatModel 创建OpenAI兼容的chat模型客户端
func NewOpenAICompatChatModel(apiKey, modelName, apiURL string) (*OpenAICompatChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API密钥不能为空")
	}
	if strings.TrimSpace(modelName) == "" {
		modelName = defaultModelName
	}
	if strings.TrimSpace(apiURL) == "" {
		apiURL = defaultChatCompletionsURL
	}

	logger.Info().Str("api_url", apiURL).Str("model", modelName).Msg("初始化LLM客户端")

	return &OpenAICompatChatModel{
		apiKey:     apiKey,
		modelName:  modelName,
		apiURL:     apiURL,
		httpClient: &http.Client{},
	}, nil
}

type chatCompletionRequest struct {
	Model    string            `json:"model"`
	Messages []*schema.Message `json:"messages"`
	Tools    []openAITool      `json:"tools,omitempty"`
}

type chatChoiceMessage struct {
	Role      string  `json:"role"`
	Content   *string `json:"content"`
	ToolCalls []struct {
		Id       string `json:"id"`
		Type     string `json:"type"`
		Function struct {
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		} `json:"function"`
	} `json:"tool_calls,omitempty"`
}

type chatCompletionResponse struct {
	Id      string `json:"id"`
	Choices []struct {
		Index        int               `json:"index"`
		Message      chatChoiceMessage `json:"message"`
		FinishReason string            `json:"finish_reason"`
	} `json:"choices"`
}

// Generate 发送消息列表并返回单条助手消息
func (m *OpenAICompatChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	reqPayload := chatCompletionRequest{
		Model:    m.modelName,
		Messages: messages,
	}
	if len(m.boundTools) > 0 {
		reqPayload.Tools = m.boundTools
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API请求失败，状态 %s: %s", httpResp.Status, string(bodyBytes))
	}

	var apiResp chatCompletionResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("反序列化API响应失败: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("从API收到空选项: %s", string(bodyBytes))
	}

	apiMessage := apiResp.Choices[0].Message
	content := ""
	if apiMessage.Content != nil {
		content = *apiMessage.Content
	}

	result := &schema.Message{
		Role:    schema.RoleType(apiMessage.Role),
		Content: content,
	}
	if result.Role == "" {
		result.Role = schema.Assistant
	}

	if len(apiMessage.ToolCalls) > 0 {
		result.ToolCalls = make([]schema.ToolCall, len(apiMessage.ToolCalls))
		for i, tc := range apiMessage.ToolCalls {
			result.ToolCalls[i] = schema.ToolCall{
				ID: tc.Id,
				Function: schema.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			}
		}
	}

	return result, nil
}

// Stream 未实现：提取流程只需要一次性的完整响应
func (m *OpenAICompatChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("OpenAICompatChatModel 的 Stream 方法未实现")
}

// BindTools 绑定工具声明；提取流程不依赖工具调用，参数一律按空对象声明
func (m *OpenAICompatChatModel) BindTools(tools []*schema.ToolInfo) error {
	m.boundTools = make([]openAITool, 0, len(tools))
	for _, toolInfo := range tools {
		if toolInfo == nil {
			continue
		}
		m.boundTools = append(m.boundTools, openAITool{
			Type: "function",
			Function: openAIFunction{
				Name:        toolInfo.Name,
				Description: toolInfo.Desc,
				Parameters: map[string]interface{}{
					"type":       "object",
					"properties": map[string]interface{}{},
				},
			},
		})
	}
	return nil
}

// WithTools 实现 model.ToolCallingChatModel
func (m *OpenAICompatChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if err := m.BindTools(tools); err != nil {
		return nil, err
	}
	return m, nil
}

var _ model.ChatModel = (*OpenAICompatChatModel)(nil)
var _ model.ToolCallingChatModel = (*OpenAICompatChatModel)(nil)
