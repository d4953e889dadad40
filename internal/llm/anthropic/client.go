// Package anthropic adapts the Anthropic Messages API to llm.Client.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/SunilRudraKumar/Easy/internal/conversation"
	"github.com/SunilRudraKumar/Easy/internal/llm"
)

const (
	defaultModel     = anthropic.ModelClaudeSonnet4_5_20250929
	defaultMaxTokens = 1024
)

// Config 描述了调用 Anthropic API 所需的信息。
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	MaxRetries int
}

// Client 通过官方 SDK 调用 Claude 模型。
type Client struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int
}

// NewClient 根据配置创建 Anthropic 客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供 Anthropic API Key")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if cfg.MaxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}

	model := anthropic.Model(strings.TrimSpace(cfg.Model))
	if model == "" {
		model = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &Client{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

// Generate 发送完整历史并拼接返回的文本块。
func (c *Client) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, msg := range req.Messages {
		block := anthropic.NewTextBlock(msg.Content)
		switch msg.Role {
		case conversation.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(block))
		case conversation.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(block))
		default:
			return nil, fmt.Errorf("不支持的消息角色: %q", msg.Role)
		}
	}

	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if system := strings.TrimSpace(req.System); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("请求 Anthropic 失败: %w", err)
	}

	var builder strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			builder.WriteString(text.Text)
		}
	}
	content := strings.TrimSpace(builder.String())
	if content == "" {
		return nil, llm.ErrEmptyResponse
	}
	return &llm.Response{Text: content}, nil
}

var _ llm.Client = (*Client)(nil)
