package llm

import (
	"context"
	"errors"

	"github.com/SunilRudraKumar/Easy/internal/conversation"
)

// Request 描述一次对话补全：固定的系统指令加上按顺序排列的历史消息。
type Request struct {
	System    string
	Messages  []conversation.Message
	MaxTokens int
}

// Response 是模型返回的原始文本。
type Response struct {
	Text string
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// ErrEmptyResponse 表示模型返回了空文本。
var ErrEmptyResponse = errors.New("model returned an empty response")
