package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/SunilRudraKumar/Easy/internal/conversation"
	xerrors "github.com/SunilRudraKumar/Easy/internal/errors"
	"github.com/SunilRudraKumar/Easy/internal/llm"
	"github.com/SunilRudraKumar/Easy/pkg/logger"
)

const (
	// DefaultModelTimeout 是单次模型调用的上限。
	DefaultModelTimeout = 30 * time.Second

	invalidHistoryReply = "Error: Invalid conversation history."
	timeoutMessage      = "model request timed out"
)

// Option 配置 Gateway。
type Option func(*Gateway)

// WithModelTimeout 设置模型调用超时。
func WithModelTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithMaxTokens 设置模型回复的 token 上限。
func WithMaxTokens(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// Gateway 负责单次模型往返。
type Gateway struct {
	client    llm.Client
	timeout   time.Duration
	maxTokens int
	specs     []ActionSpec
	log       *slog.Logger
}

// New 创建 Gateway。
func New(client llm.Client, opts ...Option) (*Gateway, error) {
	if client == nil {
		return nil, errors.New("gateway: llm client must not be nil")
	}
	g := &Gateway{
		client:  client,
		timeout: DefaultModelTimeout,
		specs:   []ActionSpec{SendSOL},
		log:     logger.Named("gateway"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g, nil
}

// Call 将完整历史发送给模型并解析结果。
// 历史不以用户消息结尾时返回 INVALID_HISTORY 以及对应的错误回复。
// 模型调用失败时回复为 "Error: ..."，同时返回 MODEL_FAILURE 或 TIMEOUT 错误，
// 调用方应直接使用回复，错误只用于记录与统计。
func (g *Gateway) Call(ctx context.Context, history []conversation.Message) (conversation.Outcome, error) {
	if len(history) == 0 || history[len(history)-1].Role != conversation.RoleUser {
		return conversation.ReplyOutcome(invalidHistoryReply),
			xerrors.New(conversation.CodeInvalidHistory, "会话历史必须以用户消息结尾")
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	started := time.Now()
	resp, err := g.client.Generate(callCtx, llm.Request{
		System:    SystemPrompt,
		Messages:  history,
		MaxTokens: g.maxTokens,
	})
	if err == nil && (resp == nil || resp.Text == "") {
		err = llm.ErrEmptyResponse
	}
	if err != nil {
		message := err.Error()
		failure := xerrors.Wrap(conversation.CodeModelFailure, err, "模型调用失败")
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			message = timeoutMessage
			failure = xerrors.Wrap(xerrors.CodeTimeout, err, timeoutMessage)
		}
		xerrors.Log(ctx, g.log, "模型调用失败", failure,
			slog.Int("history_len", len(history)),
			slog.Duration("elapsed", time.Since(started)))
		return conversation.ReplyOutcome("Error: " + message), failure
	}

	outcome, perr := parse(resp.Text, g.specs)
	if perr != nil {
		xerrors.Log(ctx, g.log, "模型输出解析失败，按原文回复", perr, slog.Int("history_len", len(history)))
	}
	g.log.Debug("模型调用完成",
		slog.Int("history_len", len(history)),
		slog.Duration("elapsed", time.Since(started)),
		slog.Bool("proposal", outcome.IsProposal()))
	return outcome, nil
}
