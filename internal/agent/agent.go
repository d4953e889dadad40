package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SunilRudraKumar/Easy/internal/action"
	"github.com/SunilRudraKumar/Easy/internal/auth"
	"github.com/SunilRudraKumar/Easy/internal/conversation"
	xerrors "github.com/SunilRudraKumar/Easy/internal/errors"
	"github.com/SunilRudraKumar/Easy/internal/events"
	"github.com/SunilRudraKumar/Easy/internal/observability/metrics"
	"github.com/SunilRudraKumar/Easy/pkg/logger"
)

// DefaultDispatchTimeout 限制单次动作执行的时长。
const DefaultDispatchTimeout = 60 * time.Second

const (
	msgExecuting      = "Okay, executing the action: %s"
	msgConfirmFailed  = "Action cancelled due to failed confirmation."
	replyConfirmFail  = "Action cancelled: Confirmation failed."
	msgCancelled      = "Okay, I have cancelled the pending action."
	replyCancelled    = "Okay, I've cancelled the action."
	confirmationQuery = "Okay, I have the details to send %v SOL to %v using the email %v. Shall I proceed? (Reply yes/no)"
)

// Model 是单次模型往返，由 gateway.Gateway 实现。
type Model interface {
	Call(ctx context.Context, history []conversation.Message) (conversation.Outcome, error)
}

// Dispatcher 执行已确认的提案，由 action.Dispatcher 实现。
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, args map[string]any) action.Result
}

// Option 配置 Agent。
type Option func(*Agent)

// WithPendingTTL 设置提案的有效期。
func WithPendingTTL(ttl time.Duration) Option {
	return func(a *Agent) {
		if ttl > 0 {
			a.pendingTTL = ttl
		}
	}
}

// WithDispatchTimeout 设置动作执行超时。
func WithDispatchTimeout(d time.Duration) Option {
	return func(a *Agent) {
		if d > 0 {
			a.dispatchTimeout = d
		}
	}
}

// WithPublisher 设置审计事件的投递目标。
func WithPublisher(p events.Publisher) Option {
	return func(a *Agent) {
		if p != nil {
			a.publisher = p
		}
	}
}

// WithClock 替换时间来源。
func WithClock(now conversation.Clock) Option {
	return func(a *Agent) {
		if now != nil {
			a.now = now
		}
	}
}

// Agent 按轮次驱动确认协议，本身不保存任何跨轮次状态。
type Agent struct {
	history         conversation.HistoryStore
	pending         conversation.PendingStore
	model           Model
	dispatcher      Dispatcher
	authorizer      auth.Authorizer
	publisher       events.Publisher
	pendingTTL      time.Duration
	dispatchTimeout time.Duration
	now             conversation.Clock
	log             *slog.Logger
}

// New 创建 Agent，所有依赖都必须由调用方注入。
func New(history conversation.HistoryStore, pending conversation.PendingStore, model Model, dispatcher Dispatcher, authorizer auth.Authorizer, opts ...Option) (*Agent, error) {
	switch {
	case history == nil:
		return nil, errors.New("agent: history store must not be nil")
	case pending == nil:
		return nil, errors.New("agent: pending store must not be nil")
	case model == nil:
		return nil, errors.New("agent: model must not be nil")
	case dispatcher == nil:
		return nil, errors.New("agent: dispatcher must not be nil")
	case authorizer == nil:
		return nil, errors.New("agent: authorizer must not be nil")
	}
	a := &Agent{
		history:         history,
		pending:         pending,
		model:           model,
		dispatcher:      dispatcher,
		authorizer:      authorizer,
		publisher:       events.None{},
		pendingTTL:      conversation.DefaultPendingTTL,
		dispatchTimeout: DefaultDispatchTimeout,
		now:             time.Now,
		log:             logger.Named("agent"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

// HandleTurn 处理一次对话轮次。只有请求不合法或存储不可用时才返回错误。
func (a *Agent) HandleTurn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	switch Classify(req.last().Content) {
	case Affirm:
		proposal, err := a.takePending(ctx, req.ContextID)
		if err != nil {
			return a.fail(err)
		}
		if proposal != nil {
			return a.confirm(ctx, req, *proposal)
		}
		a.log.Info("确认消息没有待处理的提案", slog.String("context_id", req.ContextID))
	case Deny:
		proposal, err := a.takePending(ctx, req.ContextID)
		if err != nil {
			return a.fail(err)
		}
		if proposal != nil {
			return a.deny(ctx, req, *proposal)
		}
	}
	return a.normal(ctx, req)
}

// takePending 先 Peek 再 Consume；Consume 落空说明并发的轮次已经取走提案。
func (a *Agent) takePending(ctx context.Context, contextID string) (*conversation.ActionProposal, error) {
	peeked, err := a.pending.Peek(ctx, contextID)
	if err != nil || peeked == nil {
		return nil, err
	}
	return a.pending.Consume(ctx, contextID)
}

func (a *Agent) confirm(ctx context.Context, req TurnRequest, proposal conversation.ActionProposal) (*TurnResponse, error) {
	user := req.last()
	ok, err := a.authorizer.Authorize(ctx, req.UserID, proposal)
	if err != nil {
		a.log.Warn("鉴权失败，按拒绝处理", slog.String("context_id", req.ContextID), slog.String("error", err.Error()))
		ok = false
	}
	if !ok {
		a.emit(ctx, events.TypeAuthorizationFailed, req, proposal, string(conversation.CodeConfirmationFailed))
		a.appendBestEffort(ctx, req.ContextID, user, conversation.AssistantMessage(msgConfirmFailed))
		metrics.ObserveTurn(metrics.TurnUnauthorized)
		return &TurnResponse{ContextID: req.ContextID, Reply: replyConfirmFail}, nil
	}

	a.emit(ctx, events.TypeActionConfirmed, req, proposal, "")
	dispatchCtx, cancel := context.WithTimeout(ctx, a.dispatchTimeout)
	result := a.dispatcher.Dispatch(dispatchCtx, proposal.Name, proposal.Arguments)
	cancel()

	outcome := "ok"
	if result.Err != nil {
		outcome = string(xerrors.CodeOf(result.Err))
	}
	a.emit(ctx, events.TypeActionDispatched, req, proposal, outcome)

	// 动作已经生效，之后的历史写入失败只记录日志。
	a.appendBestEffort(ctx, req.ContextID,
		user,
		conversation.AssistantMessage(fmt.Sprintf(msgExecuting, proposal.Name)),
		conversation.AssistantMessage(result.Reply),
	)
	metrics.ObserveTurn(metrics.TurnConfirmed)
	return &TurnResponse{ContextID: req.ContextID, Reply: result.Reply, Data: result.Data}, nil
}

func (a *Agent) deny(ctx context.Context, req TurnRequest, proposal conversation.ActionProposal) (*TurnResponse, error) {
	a.emit(ctx, events.TypeActionDenied, req, proposal, "")
	a.appendBestEffort(ctx, req.ContextID, req.last(), conversation.AssistantMessage(msgCancelled))
	metrics.ObserveTurn(metrics.TurnDenied)
	return &TurnResponse{ContextID: req.ContextID, Reply: replyCancelled}, nil
}

func (a *Agent) normal(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	if err := a.history.Append(ctx, req.ContextID, req.Messages...); err != nil {
		return a.fail(err)
	}
	history, err := a.history.Read(ctx, req.ContextID)
	if err != nil {
		return a.fail(err)
	}

	outcome, err := a.model.Call(ctx, history)
	if err != nil {
		// 回复已由网关写入 outcome，这里只记录并计入错误轮次。
		xerrors.Log(ctx, a.log, "模型网关返回错误", err, slog.String("context_id", req.ContextID))
	}

	resp := &TurnResponse{ContextID: req.ContextID}
	if outcome.IsProposal() {
		proposal := *outcome.Proposal
		if err := a.pending.Set(ctx, req.ContextID, proposal, a.pendingTTL); err != nil {
			return a.fail(err)
		}
		a.emit(ctx, events.TypeProposalCreated, req, proposal, "")
		resp.Reply = confirmationQuestion(proposal.Arguments)
		resp.NeedsConfirmation = true
	} else {
		resp.Reply = outcome.Reply
	}

	if err := a.history.Append(ctx, req.ContextID, conversation.AssistantMessage(resp.Reply)); err != nil {
		return a.fail(err)
	}

	switch {
	case err != nil:
		metrics.ObserveTurn(metrics.TurnError)
	case resp.NeedsConfirmation:
		metrics.ObserveTurn(metrics.TurnProposal)
	default:
		metrics.ObserveTurn(metrics.TurnReply)
	}
	return resp, nil
}

func confirmationQuestion(args map[string]any) string {
	return fmt.Sprintf(confirmationQuery, args["amount"], args["toAddress"], args["senderEmail"])
}

func (a *Agent) appendBestEffort(ctx context.Context, contextID string, msgs ...conversation.Message) {
	if err := a.history.Append(ctx, contextID, msgs...); err != nil {
		a.log.Warn("写入会话历史失败", slog.String("context_id", contextID), slog.String("error", err.Error()))
	}
}

func (a *Agent) fail(err error) (*TurnResponse, error) {
	metrics.ObserveTurn(metrics.TurnError)
	return nil, err
}

// emit 写审计日志并投递事件，投递失败不影响本轮结果。
func (a *Agent) emit(ctx context.Context, typ events.Type, req TurnRequest, proposal conversation.ActionProposal, result string) {
	ev := events.New(typ, req.ContextID, req.UserID, proposal.Name, proposal.Arguments, a.now())
	ev.Result = result

	logger.Audit().Info(string(typ),
		slog.String("event_id", ev.ID),
		slog.String("context_id", ev.ContextID),
		slog.String("user_id", ev.UserID),
		slog.String("action", ev.Action),
		slog.Any("arguments", ev.Arguments),
		slog.String("result", result),
	)
	if err := a.publisher.Publish(ctx, ev); err != nil {
		a.log.Warn("投递审计事件失败", slog.String("type", string(typ)), slog.String("error", err.Error()))
	}
}
