package conversation

import (
	"context"
	"time"
)

// Role 标识消息的作者。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid 判断角色是否为受支持的取值。
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message 是会话历史中的一条消息，追加后不可修改。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserMessage 构造一条用户消息。
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage 构造一条助手消息。
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ActionProposal 描述模型提出、尚未执行的结构化操作。
type ActionProposal struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	CreatedAt time.Time      `json:"createdAt"`
	TTL       time.Duration  `json:"ttl"`
}

// ExpiresAt 返回提案的绝对过期时间；TTL 为零表示不过期。
func (p ActionProposal) ExpiresAt() time.Time {
	if p.TTL <= 0 {
		return time.Time{}
	}
	return p.CreatedAt.Add(p.TTL)
}

// Expired 判断提案在 now 时刻是否已失效。
func (p ActionProposal) Expired(now time.Time) bool {
	exp := p.ExpiresAt()
	return !exp.IsZero() && !now.Before(exp)
}

// Clone 返回提案的副本，参数表不与原值共享。
func (p ActionProposal) Clone() ActionProposal {
	out := p
	if p.Arguments != nil {
		out.Arguments = make(map[string]any, len(p.Arguments))
		for k, v := range p.Arguments {
			out.Arguments[k] = v
		}
	}
	return out
}

// Outcome 是模型网关的返回值：要么是纯文本回复，要么是一个操作提案。
type Outcome struct {
	Reply    string
	Proposal *ActionProposal
}

// ReplyOutcome 构造纯文本回复。
func ReplyOutcome(text string) Outcome {
	return Outcome{Reply: text}
}

// ProposalOutcome 构造操作提案。
func ProposalOutcome(p ActionProposal) Outcome {
	return Outcome{Proposal: &p}
}

// IsProposal 判断结果是否为操作提案。
func (o Outcome) IsProposal() bool {
	return o.Proposal != nil
}

// HistoryStore 按会话保存有序的消息日志，每次写入都会续期。
type HistoryStore interface {
	Append(ctx context.Context, contextID string, msgs ...Message) error
	Read(ctx context.Context, contextID string) ([]Message, error)
}

// PendingStore 为每个会话保存至多一个待确认的提案。
//
// Consume 必须是原子的取出并删除，两个并发调用最多只有一个拿到提案。
type PendingStore interface {
	Set(ctx context.Context, contextID string, proposal ActionProposal, ttl time.Duration) error
	Peek(ctx context.Context, contextID string) (*ActionProposal, error)
	Consume(ctx context.Context, contextID string) (*ActionProposal, error)
}

// Clock 返回当前时间，测试中可替换。
type Clock func() time.Time
