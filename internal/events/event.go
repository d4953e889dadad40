// Package events 投递审计事件：提案、确认、取消、鉴权失败与动作执行。
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/SunilRudraKumar/Easy/pkg/logger"
)

// Type 表示事件类别。
type Type string

// 事件类别。
const (
	TypeProposalCreated     Type = "proposal_created"
	TypeActionConfirmed     Type = "action_confirmed"
	TypeActionDenied        Type = "action_denied"
	TypeAuthorizationFailed Type = "authorization_failed"
	TypeActionDispatched    Type = "action_dispatched"
)

// Event 是一条审计事件，Arguments 在构造时已脱敏。
type Event struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	ContextID  string         `json:"contextId"`
	UserID     string         `json:"userId,omitempty"`
	Action     string         `json:"action,omitempty"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	Result     string         `json:"result,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// New 生成带 ID 与时间戳的事件，并对参数脱敏。
func New(typ Type, contextID, userID, action string, args map[string]any, now time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		ContextID:  contextID,
		UserID:     userID,
		Action:     action,
		Arguments:  logger.Redact(args),
		OccurredAt: now.UTC(),
	}
}

// Publisher 负责投递事件。
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// None 丢弃所有事件。
type None struct{}

// Publish 实现 Publisher。
func (None) Publish(context.Context, Event) error { return nil }

// Close 实现 Publisher。
func (None) Close() error { return nil }
