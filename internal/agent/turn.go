package agent

import (
	"strings"

	"github.com/SunilRudraKumar/Easy/internal/conversation"
	xerrors "github.com/SunilRudraKumar/Easy/internal/errors"
)

const (
	msgInvalidPayload = "Invalid payload: contextId and messages required."
	msgLastNotUser    = "Invalid payload: Last message must be from user."
	msgInvalidRole    = "Invalid payload: message role must be user or assistant."
)

// TurnRequest 是一次对话轮次的输入。
type TurnRequest struct {
	ContextID string                 `json:"contextId"`
	Messages  []conversation.Message `json:"messages"`
	UserID    string                 `json:"userId,omitempty"`
}

// TurnResponse 是一次对话轮次的输出。
type TurnResponse struct {
	ContextID         string `json:"contextId"`
	Reply             string `json:"reply"`
	NeedsConfirmation bool   `json:"needsConfirmation,omitempty"`
	Data              any    `json:"data,omitempty"`
}

// Validate 在访问任何存储之前校验请求。
func (r TurnRequest) Validate() error {
	if strings.TrimSpace(r.ContextID) == "" || len(r.Messages) == 0 {
		return xerrors.New(xerrors.CodeInvalidArgument, msgInvalidPayload)
	}
	for _, m := range r.Messages {
		if !m.Role.Valid() {
			return xerrors.New(xerrors.CodeInvalidArgument, msgInvalidRole)
		}
	}
	if r.Messages[len(r.Messages)-1].Role != conversation.RoleUser {
		return xerrors.New(xerrors.CodeInvalidArgument, msgLastNotUser)
	}
	return nil
}

func (r TurnRequest) last() conversation.Message {
	return r.Messages[len(r.Messages)-1]
}
