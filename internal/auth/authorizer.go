// Package auth 负责确认阶段的鉴权以及密码哈希。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/SunilRudraKumar/Easy/internal/conversation"
	"github.com/SunilRudraKumar/Easy/pkg/logger"
)

// Authorizer 判断 userID 是否可以执行一个已确认的提案。
// 返回 false 表示拒绝；返回错误表示无法判断，调用方按拒绝处理。
type Authorizer interface {
	Authorize(ctx context.Context, userID string, proposal conversation.ActionProposal) (bool, error)
}

// Credentials 是鉴权所需的账户信息。
type Credentials struct {
	UserID       string
	Email        string
	PasswordHash string
}

// CredentialStore 按用户 ID 或邮箱查找凭证，不存在时返回 nil。
type CredentialStore interface {
	CredentialsByID(ctx context.Context, userID string) (*Credentials, error)
	CredentialsByEmail(ctx context.Context, email string) (*Credentials, error)
}

// CredentialAuthorizer 要求提案携带的 senderEmail 与 password 与账户匹配。
// 提供 userID 时账户按 ID 查找，且其邮箱必须等于 senderEmail。
type CredentialAuthorizer struct {
	store CredentialStore
	log   *slog.Logger
}

// NewCredentialAuthorizer 创建基于凭证的鉴权器。
func NewCredentialAuthorizer(store CredentialStore) (*CredentialAuthorizer, error) {
	if store == nil {
		return nil, fmt.Errorf("credential store must not be nil")
	}
	return &CredentialAuthorizer{store: store, log: logger.Named("auth")}, nil
}

// Authorize 实现 Authorizer。
func (a *CredentialAuthorizer) Authorize(ctx context.Context, userID string, proposal conversation.ActionProposal) (bool, error) {
	email, _ := proposal.Arguments["senderEmail"].(string)
	password, _ := proposal.Arguments["password"].(string)
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		a.log.Info("提案缺少凭证", slog.String("action", proposal.Name))
		return false, nil
	}

	var (
		creds *Credentials
		err   error
	)
	if userID != "" {
		creds, err = a.store.CredentialsByID(ctx, userID)
	} else {
		creds, err = a.store.CredentialsByEmail(ctx, email)
	}
	if err != nil {
		return false, err
	}
	if creds == nil {
		return false, nil
	}
	if strings.ToLower(strings.TrimSpace(creds.Email)) != email {
		a.log.Warn("提案邮箱与用户不匹配", slog.String("user_id", userID), slog.String("action", proposal.Name))
		return false, nil
	}
	return VerifyPassword(creds.PasswordHash, password), nil
}

// AllowAll 放行所有提案，仅用于本地开发。
type AllowAll struct {
	log *slog.Logger
}

// NewAllowAll 创建不安全的放行鉴权器。
func NewAllowAll() *AllowAll {
	return &AllowAll{log: logger.Named("auth")}
}

// Authorize 总是返回 true，并记录警告。
func (a *AllowAll) Authorize(_ context.Context, userID string, proposal conversation.ActionProposal) (bool, error) {
	a.log.Warn("insecure_allow_all 模式放行动作", slog.String("user_id", userID), slog.String("action", proposal.Name))
	return true, nil
}

var (
	_ Authorizer = (*CredentialAuthorizer)(nil)
	_ Authorizer = (*AllowAll)(nil)
)
