package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/SunilRudraKumar/Easy/internal/conversation"
	xerrors "github.com/SunilRudraKumar/Easy/internal/errors"
)

const pendingKeyPrefix = "pending_action:"

// PendingStore 使用 Redis string 保存待确认提案。
type PendingStore struct {
	client goredis.Cmdable
	now    conversation.Clock
}

// NewPendingStore 创建提案存储。now 为空时使用 time.Now。
func NewPendingStore(client goredis.Cmdable, now conversation.Clock) *PendingStore {
	if now == nil {
		now = time.Now
	}
	return &PendingStore{client: client, now: now}
}

func pendingKey(contextID string) string {
	return pendingKeyPrefix + contextID
}

// Set 使用 SET EX 覆盖已有提案。
func (s *PendingStore) Set(ctx context.Context, contextID string, proposal conversation.ActionProposal, ttl time.Duration) error {
	if strings.TrimSpace(contextID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "contextId 不能为空")
	}
	if ttl <= 0 {
		ttl = conversation.DefaultPendingTTL
	}
	proposal.CreatedAt = s.now()
	proposal.TTL = ttl
	encoded, err := json.Marshal(proposal)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化提案失败")
	}
	if err := s.client.Set(ctx, pendingKey(contextID), encoded, ttl).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "保存待确认提案失败")
	}
	return nil
}

// Peek 使用 GET 读取提案。
func (s *PendingStore) Peek(ctx context.Context, contextID string) (*conversation.ActionProposal, error) {
	raw, err := s.client.Get(ctx, pendingKey(contextID)).Bytes()
	return s.decode(raw, err)
}

// Consume 使用 GETDEL 原子地取出并删除提案。
func (s *PendingStore) Consume(ctx context.Context, contextID string) (*conversation.ActionProposal, error) {
	raw, err := s.client.GetDel(ctx, pendingKey(contextID)).Bytes()
	return s.decode(raw, err)
}

func (s *PendingStore) decode(raw []byte, err error) (*conversation.ActionProposal, error) {
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取待确认提案失败")
	}
	var proposal conversation.ActionProposal
	if err := json.Unmarshal(raw, &proposal); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析待确认提案失败")
	}
	// 键的 TTL 由 Redis 维护，这里再按创建时间兜底一次。
	if proposal.Expired(s.now()) {
		return nil, nil
	}
	return &proposal, nil
}

var _ conversation.PendingStore = (*PendingStore)(nil)
