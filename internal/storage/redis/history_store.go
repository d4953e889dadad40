package redis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/SunilRudraKumar/Easy/internal/conversation"
	xerrors "github.com/SunilRudraKumar/Easy/internal/errors"
)

const historyKeyPrefix = "ctx:"

// HistoryOption 配置 HistoryStore。
type HistoryOption func(*HistoryStore)

// WithHistoryTTL 设置滑动过期时间。
func WithHistoryTTL(ttl time.Duration) HistoryOption {
	return func(s *HistoryStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithHistoryWindow 限制 Read 只返回最近的 n 条消息，0 表示不限制。
func WithHistoryWindow(n int) HistoryOption {
	return func(s *HistoryStore) {
		if n >= 0 {
			s.window = n
		}
	}
}

// HistoryStore 使用 Redis list 保存会话历史。
type HistoryStore struct {
	client goredis.Cmdable
	ttl    time.Duration
	window int
}

// NewHistoryStore 基于已建立的 Redis 连接创建历史存储。
func NewHistoryStore(client goredis.Cmdable, opts ...HistoryOption) *HistoryStore {
	s := &HistoryStore{client: client, ttl: conversation.DefaultHistoryTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func historyKey(contextID string) string {
	return historyKeyPrefix + contextID
}

// Append 在一个 MULTI 中执行 RPUSH 与 EXPIRE。
func (s *HistoryStore) Append(ctx context.Context, contextID string, msgs ...conversation.Message) error {
	if strings.TrimSpace(contextID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "contextId 不能为空")
	}
	values := make([]any, 0, len(msgs))
	for _, msg := range msgs {
		encoded, err := json.Marshal(msg)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化消息失败")
		}
		values = append(values, encoded)
	}

	key := historyKey(contextID)
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		if len(values) > 0 {
			pipe.RPush(ctx, key, values...)
		}
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入会话历史失败")
	}
	return nil
}

// Read 通过 LRANGE 读取历史，会话不存在或已过期时返回空切片。
func (s *HistoryStore) Read(ctx context.Context, contextID string) ([]conversation.Message, error) {
	start := int64(0)
	if s.window > 0 {
		start = int64(-s.window)
	}
	raw, err := s.client.LRange(ctx, historyKey(contextID), start, -1).Result()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取会话历史失败")
	}
	out := make([]conversation.Message, 0, len(raw))
	for _, item := range raw {
		var msg conversation.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析会话历史失败")
		}
		out = append(out, msg)
	}
	return out, nil
}

var _ conversation.HistoryStore = (*HistoryStore)(nil)
