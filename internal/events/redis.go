package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultStream 是事件写入的默认 stream。
const DefaultStream = "easymcp:events"

// RedisStream 通过 XADD 把事件写入 Redis stream。
type RedisStream struct {
	client goredis.UniversalClient
	stream string
	maxLen int64
	owned  bool
}

// NewRedisStream 基于已有连接创建发布器。maxLen 大于 0 时按近似长度裁剪。
func NewRedisStream(client goredis.UniversalClient, stream string, maxLen int64) (*RedisStream, error) {
	if client == nil {
		return nil, errors.New("Redis 客户端不能为空")
	}
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStream{client: client, stream: stream, maxLen: maxLen}, nil
}

// OwnClient 让 Close 同时关闭底层连接。
func (r *RedisStream) OwnClient() *RedisStream {
	r.owned = true
	return r
}

// Publish 写入一条 stream 记录，字段为 id、type、contextId 与完整 JSON。
func (r *RedisStream) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}
	args := &goredis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{
			"id":        ev.ID,
			"type":      string(ev.Type),
			"contextId": ev.ContextID,
			"payload":   payload,
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("Redis 写入事件失败: %w", err)
	}
	return nil
}

// Close 仅在 OwnClient 后关闭连接。
func (r *RedisStream) Close() error {
	if r == nil || !r.owned {
		return nil
	}
	return r.client.Close()
}
