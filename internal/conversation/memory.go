package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	xerrors "github.com/SunilRudraKumar/Easy/internal/errors"
)

const (
	// DefaultHistoryTTL 是会话历史的滑动过期时间。
	DefaultHistoryTTL = time.Hour
	// DefaultPendingTTL 是待确认提案的绝对过期时间。
	DefaultPendingTTL = 5 * time.Minute
)

// MemoryOption 配置内存存储。
type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	now Clock
	ttl time.Duration
}

// WithMemoryClock 替换内存存储使用的时钟，主要用于测试过期逻辑。
func WithMemoryClock(now Clock) MemoryOption {
	return func(o *memoryOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMemoryTTL 设置内存历史存储的滑动过期时间。
func WithMemoryTTL(ttl time.Duration) MemoryOption {
	return func(o *memoryOptions) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

func buildMemoryOptions(defaultTTL time.Duration, opts []MemoryOption) memoryOptions {
	o := memoryOptions{now: time.Now, ttl: defaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

type historyEntry struct {
	messages  []Message
	expiresAt time.Time
}

// MemoryHistoryStore 以内存方式保存会话历史，适用于单进程部署与测试。
type MemoryHistoryStore struct {
	mu      sync.Mutex
	entries map[string]*historyEntry
	now     Clock
	ttl     time.Duration
}

// NewMemoryHistoryStore 创建内存历史存储。
func NewMemoryHistoryStore(opts ...MemoryOption) *MemoryHistoryStore {
	o := buildMemoryOptions(DefaultHistoryTTL, opts)
	return &MemoryHistoryStore{
		entries: make(map[string]*historyEntry),
		now:     o.now,
		ttl:     o.ttl,
	}
}

// Append 追加消息并将过期时间顺延一个 TTL。
func (s *MemoryHistoryStore) Append(_ context.Context, contextID string, msgs ...Message) error {
	if strings.TrimSpace(contextID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "contextId 不能为空")
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[contextID]
	if !ok || !now.Before(entry.expiresAt) {
		entry = &historyEntry{}
		s.entries[contextID] = entry
	}
	entry.messages = append(entry.messages, msgs...)
	entry.expiresAt = now.Add(s.ttl)
	return nil
}

// Read 返回按到达顺序排列的完整历史；会话过期或不存在时返回空切片。
func (s *MemoryHistoryStore) Read(_ context.Context, contextID string) ([]Message, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[contextID]
	if !ok {
		return []Message{}, nil
	}
	if !now.Before(entry.expiresAt) {
		delete(s.entries, contextID)
		return []Message{}, nil
	}
	out := make([]Message, len(entry.messages))
	copy(out, entry.messages)
	return out, nil
}

type pendingEntry struct {
	proposal  ActionProposal
	expiresAt time.Time
}

// MemoryPendingStore 以内存方式保存待确认提案。
type MemoryPendingStore struct {
	mu      sync.Mutex
	entries map[string]pendingEntry
	now     Clock
}

// NewMemoryPendingStore 创建内存提案存储。
func NewMemoryPendingStore(opts ...MemoryOption) *MemoryPendingStore {
	o := buildMemoryOptions(DefaultPendingTTL, opts)
	return &MemoryPendingStore{
		entries: make(map[string]pendingEntry),
		now:     o.now,
	}
}

// Set 覆盖会话已有的提案。
func (s *MemoryPendingStore) Set(_ context.Context, contextID string, proposal ActionProposal, ttl time.Duration) error {
	if strings.TrimSpace(contextID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "contextId 不能为空")
	}
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	now := s.now()
	proposal = proposal.Clone()
	if proposal.CreatedAt.IsZero() {
		proposal.CreatedAt = now
	}
	proposal.TTL = ttl

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[contextID] = pendingEntry{proposal: proposal, expiresAt: now.Add(ttl)}
	return nil
}

// Peek 非破坏性地读取提案。
func (s *MemoryPendingStore) Peek(_ context.Context, contextID string) (*ActionProposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupLocked(contextID, false), nil
}

// Consume 在同一把锁内读取并删除提案。
func (s *MemoryPendingStore) Consume(_ context.Context, contextID string) (*ActionProposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupLocked(contextID, true), nil
}

func (s *MemoryPendingStore) lookupLocked(contextID string, remove bool) *ActionProposal {
	entry, ok := s.entries[contextID]
	if !ok {
		return nil
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, contextID)
		return nil
	}
	if remove {
		delete(s.entries, contextID)
	}
	clone := entry.proposal.Clone()
	return &clone
}

var (
	_ HistoryStore = (*MemoryHistoryStore)(nil)
	_ PendingStore = (*MemoryPendingStore)(nil)
)
