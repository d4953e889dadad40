package events

import (
	"context"
	"errors"
	"sync"
)

// Memory 在进程内保存最近的事件，并向订阅者广播，主要用于测试与本地调试。
type Memory struct {
	mu     sync.Mutex
	limit  int
	events []Event
	subs   []chan Event
	closed bool
}

// NewMemory 创建内存发布器，limit 为保留的事件条数。
func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = 256
	}
	return &Memory{limit: limit}
}

// Publish 记录事件。订阅者的缓冲区已满时跳过该订阅者，不阻塞调用方。
func (m *Memory) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("事件发布器已关闭")
	}
	m.events = append(m.events, ev)
	if len(m.events) > m.limit {
		m.events = m.events[len(m.events)-m.limit:]
	}
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// Subscribe 返回一个接收后续事件的 channel，Close 时关闭。
func (m *Memory) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		close(ch)
		return ch
	}
	m.subs = append(m.subs, ch)
	return ch
}

// Events 返回已记录事件的副本。
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Close 关闭所有订阅 channel。
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, ch := range m.subs {
		close(ch)
	}
	m.subs = nil
	return nil
}
