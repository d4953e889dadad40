// Package action 维护可执行动作的注册表，并负责参数校验与调用。
package action

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Outcome 是处理器返回的结果。
type Outcome struct {
	Message string
	Data    any
}

// Handler 执行一个动作。
type Handler func(ctx context.Context, args map[string]any) (Outcome, error)

type entry struct {
	required []string
	synonyms map[string]string
	handler  Handler
}

// Registry 保存动作名到处理器的映射。
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry 创建空的注册表。
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register 注册动作，重复注册会覆盖之前的处理器。
func (r *Registry) Register(name string, required []string, h Handler) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("动作名称不能为空")
	}
	if h == nil {
		return fmt.Errorf("动作 %s 缺少处理器", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	e := &entry{
		required: append([]string(nil), required...),
		synonyms: make(map[string]string),
		handler:  h,
	}
	if prev, ok := r.entries[name]; ok {
		e.synonyms = prev.synonyms
	}
	r.entries[name] = e
	return nil
}

// Synonym 声明参数别名：调用时若缺少 canonical 而存在 alias，则使用 alias 的值。
func (r *Registry) Synonym(name, alias, canonical string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("动作 %s 未注册", name)
	}
	e.synonyms[alias] = canonical
	return nil
}

func (r *Registry) lookup(name string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}
