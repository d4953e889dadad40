package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/SunilRudraKumar/Easy/internal/observability/metrics"
)

// Named 给发布器附加一个用于指标与错误信息的名字。
type Named struct {
	Name      string
	Publisher Publisher
}

// Fanout 把事件投递给所有发布器，单个失败不影响其他发布器。
type Fanout struct {
	targets []Named
}

// NewFanout 创建组合发布器，忽略空发布器。
func NewFanout(targets ...Named) *Fanout {
	f := &Fanout{}
	for _, t := range targets {
		if t.Publisher != nil {
			f.targets = append(f.targets, t)
		}
	}
	return f
}

// Publish 依次投递并合并错误。
func (f *Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, t := range f.targets {
		err := t.Publisher.Publish(ctx, ev)
		metrics.ObserveEvent(t.Name, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Close 关闭全部发布器。
func (f *Fanout) Close() error {
	var errs []error
	for _, t := range f.targets {
		if err := t.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
		}
	}
	return errors.Join(errs...)
}
