package action

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/SunilRudraKumar/Easy/internal/conversation"
	xerrors "github.com/SunilRudraKumar/Easy/internal/errors"
	"github.com/SunilRudraKumar/Easy/internal/observability/metrics"
	"github.com/SunilRudraKumar/Easy/pkg/logger"
)

// Result 是一次调度的结果。Err 非空时 Reply 已经是面向用户的错误提示。
type Result struct {
	Reply string
	Data  any
	Err   error
}

// Dispatcher 根据注册表调用动作处理器。
type Dispatcher struct {
	registry *Registry
	log      *slog.Logger
}

// NewDispatcher 创建调度器。
func NewDispatcher(registry *Registry) *Dispatcher {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Dispatcher{registry: registry, log: logger.Named("action")}
}

// Dispatch 查找、校验并执行动作。处理器的错误与 panic 都转换为回复，不会向上传播。
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any) Result {
	e, ok := d.registry.lookup(name)
	if !ok {
		metrics.ObserveDispatch(name, metrics.DispatchUnknownAction)
		return Result{
			Reply: fmt.Sprintf("❌ Unknown function: %s", name),
			Err:   xerrors.New(conversation.CodeUnknownAction, "未注册的动作: "+name),
		}
	}

	resolved := d.applySynonyms(name, e.synonyms, args)

	if missing := missingArguments(resolved, e.required); len(missing) > 0 {
		metrics.ObserveDispatch(name, metrics.DispatchMissingArgs)
		return Result{
			Reply: fmt.Sprintf("❌ Missing required information (%s) to run %s.", strings.Join(missing, ", "), name),
			Err: xerrors.New(conversation.CodeMissingArguments, "缺少必填参数",
				xerrors.WithMetadata("action", name),
				xerrors.WithMetadata("missing", strings.Join(missing, ","))),
		}
	}

	outcome, panicked, err := invoke(ctx, e.handler, resolved)
	if err != nil {
		result := metrics.DispatchHandlerFailure
		if panicked {
			result = metrics.DispatchHandlerPanicked
		}
		metrics.ObserveDispatch(name, result)
		xerrors.Log(ctx, d.log, "动作执行失败", err, slog.String("action", name), slog.Bool("panic", panicked))
		return Result{
			Reply: fmt.Sprintf("❌ Transaction Error: %s", userMessage(err)),
			Err:   xerrors.Wrap(conversation.CodeDispatchFailure, err, "动作执行失败", xerrors.WithMetadata("action", name)),
		}
	}

	metrics.ObserveDispatch(name, metrics.DispatchOK)
	return Result{Reply: outcome.Message, Data: outcome.Data}
}

func invoke(ctx context.Context, h Handler, args map[string]any) (outcome Outcome, panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			err = fmt.Errorf("%v", r)
		}
	}()
	outcome, err = h(ctx, args)
	return outcome, false, err
}

// applySynonyms 在参数副本上执行别名替换，遍历顺序固定。
func (d *Dispatcher) applySynonyms(name string, synonyms map[string]string, args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	if len(synonyms) == 0 {
		return out
	}
	aliases := make([]string, 0, len(synonyms))
	for alias := range synonyms {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		canonical := synonyms[alias]
		v, hasAlias := out[alias]
		if !hasAlias {
			continue
		}
		if _, hasCanonical := out[canonical]; hasCanonical {
			continue
		}
		out[canonical] = v
		delete(out, alias)
		d.log.Info("参数别名已替换", slog.String("action", name), slog.String("alias", alias), slog.String("canonical", canonical))
	}
	return out
}

func missingArguments(args map[string]any, required []string) []string {
	var missing []string
	for _, key := range required {
		v, ok := args[key]
		if !ok || v == nil {
			missing = append(missing, key)
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

// userMessage 优先使用结构化错误的消息，避免把底层细节暴露给用户。
func userMessage(err error) string {
	if e, ok := xerrors.From(err); ok && e.Message() != "" {
		return e.Message()
	}
	return err.Error()
}
