package action

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/SunilRudraKumar/Easy/internal/conversation"
	xerrors "github.com/SunilRudraKumar/Easy/internal/errors"
)

var sendRequired = []string{"senderEmail", "password", "toAddress", "amount"}

func newTestDispatcher(t *testing.T, h Handler) *Dispatcher {
	t.Helper()
	registry := NewRegistry()
	if err := registry.Register("send_sol", sendRequired, h); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Synonym("send_sol", "recipient", "toAddress"); err != nil {
		t.Fatalf("synonym: %v", err)
	}
	return NewDispatcher(registry)
}

func fullArgs() map[string]any {
	return map[string]any{"senderEmail": "a@b.com", "password": "p", "toAddress": "ADDR1", "amount": 2.0}
}

func TestDispatchSuccess(t *testing.T) {
	var got map[string]any
	d := newTestDispatcher(t, func(_ context.Context, args map[string]any) (Outcome, error) {
		got = args
		return Outcome{Message: "✅ Sent 2 SOL to ADDR1", Data: map[string]string{"txHash": "sig"}}, nil
	})

	res := d.Dispatch(context.Background(), "send_sol", fullArgs())
	if res.Err != nil || res.Reply != "✅ Sent 2 SOL to ADDR1" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Data.(map[string]string)["txHash"] != "sig" {
		t.Fatalf("unexpected data: %+v", res.Data)
	}
	if got["toAddress"] != "ADDR1" {
		t.Fatalf("handler got wrong args: %+v", got)
	}
}

func TestDispatchUnknownAction(t *testing.T) {
	d := newTestDispatcher(t, func(context.Context, map[string]any) (Outcome, error) { return Outcome{}, nil })
	res := d.Dispatch(context.Background(), "send_btc", fullArgs())
	if res.Reply != "❌ Unknown function: send_btc" {
		t.Fatalf("unexpected reply: %q", res.Reply)
	}
	if xerrors.CodeOf(res.Err) != conversation.CodeUnknownAction {
		t.Fatalf("unexpected error: %v", res.Err)
	}
}

func TestDispatchMissingArguments(t *testing.T) {
	called := false
	d := newTestDispatcher(t, func(context.Context, map[string]any) (Outcome, error) {
		called = true
		return Outcome{}, nil
	})
	args := fullArgs()
	delete(args, "password")
	args["amount"] = nil

	res := d.Dispatch(context.Background(), "send_sol", args)
	if called {
		t.Fatalf("handler must not run with missing arguments")
	}
	if res.Reply != "❌ Missing required information (password, amount) to run send_sol." {
		t.Fatalf("unexpected reply: %q", res.Reply)
	}
	if xerrors.CodeOf(res.Err) != conversation.CodeMissingArguments {
		t.Fatalf("unexpected error: %v", res.Err)
	}
}

func TestDispatchSynonymRemapsOnCopy(t *testing.T) {
	var got map[string]any
	d := newTestDispatcher(t, func(_ context.Context, args map[string]any) (Outcome, error) {
		got = args
		return Outcome{Message: "ok"}, nil
	})
	args := fullArgs()
	delete(args, "toAddress")
	args["recipient"] = "ADDR9"

	res := d.Dispatch(context.Background(), "send_sol", args)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if got["toAddress"] != "ADDR9" {
		t.Fatalf("synonym not applied: %+v", got)
	}
	if _, ok := got["recipient"]; ok {
		t.Fatalf("alias should be removed from handler args: %+v", got)
	}
	if args["recipient"] != "ADDR9" || args["toAddress"] != nil {
		t.Fatalf("caller args must not be mutated: %+v", args)
	}

	// canonical wins when both are present
	args = fullArgs()
	args["recipient"] = "OTHER"
	d.Dispatch(context.Background(), "send_sol", args)
	if got["toAddress"] != "ADDR1" {
		t.Fatalf("canonical value should be kept: %+v", got)
	}
}

func TestDispatchHandlerErrorAndPanic(t *testing.T) {
	d := newTestDispatcher(t, func(context.Context, map[string]any) (Outcome, error) {
		return Outcome{}, errors.New("insufficient funds")
	})
	res := d.Dispatch(context.Background(), "send_sol", fullArgs())
	if res.Reply != "❌ Transaction Error: insufficient funds" {
		t.Fatalf("unexpected reply: %q", res.Reply)
	}
	if xerrors.CodeOf(res.Err) != conversation.CodeDispatchFailure {
		t.Fatalf("unexpected error: %v", res.Err)
	}

	d = newTestDispatcher(t, func(context.Context, map[string]any) (Outcome, error) {
		panic("nil wallet")
	})
	res = d.Dispatch(context.Background(), "send_sol", fullArgs())
	if res.Reply != "❌ Transaction Error: nil wallet" {
		t.Fatalf("unexpected reply after panic: %q", res.Reply)
	}
	if xerrors.CodeOf(res.Err) != conversation.CodeDispatchFailure {
		t.Fatalf("unexpected error: %v", res.Err)
	}
}

func TestDispatchUsesStructuredErrorMessage(t *testing.T) {
	d := newTestDispatcher(t, func(context.Context, map[string]any) (Outcome, error) {
		return Outcome{}, xerrors.Wrap(xerrors.CodeUnauthenticated, errors.New("bcrypt mismatch"), "Invalid credentials")
	})
	res := d.Dispatch(context.Background(), "send_sol", fullArgs())
	if res.Reply != "❌ Transaction Error: Invalid credentials" {
		t.Fatalf("unexpected reply: %q", res.Reply)
	}
}

func TestRegistryValidation(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("", nil, func(context.Context, map[string]any) (Outcome, error) { return Outcome{}, nil }); err == nil {
		t.Fatalf("expected error for empty name")
	}
	if err := r.Register("x", nil, nil); err == nil {
		t.Fatalf("expected error for nil handler")
	}
	if err := r.Synonym("missing", "a", "b"); err == nil {
		t.Fatalf("expected error for unknown action")
	}
	noop := func(context.Context, map[string]any) (Outcome, error) { return Outcome{}, nil }
	if err := r.Register("a", nil, noop); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Synonym("a", "recipient", "toAddress"); err != nil {
		t.Fatalf("synonym: %v", err)
	}
}

func TestDispatchFailureLogLevelFollowsSeverity(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		wantLevel string
		wantCode  string
		wantAlert bool
	}{
		{"invalid argument", xerrors.New(xerrors.CodeInvalidArgument, "Invalid recipient address"), "INFO", "INVALID_ARGUMENT", false},
		{"timeout", xerrors.New(xerrors.CodeTimeout, "not confirmed"), "WARN", "TIMEOUT", true},
		{"plain error", errors.New("boom"), "ERROR", "UNKNOWN", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			d := newTestDispatcher(t, func(context.Context, map[string]any) (Outcome, error) {
				return Outcome{}, tc.err
			})
			d.log = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

			d.Dispatch(context.Background(), "send_sol", fullArgs())

			var line map[string]any
			if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
				t.Fatalf("decode log line %q: %v", buf.String(), err)
			}
			if line["level"] != tc.wantLevel || line["code"] != tc.wantCode || line["alert"] != tc.wantAlert {
				t.Fatalf("unexpected log line: %v", line)
			}
			if line["action"] != "send_sol" {
				t.Fatalf("action missing: %v", line)
			}
		})
	}
}
