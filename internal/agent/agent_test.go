package agent

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/SunilRudraKumar/Easy/internal/action"
	"github.com/SunilRudraKumar/Easy/internal/conversation"
	xerrors "github.com/SunilRudraKumar/Easy/internal/errors"
	"github.com/SunilRudraKumar/Easy/internal/events"
	"github.com/SunilRudraKumar/Easy/internal/gateway"
	"github.com/SunilRudraKumar/Easy/internal/llm"
	"github.com/SunilRudraKumar/Easy/internal/observability/metrics"
)

const proposalJSON = `{"function":"send_sol","arguments":{"senderEmail":"a@b.com","password":"p","toAddress":"ADDR1","amount":2}}`

// scriptedLLM returns the queued replies in order, then repeats the last one.
type scriptedLLM struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func (s *scriptedLLM) Generate(context.Context, llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	text := s.replies[len(s.replies)-1]
	if s.calls <= len(s.replies) {
		text = s.replies[s.calls-1]
	}
	return &llm.Response{Text: text}, nil
}

func (s *scriptedLLM) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type authorizerFunc func(ctx context.Context, userID string, p conversation.ActionProposal) (bool, error)

func (f authorizerFunc) Authorize(ctx context.Context, userID string, p conversation.ActionProposal) (bool, error) {
	return f(ctx, userID, p)
}

func allow() authorizerFunc {
	return func(context.Context, string, conversation.ActionProposal) (bool, error) { return true, nil }
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	agent      *Agent
	history    *conversation.MemoryHistoryStore
	pending    *conversation.MemoryPendingStore
	llm        *scriptedLLM
	dispatched *atomic.Int32
	published  *events.Memory
	clock      *clock
}

func newHarness(t *testing.T, authz authorizerFunc, replies ...string) *harness {
	t.Helper()
	clk := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	h := &harness{
		history:    conversation.NewMemoryHistoryStore(conversation.WithMemoryClock(clk.Now)),
		pending:    conversation.NewMemoryPendingStore(conversation.WithMemoryClock(clk.Now)),
		llm:        &scriptedLLM{replies: replies},
		dispatched: &atomic.Int32{},
		published:  events.NewMemory(0),
		clock:      clk,
	}
	gw, err := gateway.New(h.llm)
	require.NoError(t, err)

	reg := action.NewRegistry()
	require.NoError(t, reg.Register("send_sol", gateway.SendSOL.Required, func(_ context.Context, args map[string]any) (action.Outcome, error) {
		h.dispatched.Add(1)
		return action.Outcome{Message: "✅ Sent 2 SOL to ADDR1", Data: map[string]any{"txHash": "SIG"}}, nil
	}))

	h.agent, err = New(h.history, h.pending, gw, action.NewDispatcher(reg), authz,
		WithClock(clk.Now), WithPublisher(h.published), WithPendingTTL(300*time.Second))
	require.NoError(t, err)
	return h
}

func turn(contextID, content string) TurnRequest {
	return TurnRequest{ContextID: contextID, Messages: []conversation.Message{conversation.UserMessage(content)}, UserID: "u1"}
}

func (h *harness) eventTypes() []events.Type {
	var out []events.Type
	for _, ev := range h.published.Events() {
		out = append(out, ev.Type)
	}
	return out
}

func TestClassify(t *testing.T) {
	cases := map[string]Classification{
		"yes": Affirm, " YES ": Affirm, "y": Affirm, "Confirm": Affirm, "proceed": Affirm, "ok": Affirm, "okay": Affirm,
		"no": Deny, "N": Deny, "cancel": Deny, "stop ": Deny,
		"yes please": Neither, "nope": Neither, "": Neither, "send 2 SOL": Neither,
	}
	for in, want := range cases {
		require.Equal(t, want, Classify(in), "input %q", in)
	}
}

func TestTurnRequestValidate(t *testing.T) {
	msg := func(err error) string {
		xe, ok := xerrors.From(err)
		require.True(t, ok)
		require.Equal(t, xerrors.CodeInvalidArgument, xe.Code())
		return xe.Message()
	}

	require.Equal(t, msgInvalidPayload, msg(TurnRequest{Messages: []conversation.Message{conversation.UserMessage("hi")}}.Validate()))
	require.Equal(t, msgInvalidPayload, msg(TurnRequest{ContextID: "c"}.Validate()))
	require.Equal(t, msgLastNotUser, msg(TurnRequest{ContextID: "c", Messages: []conversation.Message{conversation.AssistantMessage("hi")}}.Validate()))
	require.Equal(t, msgInvalidRole, msg(TurnRequest{ContextID: "c", Messages: []conversation.Message{{Role: "system", Content: "x"}, conversation.UserMessage("hi")}}.Validate()))
	require.NoError(t, turn("c", "hi").Validate())
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(nil, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestPlainReplyTurn(t *testing.T) {
	h := newHarness(t, allow(), "Hello! How can I help?")
	ctx := context.Background()

	resp, err := h.agent.HandleTurn(ctx, turn("c1", "hi"))
	require.NoError(t, err)
	require.Equal(t, "Hello! How can I help?", resp.Reply)
	require.False(t, resp.NeedsConfirmation)

	history, err := h.history.Read(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, []conversation.Message{conversation.UserMessage("hi"), conversation.AssistantMessage("Hello! How can I help?")}, history)
}

func TestProposalThenConfirm(t *testing.T) {
	h := newHarness(t, allow(), proposalJSON)
	ctx := context.Background()

	resp, err := h.agent.HandleTurn(ctx, turn("c1", "send 2 SOL to ADDR1 from a@b.com, password p"))
	require.NoError(t, err)
	require.True(t, resp.NeedsConfirmation)
	require.Equal(t, "Okay, I have the details to send 2 SOL to ADDR1 using the email a@b.com. Shall I proceed? (Reply yes/no)", resp.Reply)

	pending, err := h.pending.Peek(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, pending)

	resp, err = h.agent.HandleTurn(ctx, turn("c1", "Yes"))
	require.NoError(t, err)
	require.Equal(t, "✅ Sent 2 SOL to ADDR1", resp.Reply)
	require.Equal(t, map[string]any{"txHash": "SIG"}, resp.Data)
	require.EqualValues(t, 1, h.dispatched.Load())
	require.Equal(t, 1, h.llm.Calls())

	pending, err = h.pending.Peek(ctx, "c1")
	require.NoError(t, err)
	require.Nil(t, pending)

	history, err := h.history.Read(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, history, 5)
	require.Equal(t, conversation.UserMessage("Yes"), history[2])
	require.Equal(t, conversation.AssistantMessage("Okay, executing the action: send_sol"), history[3])
	require.Equal(t, conversation.AssistantMessage("✅ Sent 2 SOL to ADDR1"), history[4])

	require.Equal(t, []events.Type{events.TypeProposalCreated, events.TypeActionConfirmed, events.TypeActionDispatched}, h.eventTypes())
	for _, ev := range h.published.Events() {
		require.Equal(t, "***", ev.Arguments["password"])
	}
}

func TestDenyNeverDispatches(t *testing.T) {
	h := newHarness(t, allow(), proposalJSON)
	ctx := context.Background()

	_, err := h.agent.HandleTurn(ctx, turn("c1", "send it"))
	require.NoError(t, err)

	resp, err := h.agent.HandleTurn(ctx, turn("c1", " no "))
	require.NoError(t, err)
	require.Equal(t, "Okay, I've cancelled the action.", resp.Reply)
	require.Zero(t, h.dispatched.Load())

	pending, err := h.pending.Peek(ctx, "c1")
	require.NoError(t, err)
	require.Nil(t, pending)

	history, err := h.history.Read(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, conversation.AssistantMessage("Okay, I have cancelled the pending action."), history[len(history)-1])
	require.Contains(t, h.eventTypes(), events.TypeActionDenied)
}

func TestDenyWithoutPendingIsNormalTurn(t *testing.T) {
	h := newHarness(t, allow(), "Alright, nothing to cancel.")
	resp, err := h.agent.HandleTurn(context.Background(), turn("c1", "no"))
	require.NoError(t, err)
	require.Equal(t, "Alright, nothing to cancel.", resp.Reply)
	require.Equal(t, 1, h.llm.Calls())
}

func TestUnauthorizedConfirmation(t *testing.T) {
	for name, authz := range map[string]authorizerFunc{
		"denied": func(context.Context, string, conversation.ActionProposal) (bool, error) { return false, nil },
		"error":  func(context.Context, string, conversation.ActionProposal) (bool, error) { return true, errors.New("db down") },
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, authz, proposalJSON)
			ctx := context.Background()

			_, err := h.agent.HandleTurn(ctx, turn("c1", "send it"))
			require.NoError(t, err)

			resp, err := h.agent.HandleTurn(ctx, turn("c1", "yes"))
			require.NoError(t, err)
			require.Equal(t, "Action cancelled: Confirmation failed.", resp.Reply)
			require.Zero(t, h.dispatched.Load())

			pending, err := h.pending.Peek(ctx, "c1")
			require.NoError(t, err)
			require.Nil(t, pending, "a failed confirmation consumes the proposal")

			history, err := h.history.Read(ctx, "c1")
			require.NoError(t, err)
			require.Equal(t, conversation.AssistantMessage("Action cancelled due to failed confirmation."), history[len(history)-1])
			require.Contains(t, h.eventTypes(), events.TypeAuthorizationFailed)
		})
	}
}

func TestExpiredProposalMakesYesANormalTurn(t *testing.T) {
	h := newHarness(t, allow(), proposalJSON, "There is nothing to confirm.")
	ctx := context.Background()

	_, err := h.agent.HandleTurn(ctx, turn("c1", "send it"))
	require.NoError(t, err)

	h.clock.Advance(301 * time.Second)
	resp, err := h.agent.HandleTurn(ctx, turn("c1", "yes"))
	require.NoError(t, err)
	require.Equal(t, "There is nothing to confirm.", resp.Reply)
	require.Zero(t, h.dispatched.Load())
	require.Equal(t, 2, h.llm.Calls())
}

func TestMissingArgumentsNeverStoreProposal(t *testing.T) {
	h := newHarness(t, allow(), `{"function":"send_sol","arguments":{"senderEmail":"a@b.com","password":"p","toAddress":"ADDR1"}}`)
	ctx := context.Background()

	resp, err := h.agent.HandleTurn(ctx, turn("c1", "send SOL to ADDR1"))
	require.NoError(t, err)
	require.False(t, resp.NeedsConfirmation)
	require.Contains(t, resp.Reply, "amount")

	pending, err := h.pending.Peek(ctx, "c1")
	require.NoError(t, err)
	require.Nil(t, pending)
}

func TestNewProposalReplacesOld(t *testing.T) {
	second := `{"function":"send_sol","arguments":{"senderEmail":"a@b.com","password":"p","toAddress":"ADDR2","amount":3}}`
	h := newHarness(t, allow(), proposalJSON, second)
	ctx := context.Background()

	_, err := h.agent.HandleTurn(ctx, turn("c1", "send 2"))
	require.NoError(t, err)
	_, err = h.agent.HandleTurn(ctx, turn("c1", "actually 3 to ADDR2"))
	require.NoError(t, err)

	pending, err := h.pending.Peek(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, "ADDR2", pending.Arguments["toAddress"])
}

type brokenHistory struct{ conversation.MemoryHistoryStore }

func (*brokenHistory) Append(context.Context, string, ...conversation.Message) error {
	return xerrors.New(xerrors.CodeStorageFailure, "redis unreachable")
}

func TestStoreFailureIsReturned(t *testing.T) {
	h := newHarness(t, allow(), "hi")
	h.agent.history = &brokenHistory{}

	_, err := h.agent.HandleTurn(context.Background(), turn("c1", "hello"))
	require.Equal(t, xerrors.CodeStorageFailure, xerrors.CodeOf(err))
}

type failingLLM struct{ err error }

func (f failingLLM) Generate(context.Context, llm.Request) (*llm.Response, error) {
	return nil, f.err
}

func turnsTotal(t *testing.T, outcome string) float64 {
	t.Helper()
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	prefix := `easymcp_turns_total{outcome="` + outcome + `"} `
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if strings.HasPrefix(line, prefix) {
			v, err := strconv.ParseFloat(strings.TrimPrefix(line, prefix), 64)
			require.NoError(t, err)
			return v
		}
	}
	return 0
}

func TestModelFailureRepliesAndCountsAsError(t *testing.T) {
	h := newHarness(t, allow(), "unused")
	gw, err := gateway.New(failingLLM{err: errors.New("rate limited")})
	require.NoError(t, err)
	h.agent.model = gw
	ctx := context.Background()

	errorsBefore := turnsTotal(t, "error")
	repliesBefore := turnsTotal(t, "reply")

	resp, err := h.agent.HandleTurn(ctx, turn("c1", "hi"))
	require.NoError(t, err)
	require.Equal(t, "Error: rate limited", resp.Reply)
	require.False(t, resp.NeedsConfirmation)

	history, err := h.history.Read(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, []conversation.Message{conversation.UserMessage("hi"), conversation.AssistantMessage("Error: rate limited")}, history)

	require.Equal(t, errorsBefore+1, turnsTotal(t, "error"))
	require.Equal(t, repliesBefore, turnsTotal(t, "reply"))
}

func TestDispatchTimeoutBoundsHandler(t *testing.T) {
	h := newHarness(t, allow(), proposalJSON)
	reg := action.NewRegistry()
	require.NoError(t, reg.Register("send_sol", gateway.SendSOL.Required, func(ctx context.Context, _ map[string]any) (action.Outcome, error) {
		<-ctx.Done()
		return action.Outcome{}, ctx.Err()
	}))
	h.agent.dispatcher = action.NewDispatcher(reg)
	WithDispatchTimeout(20 * time.Millisecond)(h.agent)
	ctx := context.Background()

	_, err := h.agent.HandleTurn(ctx, turn("c1", "send 2 SOL to ADDR1"))
	require.NoError(t, err)

	started := time.Now()
	resp, err := h.agent.HandleTurn(ctx, turn("c1", "yes"))
	require.NoError(t, err)
	require.Less(t, time.Since(started), 5*time.Second)
	require.Contains(t, resp.Reply, "Transaction Error")
}

func TestInvalidRequestTouchesNoStore(t *testing.T) {
	h := newHarness(t, allow(), "hi")
	_, err := h.agent.HandleTurn(context.Background(), TurnRequest{ContextID: "c1"})
	require.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
	require.Zero(t, h.llm.Calls())
}

func TestConcurrentConfirmationsDispatchOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t, allow(), proposalJSON, "Nothing pending.")
	ctx := context.Background()
	_, err := h.agent.HandleTurn(ctx, turn("race", "send it"))
	require.NoError(t, err)

	var (
		mu      sync.Mutex
		replies []string
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			resp, err := h.agent.HandleTurn(gctx, turn("race", "yes"))
			if err != nil {
				return err
			}
			mu.Lock()
			replies = append(replies, resp.Reply)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.EqualValues(t, 1, h.dispatched.Load())
	require.ElementsMatch(t, []string{"✅ Sent 2 SOL to ADDR1", "Nothing pending."}, replies)
}
