package conversation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	for _, n := range []int{0, 1, 7} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			store := NewMemoryHistoryStore()
			want := make([]Message, 0, n)
			for i := 0; i < n; i++ {
				msg := UserMessage(fmt.Sprintf("m%d", i))
				if i%2 == 1 {
					msg = AssistantMessage(fmt.Sprintf("m%d", i))
				}
				require.NoError(t, store.Append(ctx, "ctx-1", msg))
				want = append(want, msg)
			}

			got, err := store.Read(ctx, "ctx-1")
			require.NoError(t, err)
			require.Equal(t, want, got)
		})
	}
}

func TestMemoryHistorySlidingExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryHistoryStore(WithMemoryClock(clock.Now), WithMemoryTTL(time.Hour))

	require.NoError(t, store.Append(ctx, "c", UserMessage("hi")))
	clock.Advance(50 * time.Minute)
	require.NoError(t, store.Append(ctx, "c", AssistantMessage("hello")))
	clock.Advance(50 * time.Minute)

	got, err := store.Read(ctx, "c")
	require.NoError(t, err)
	require.Len(t, got, 2, "second append should have renewed the window")

	clock.Advance(61 * time.Minute)
	got, err = store.Read(ctx, "c")
	require.NoError(t, err)
	require.Empty(t, got)

	require.NoError(t, store.Append(ctx, "c", UserMessage("again")))
	got, err = store.Read(ctx, "c")
	require.NoError(t, err)
	require.Equal(t, []Message{UserMessage("again")}, got)
}

func TestMemoryHistoryRejectsEmptyContext(t *testing.T) {
	store := NewMemoryHistoryStore()
	require.Error(t, store.Append(context.Background(), " ", UserMessage("x")))
}

func TestMemoryPendingLastProposalWins(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryPendingStore()

	require.NoError(t, store.Set(ctx, "c", ActionProposal{Name: "send_sol", Arguments: map[string]any{"amount": 1.0}}, time.Minute))
	require.NoError(t, store.Set(ctx, "c", ActionProposal{Name: "send_sol", Arguments: map[string]any{"amount": 2.0}}, time.Minute))

	peeked, err := store.Peek(ctx, "c")
	require.NoError(t, err)
	require.NotNil(t, peeked)
	require.Equal(t, 2.0, peeked.Arguments["amount"])

	consumed, err := store.Consume(ctx, "c")
	require.NoError(t, err)
	require.NotNil(t, consumed)

	again, err := store.Consume(ctx, "c")
	require.NoError(t, err)
	require.Nil(t, again)
}

func TestMemoryPendingExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryPendingStore(WithMemoryClock(clock.Now))

	require.NoError(t, store.Set(ctx, "c", ActionProposal{Name: "send_sol"}, 300*time.Second))
	clock.Advance(299 * time.Second)
	p, err := store.Peek(ctx, "c")
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, 300*time.Second, p.TTL)

	clock.Advance(time.Second)
	p, err = store.Peek(ctx, "c")
	require.NoError(t, err)
	require.Nil(t, p)
	p, err = store.Consume(ctx, "c")
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestMemoryPendingPeekReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryPendingStore()
	require.NoError(t, store.Set(ctx, "c", ActionProposal{Name: "send_sol", Arguments: map[string]any{"toAddress": "A"}}, time.Minute))

	p, err := store.Peek(ctx, "c")
	require.NoError(t, err)
	p.Arguments["toAddress"] = "B"

	p2, err := store.Peek(ctx, "c")
	require.NoError(t, err)
	require.Equal(t, "A", p2.Arguments["toAddress"])
}

func TestMemoryPendingConsumeIsAtMostOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryPendingStore()
	require.NoError(t, store.Set(ctx, "c", ActionProposal{Name: "send_sol"}, time.Minute))

	const workers = 32
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := store.Consume(ctx, "c")
			if err == nil && p != nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}

func TestProposalExpired(t *testing.T) {
	now := time.Now()
	p := ActionProposal{CreatedAt: now, TTL: time.Minute}
	require.False(t, p.Expired(now.Add(59*time.Second)))
	require.True(t, p.Expired(now.Add(time.Minute)))
	require.False(t, ActionProposal{CreatedAt: now}.Expired(now.Add(time.Hour)))
}
