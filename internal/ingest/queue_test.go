package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbwatch/arbwatch/internal/book"
	"github.com/arbwatch/arbwatch/internal/health"
	"github.com/arbwatch/arbwatch/internal/models"
)

func snapshot(nonce int64) *models.OrderBook {
	return &models.OrderBook{
		Venue:     "binance",
		Symbol:    "BTC/USDT",
		Bids:      []models.DepthLevel{{Price: 100, Amount: 1}},
		Asks:      []models.DepthLevel{{Price: 101, Amount: 1}},
		Timestamp: time.Now(),
		Nonce:     nonce,
	}
}

func TestQueueDropsOldestOnOverflow(t *testing.T) {
	q := NewQueue()

	assert.False(t, q.Push(snapshot(1)))
	assert.False(t, q.Push(snapshot(2)))
	assert.True(t, q.Push(snapshot(3)), "third push evicts the oldest")

	assert.Equal(t, 2, q.Len())
	assert.Equal(t, int64(1), q.Dropped())

	newest, drained := q.DrainNewest()
	require.NotNil(t, newest)
	assert.Equal(t, int64(3), newest.Nonce)
	assert.Equal(t, 2, drained, "snapshot 1 was evicted, 2 and 3 remain")
}

func TestQueueDrainNewest(t *testing.T) {
	q := NewQueue()
	q.Push(snapshot(1))
	q.Push(snapshot(2))

	newest, drained := q.DrainNewest()
	require.NotNil(t, newest)
	assert.Equal(t, int64(2), newest.Nonce)
	assert.Equal(t, 2, drained)
	assert.Equal(t, 0, q.Len())

	newest, drained = q.DrainNewest()
	assert.Nil(t, newest)
	assert.Zero(t, drained)
}

func TestQueueWaitSignalsOnPush(t *testing.T) {
	q := NewQueue()

	select {
	case <-q.Wait():
		t.Fatal("no signal expected before push")
	default:
	}

	q.Push(snapshot(1))
	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("expected signal after push")
	}
}

func TestCoalescerPublishesNewestPerWindow(t *testing.T) {
	q := NewQueue()
	store := book.NewStore()
	reg := health.NewRegistry()
	ingested := 0
	c := NewCoalescer("binance", "BTC/USDT", q, store, 20*time.Millisecond, reg, func() { ingested++ })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	q.Push(snapshot(1))
	q.Push(snapshot(2))

	require.Eventually(t, func() bool {
		b, ok := store.Get("binance", "BTC/USDT")
		return ok && b.Nonce == 2
	}, time.Second, 5*time.Millisecond, "newest snapshot wins the window")

	q.Push(snapshot(7))
	require.Eventually(t, func() bool {
		b, _ := store.Get("binance", "BTC/USDT")
		return b != nil && b.Nonce == 7
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, 2, ingested, "one publish per non-empty window")
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	b := NewBackoff(time.Millisecond, 4*time.Millisecond, 5)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		assert.True(t, b.Next(ctx), "attempt %d within budget", i)
	}
	// 1 + 2 + 4 + 4 + 4 ms, capped at max
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)

	assert.False(t, b.Next(ctx), "attempts exhausted")
	assert.Equal(t, 5, b.Attempts())

	b.Reset()
	assert.True(t, b.Next(ctx))
}

func TestBackoffCancellation(t *testing.T) {
	b := NewBackoff(time.Hour, time.Hour, 3)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	assert.False(t, b.Next(ctx))
}

func TestPacerGateBounds(t *testing.T) {
	assert.Equal(t, 10, cap(NewPacer("binance", 50).gate))
	assert.Equal(t, 5, cap(NewPacer("okx", 200).gate))
	assert.Equal(t, 1, cap(NewPacer("slow", 2000).gate))
	assert.Equal(t, 5, cap(NewPacer("zero", 0).gate), "unset rate limit uses the 200ms default")
}

func TestPacerRunsRequest(t *testing.T) {
	p := NewPacer("binance", 1)
	b, err := p.Do(context.Background(), func() (*models.OrderBook, error) {
		return snapshot(9), nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9), b.Nonce)
}
