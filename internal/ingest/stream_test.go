package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbwatch/arbwatch/internal/health"
	"github.com/arbwatch/arbwatch/internal/models"
)

type fakeStreamConnector struct {
	books chan *models.OrderBook
	err   error
}

func (f *fakeStreamConnector) Name() string                   { return "fakex" }
func (f *fakeStreamConnector) Connect(context.Context) error  { return nil }
func (f *fakeStreamConnector) Disconnect()                    {}
func (f *fakeStreamConnector) SupportsStreaming() bool        { return true }
func (f *fakeStreamConnector) RateLimitMS() int               { return 100 }
func (f *fakeStreamConnector) Fees() (float64, float64, bool) { return 0, 0, false }
func (f *fakeStreamConnector) Markets() map[string]models.MarketMeta {
	return map[string]models.MarketMeta{"BTC/USDT": {Symbol: "BTC/USDT", Active: true}}
}
func (f *fakeStreamConnector) PollBook(context.Context, string, int) (*models.OrderBook, error) {
	return snapshot(99), nil
}
func (f *fakeStreamConnector) StreamBooks(context.Context, string, int) (<-chan *models.OrderBook, error) {
	return f.books, f.err
}

func TestStreamerConsumePumpsQueue(t *testing.T) {
	conn := &fakeStreamConnector{books: make(chan *models.OrderBook, 4)}
	q := NewQueue()
	reg := health.NewRegistry()
	s := NewStreamer(conn, "BTC/USDT", 10, q, reg, nil, nil)

	conn.books <- snapshot(1)
	conn.books <- snapshot(2)
	close(conn.books)

	delivered, err := s.consume(context.Background())
	assert.True(t, delivered)
	assert.ErrorIs(t, err, errStreamClosed)
	assert.Equal(t, 2, q.Len())

	snaps := reg.Snapshot()
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].StreamConnected)
	assert.False(t, snaps[0].LastStreamMsg.IsZero())
}

func TestStreamerConsumeSkipsOneSidedBooks(t *testing.T) {
	conn := &fakeStreamConnector{books: make(chan *models.OrderBook, 2)}
	q := NewQueue()
	s := NewStreamer(conn, "BTC/USDT", 10, q, health.NewRegistry(), nil, nil)

	bad := snapshot(1)
	bad.Asks = nil
	conn.books <- bad
	close(conn.books)

	delivered, _ := s.consume(context.Background())
	assert.False(t, delivered)
	assert.Equal(t, 0, q.Len())
}

func TestStreamerRunHonorsReconnectBudget(t *testing.T) {
	conn := &fakeStreamConnector{books: make(chan *models.OrderBook)}
	close(conn.books)

	b := NewBackoff(time.Millisecond, 2*time.Millisecond, 2)
	s := NewStreamer(conn, "BTC/USDT", 10, NewQueue(), health.NewRegistry(), nil, b)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("streamer did not surrender after the configured attempts")
	}
	assert.Equal(t, 2, b.Attempts())
}

func TestStreamerConsumeStopsOnCancel(t *testing.T) {
	conn := &fakeStreamConnector{books: make(chan *models.OrderBook)}
	s := NewStreamer(conn, "BTC/USDT", 10, NewQueue(), health.NewRegistry(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.consume(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
