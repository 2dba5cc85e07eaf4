package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/arbwatch/arbwatch/internal/book"
	"github.com/arbwatch/arbwatch/internal/config"
	"github.com/arbwatch/arbwatch/internal/health"
	"github.com/arbwatch/arbwatch/internal/models"
	"github.com/arbwatch/arbwatch/internal/venue"
)

func TestManagerStartsListedSymbolsOnce(t *testing.T) {
	cfg := &config.Config{
		SymbolUniverse: []string{"BTC/USDT", "ETH/USDT"},
		DepthLevels:    10,
		CoalesceWindow: 10 * time.Millisecond,
	}
	m := NewManager(cfg, book.NewStore(), health.NewRegistry(), nil, nil)
	conn := &fakeStreamConnector{books: make(chan *models.OrderBook)}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	started := m.Start(ctx, &wg, []venue.Connector{conn})
	assert.Equal(t, 1, started, "only symbols the venue lists are started")
	assert.Equal(t, 1, m.Streams())

	// a second request for the same stream is a no-op
	assert.Zero(t, m.StartSymbols(ctx, &wg, conn, []string{"BTC/USDT"}))
	assert.Equal(t, 1, m.Streams())

	cancel()
	close(conn.books)
	wg.Wait()
}
