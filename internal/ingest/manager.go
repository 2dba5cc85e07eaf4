package ingest

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/arbwatch/arbwatch/internal/book"
	"github.com/arbwatch/arbwatch/internal/config"
	"github.com/arbwatch/arbwatch/internal/health"
	"github.com/arbwatch/arbwatch/internal/venue"
)

// Manager owns every ingestion task: one ingestor plus one coalescer per
// (venue, symbol) stream, with a shared pacer per venue. Starting the
// same stream twice is a no-op.
type Manager struct {
	cfg      *config.Config
	store    *book.Store
	reg      *health.Registry
	dropped  func()
	ingested func(venue string)

	mu     sync.Mutex
	pacers map[string]*Pacer
	active map[string]map[string]bool
}

// NewManager builds an ingestion manager. droppedBook, when non-nil, is
// called once per malformed snapshot discarded at the boundary;
// ingestedBook once per snapshot published to the store.
func NewManager(cfg *config.Config, store *book.Store, reg *health.Registry, droppedBook func(), ingestedBook func(venue string)) *Manager {
	return &Manager{
		cfg:      cfg,
		store:    store,
		reg:      reg,
		dropped:  droppedBook,
		ingested: ingestedBook,
		pacers:   make(map[string]*Pacer),
		active:   make(map[string]map[string]bool),
	}
}

// Streams is the number of (venue, symbol) tasks started.
func (m *Manager) Streams() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, syms := range m.active {
		n += len(syms)
	}
	return n
}

// Start spawns ingestion for every configured symbol a connector actually
// lists, returning the number of streams started. Connectors must already
// be connected.
func (m *Manager) Start(ctx context.Context, wg *sync.WaitGroup, conns []venue.Connector) int {
	started := 0
	for _, conn := range conns {
		started += m.StartSymbols(ctx, wg, conn, m.cfg.SymbolUniverse)
	}
	return started
}

// StartSymbols spawns ingestion on one connector for the given symbols,
// skipping symbols the venue does not list and streams already running.
func (m *Manager) StartSymbols(ctx context.Context, wg *sync.WaitGroup, conn venue.Connector, syms []string) int {
	markets := conn.Markets()
	started := 0
	for _, symbol := range syms {
		if _, ok := markets[symbol]; !ok {
			continue
		}
		if !m.claim(conn.Name(), symbol) {
			continue
		}
		m.startStream(ctx, wg, conn, symbol)
		started++
	}
	return started
}

// claim marks a stream active, returning false when it already was.
func (m *Manager) claim(venueName, symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	syms, ok := m.active[venueName]
	if !ok {
		syms = make(map[string]bool)
		m.active[venueName] = syms
	}
	if syms[symbol] {
		return false
	}
	syms[symbol] = true
	return true
}

func (m *Manager) ingestedFor(venueName string) func() {
	if m.ingested == nil {
		return nil
	}
	return func() { m.ingested(venueName) }
}

func (m *Manager) pacer(conn venue.Connector) *Pacer {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pacers[conn.Name()]
	if !ok {
		p = NewPacer(conn.Name(), conn.RateLimitMS())
		m.pacers[conn.Name()] = p
	}
	return p
}

func (m *Manager) startStream(ctx context.Context, wg *sync.WaitGroup, conn venue.Connector, symbol string) {
	queue := NewQueue()
	m.reg.Subscribe(conn.Name(), symbol)

	poller := NewPoller(conn, m.pacer(conn), symbol, m.cfg.DepthLevels, m.cfg.IsHot(symbol), queue, m.reg, m.dropped)
	coalescer := NewCoalescer(conn.Name(), symbol, queue, m.store, m.cfg.CoalesceWindow, m.reg, m.ingestedFor(conn.Name()))

	wg.Add(2)
	go func() {
		defer wg.Done()
		coalescer.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if conn.SupportsStreaming() {
			maxBackoff := m.cfg.BackoffMax
			if maxBackoff <= 0 {
				maxBackoff = reconnectMax
			}
			attempts := m.cfg.MaxReconnectAttempts
			if attempts <= 0 {
				attempts = maxReconnectAttempts
			}
			backoff := NewBackoff(reconnectBase, maxBackoff, attempts)
			NewStreamer(conn, symbol, m.cfg.DepthLevels, queue, m.reg, poller, backoff).Run(ctx)
		} else {
			poller.Run(ctx)
		}
	}()

	log.Debug().Str("venue", conn.Name()).Str("symbol", symbol).
		Bool("streaming", conn.SupportsStreaming()).
		Msg("ingestion started")
}
