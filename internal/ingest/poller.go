package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/arbwatch/arbwatch/internal/health"
	"github.com/arbwatch/arbwatch/internal/models"
	"github.com/arbwatch/arbwatch/internal/venue"
)

const (
	hotPollInterval  = 1 * time.Second
	coldPollInterval = 3 * time.Second
)

// Pacer serializes a venue's REST traffic: minimum inter-request spacing
// equal to the venue's declared rate limit, a concurrency gate of
// max(1, min(10, 1000/rate_limit_ms)) in-flight requests, and a circuit
// breaker that sheds ticks while the venue misbehaves.
type Pacer struct {
	limiter *rate.Limiter
	gate    chan struct{}
	breaker *gobreaker.CircuitBreaker
}

// NewPacer builds the shared pacing state for one venue.
func NewPacer(venueName string, rateLimitMS int) *Pacer {
	if rateLimitMS <= 0 {
		rateLimitMS = 200
	}
	slots := 1000 / rateLimitMS
	if slots < 1 {
		slots = 1
	}
	if slots > 10 {
		slots = 10
	}

	settings := gobreaker.Settings{
		Name:    venueName,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	interval := time.Duration(rateLimitMS) * time.Millisecond
	return &Pacer{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		gate:    make(chan struct{}, slots),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Do runs one paced request.
func (p *Pacer) Do(ctx context.Context, fn func() (*models.OrderBook, error)) (*models.OrderBook, error) {
	select {
	case p.gate <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.gate }()

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	out, err := p.breaker.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		return nil, err
	}
	return out.(*models.OrderBook), nil
}

// Poller fetches depth snapshots for one (venue, symbol) stream at an
// adaptive cadence: 1s for the hot set, 3s otherwise.
type Poller struct {
	conn    venue.Connector
	pacer   *Pacer
	symbol  string
	depth   int
	hot     bool
	queue   *Queue
	reg     *health.Registry
	dropped func() // malformed-book counter hook
}

// NewPoller builds a poll-mode ingestor for one stream.
func NewPoller(conn venue.Connector, pacer *Pacer, symbol string, depthLevels int, hot bool, queue *Queue, reg *health.Registry, droppedBook func()) *Poller {
	return &Poller{
		conn:    conn,
		pacer:   pacer,
		symbol:  symbol,
		depth:   depthLevels,
		hot:     hot,
		queue:   queue,
		reg:     reg,
		dropped: droppedBook,
	}
}

// Run polls until ctx is done. Transport errors drop the tick; malformed
// books are dropped with a counter increment.
func (p *Poller) Run(ctx context.Context) {
	interval := coldPollInterval
	if p.hot {
		interval = hotPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		b, err := p.pacer.Do(ctx, func() (*models.OrderBook, error) {
			return p.conn.PollBook(ctx, p.symbol, p.depth)
		})
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			p.reg.RestResult(p.conn.Name(), false)
			var crossed *models.ErrCrossedBook
			if errors.As(err, &crossed) {
				if p.dropped != nil {
					p.dropped()
				}
				log.Debug().Str("venue", p.conn.Name()).Str("symbol", p.symbol).
					Msg("crossed book dropped")
			} else {
				log.Debug().Err(err).Str("venue", p.conn.Name()).Str("symbol", p.symbol).
					Msg("poll tick dropped")
			}
		case b == nil || !b.TwoSided():
			p.reg.RestResult(p.conn.Name(), false)
			if p.dropped != nil {
				p.dropped()
			}
		default:
			p.reg.RestResult(p.conn.Name(), true)
			if p.queue.Push(b) {
				p.reg.Coalesced(p.conn.Name(), 1)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
