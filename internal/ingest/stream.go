package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/arbwatch/arbwatch/internal/health"
	"github.com/arbwatch/arbwatch/internal/venue"
)

const (
	reconnectBase        = 1 * time.Second
	reconnectMax         = 60 * time.Second
	maxReconnectAttempts = 5
)

var errStreamClosed = errors.New("stream channel closed")

// Streamer drives one (venue, symbol) websocket subscription. On stream
// failure it reconnects with capped exponential backoff; after the attempt
// budget is exhausted the stream downgrades to polling for the rest of the
// process lifetime.
type Streamer struct {
	conn     venue.Connector
	symbol   string
	depth    int
	queue    *Queue
	reg      *health.Registry
	fallback *Poller
	backoff  *Backoff
}

// NewStreamer builds a stream-mode ingestor. fallback, when non-nil, takes
// over permanently once reconnection gives up. A nil backoff selects the
// default reconnect policy.
func NewStreamer(conn venue.Connector, symbol string, depthLevels int, queue *Queue, reg *health.Registry, fallback *Poller, backoff *Backoff) *Streamer {
	if backoff == nil {
		backoff = NewBackoff(reconnectBase, reconnectMax, maxReconnectAttempts)
	}
	return &Streamer{
		conn:     conn,
		symbol:   symbol,
		depth:    depthLevels,
		queue:    queue,
		reg:      reg,
		fallback: fallback,
		backoff:  backoff,
	}
}

// Run consumes the stream until ctx is done or reconnection is exhausted.
func (s *Streamer) Run(ctx context.Context) {
	backoff := s.backoff
	backoff.Reset()

	for ctx.Err() == nil {
		delivered, err := s.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.reg.MarkStream(s.conn.Name(), false)
			s.reg.Error(s.conn.Name())
			log.Warn().Err(err).Str("venue", s.conn.Name()).Str("symbol", s.symbol).
				Msg("stream dropped")
		}
		if delivered {
			backoff.Reset()
		}

		s.reg.Reconnect(s.conn.Name())
		if !backoff.Next(ctx) {
			break
		}
	}
	if ctx.Err() != nil {
		return
	}

	s.reg.MarkStream(s.conn.Name(), false)
	if s.fallback == nil {
		log.Error().Str("venue", s.conn.Name()).Str("symbol", s.symbol).
			Msg("stream reconnection exhausted, no poll fallback")
		return
	}
	log.Warn().Str("venue", s.conn.Name()).Str("symbol", s.symbol).
		Int("attempts", backoff.Attempts()).
		Msg("stream reconnection exhausted, downgrading to poll")
	s.fallback.Run(ctx)
}

// consume opens one subscription and pumps books into the queue until the
// channel closes. delivered reports whether at least one usable book came
// through, which resets the caller's backoff.
func (s *Streamer) consume(ctx context.Context) (delivered bool, err error) {
	books, err := s.conn.StreamBooks(ctx, s.symbol, s.depth)
	if err != nil {
		return false, err
	}
	s.reg.MarkStream(s.conn.Name(), true)

	for {
		select {
		case <-ctx.Done():
			return delivered, ctx.Err()
		case b, ok := <-books:
			if !ok {
				return delivered, errStreamClosed
			}
			if b == nil || !b.TwoSided() {
				continue
			}
			delivered = true
			s.reg.StreamMsg(s.conn.Name())
			if s.queue.Push(b) {
				s.reg.Coalesced(s.conn.Name(), 1)
			}
		}
	}
}
