// Package health tracks per-venue data-flow health and periodically
// snapshots it into the persistence sink.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/arbwatch/arbwatch/internal/models"
)

// Registry is the shared mutable health table. Ingestors and schedulers
// update it; the collector reads it. All operations are O(1) map updates
// under one mutex.
type Registry struct {
	mu     sync.Mutex
	venues map[string]*venueState
	now    func() time.Time
}

type venueState struct {
	streamConnected bool
	restOK          bool
	lastStreamMsg   time.Time
	lastRest        time.Time
	reconnects      int
	errorsLastMin   []time.Time
	queueDepth      int
	coalesced       int64
	schedulerLagMS  float64
	symbols         map[string]struct{}
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		venues: make(map[string]*venueState),
		now:    time.Now,
	}
}

func (r *Registry) state(venue string) *venueState {
	st, ok := r.venues[venue]
	if !ok {
		st = &venueState{symbols: make(map[string]struct{})}
		r.venues[venue] = st
	}
	return st
}

// Subscribe records that a stream or poll task covers (venue, symbol).
func (r *Registry) Subscribe(venue, symbol string) {
	r.mu.Lock()
	r.state(venue).symbols[symbol] = struct{}{}
	r.mu.Unlock()
}

// MarkStream flips the stream-connected flag for a venue.
func (r *Registry) MarkStream(venue string, connected bool) {
	r.mu.Lock()
	r.state(venue).streamConnected = connected
	r.mu.Unlock()
}

// StreamMsg records a received stream message.
func (r *Registry) StreamMsg(venue string) {
	r.mu.Lock()
	st := r.state(venue)
	st.streamConnected = true
	st.lastStreamMsg = r.now()
	r.mu.Unlock()
}

// RestResult records the outcome of a REST poll.
func (r *Registry) RestResult(venue string, ok bool) {
	r.mu.Lock()
	st := r.state(venue)
	st.restOK = ok
	if ok {
		st.lastRest = r.now()
	} else {
		st.errorsLastMin = append(st.errorsLastMin, r.now())
	}
	r.mu.Unlock()
}

// Reconnect counts a stream reconnect attempt.
func (r *Registry) Reconnect(venue string) {
	r.mu.Lock()
	r.state(venue).reconnects++
	r.mu.Unlock()
}

// Error counts a transport error against the venue's error rate.
func (r *Registry) Error(venue string) {
	r.mu.Lock()
	st := r.state(venue)
	st.errorsLastMin = append(st.errorsLastMin, r.now())
	r.mu.Unlock()
}

// Coalesced counts snapshots dropped by queue overflow or window
// coalescing.
func (r *Registry) Coalesced(venue string, n int64) {
	r.mu.Lock()
	r.state(venue).coalesced += n
	r.mu.Unlock()
}

// QueueDepth records the current per-stream queue depth high-water mark.
func (r *Registry) QueueDepth(venue string, depth int) {
	r.mu.Lock()
	st := r.state(venue)
	if depth > st.queueDepth {
		st.queueDepth = depth
	}
	r.mu.Unlock()
}

// SchedulerLag records how far past its cadence the last scan pass ran.
func (r *Registry) SchedulerLag(venue string, lagMS float64) {
	r.mu.Lock()
	r.state(venue).schedulerLagMS = lagMS
	r.mu.Unlock()
}

// Snapshot renders the current state of every venue. Queue-depth
// high-water marks reset after each snapshot; error rates cover the
// trailing minute.
func (r *Registry) Snapshot() []models.VenueHealth {
	now := r.now()
	cutoff := now.Add(-time.Minute)

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.VenueHealth, 0, len(r.venues))
	for venue, st := range r.venues {
		kept := st.errorsLastMin[:0]
		for _, t := range st.errorsLastMin {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		st.errorsLastMin = kept

		syms := make([]string, 0, len(st.symbols))
		for s := range st.symbols {
			syms = append(syms, s)
		}

		out = append(out, models.VenueHealth{
			Venue:             venue,
			StreamConnected:   st.streamConnected,
			RestOK:            st.restOK,
			LastStreamMsg:     st.lastStreamMsg,
			LastRest:          st.lastRest,
			ReconnectCount:    st.reconnects,
			ErrorRate:         float64(len(st.errorsLastMin)),
			QueueDepth:        st.queueDepth,
			CoalescedCount:    st.coalesced,
			SchedulerLagMS:    st.schedulerLagMS,
			SubscribedSymbols: syms,
			Timestamp:         now,
		})
		st.queueDepth = 0
	}
	return out
}

// Sink receives health snapshots.
type Sink interface {
	AppendHealth(h models.VenueHealth) error
}

// Collector periodically snapshots the registry into the sink.
type Collector struct {
	registry *Registry
	sink     Sink
	interval time.Duration
	observe  func(h models.VenueHealth)
}

// NewCollector builds a collector with the configured cadence. The
// observe hook, when non-nil, sees every snapshot entry before it is
// written to the sink.
func NewCollector(registry *Registry, sink Sink, interval time.Duration, observe func(h models.VenueHealth)) *Collector {
	return &Collector{registry: registry, sink: sink, interval: interval, observe: observe}
}

// Run snapshots until ctx is done.
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			for _, h := range c.registry.Snapshot() {
				if c.observe != nil {
					c.observe(h)
				}
				if !h.Healthy(now) {
					log.Warn().Str("venue", h.Venue).
						Bool("stream", h.StreamConnected).Bool("rest", h.RestOK).
						Msg("venue unhealthy")
				}
				if c.sink == nil {
					continue
				}
				if err := c.sink.AppendHealth(h); err != nil {
					log.Error().Err(err).Str("venue", h.Venue).Msg("health snapshot append failed")
				}
			}
		}
	}
}
