package alert

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/arbwatch/arbwatch/internal/models"
)

// saturationThreshold is the queue depth past which backlog warnings are
// logged. The queue itself never blocks producers.
const saturationThreshold = 1000

// minSendSpacing is the floor between consecutive notifier sends.
const minSendSpacing = time.Second

// Pipeline accepts detections from the scanners, suppresses repeats
// within the dedup window, and delivers the rest through the notifier at
// a paced rate. Producers never block; delivery order is FIFO.
type Pipeline struct {
	dedup    Deduper
	notifier Notifier

	mu      sync.Mutex
	pending []string
	notify  chan struct{}

	sent       atomic.Int64
	suppressed atomic.Int64
	dropped    atomic.Int64

	onSent       func()
	onSuppressed func()

	warned bool
}

// NewPipeline builds an alert pipeline.
func NewPipeline(dedup Deduper, notifier Notifier) *Pipeline {
	return &Pipeline{
		dedup:    dedup,
		notifier: notifier,
		notify:   make(chan struct{}, 1),
	}
}

// Instrument attaches per-event hooks, called on each successful send
// and each dedup suppression. Either may be nil. Call before Run.
func (p *Pipeline) Instrument(onSent, onSuppressed func()) {
	p.onSent = onSent
	p.onSuppressed = onSuppressed
}

func (p *Pipeline) suppress() {
	p.suppressed.Add(1)
	if p.onSuppressed != nil {
		p.onSuppressed()
	}
}

// Cross submits a cross-exchange detection.
func (p *Pipeline) Cross(ctx context.Context, o models.Opportunity) {
	if p.dedup.Seen(ctx, o.DedupeKey()) {
		p.suppress()
		return
	}
	log.Info().Str("symbol", o.Symbol).
		Str("buy", o.BuyVenue).Str("sell", o.SellVenue).
		Float64("spread_bps", o.SpreadBPS).Float64("notional", o.Notional).
		Str("mode", string(o.Mode)).
		Msg("cross opportunity")
	p.enqueue(FormatCross(o))
}

// Tri submits a triangular detection.
func (p *Pipeline) Tri(ctx context.Context, o models.TriOpportunity) {
	if p.dedup.Seen(ctx, o.DedupeKey()) {
		p.suppress()
		return
	}
	log.Info().Str("venue", o.Venue).
		Strs("cycle", o.Cycle[:]).
		Float64("gain_bps", o.GainBPS).
		Msg("triangular opportunity")
	p.enqueue(FormatTri(o))
}

func (p *Pipeline) enqueue(msg string) {
	p.mu.Lock()
	p.pending = append(p.pending, msg)
	depth := len(p.pending)
	warn := depth > saturationThreshold && !p.warned
	if warn {
		p.warned = true
	}
	if depth <= saturationThreshold {
		p.warned = false
	}
	p.mu.Unlock()

	if warn {
		log.Warn().Int("depth", depth).Msg("alert queue saturated")
	}
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *Pipeline) dequeue() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return "", false
	}
	msg := p.pending[0]
	p.pending = p.pending[1:]
	return msg, true
}

// Run delivers queued alerts until ctx is done, spacing sends at least
// one second apart.
func (p *Pipeline) Run(ctx context.Context) {
	limiter := rate.NewLimiter(rate.Every(minSendSpacing), 1)

	for {
		msg, ok := p.dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-p.notify:
				continue
			}
		}

		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if err := p.notifier.Send(ctx, msg); err != nil {
			p.dropped.Add(1)
			log.Error().Err(err).Msg("alert delivery failed")
			continue
		}
		p.sent.Add(1)
		if p.onSent != nil {
			p.onSent()
		}
	}
}

// QueueDepth is the current backlog size.
func (p *Pipeline) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Stats reports lifetime pipeline counters.
func (p *Pipeline) Stats() (sent, suppressed, dropped int64) {
	return p.sent.Load(), p.suppressed.Load(), p.dropped.Load()
}

// Shutdown sends the end-of-run status line, best effort within ctx.
func (p *Pipeline) Shutdown(ctx context.Context) {
	sent, suppressed, dropped := p.Stats()
	if err := p.notifier.Send(ctx, FormatShutdown(sent, suppressed, dropped)); err != nil {
		log.Warn().Err(err).Msg("shutdown alert failed")
	}
}
