// Package persistence records detections and health snapshots in
// Postgres. Writes are batched: rows accumulate until the batch size or
// flush interval is hit, and a final flush runs on close.
package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/arbwatch/arbwatch/internal/models"
)

const (
	batchSize     = 10
	flushInterval = 5 * time.Second
)

// BatchWriter commits accumulated rows. Implementations must tolerate
// empty slices.
type BatchWriter interface {
	WriteOpportunities(ctx context.Context, rows []models.Opportunity) error
	WriteTriOpportunities(ctx context.Context, rows []models.TriOpportunity) error
	WriteHealth(ctx context.Context, rows []models.VenueHealth) error
}

// Batcher buffers rows for a BatchWriter. Append methods never block on
// the database; flushing happens on size, on interval, and on Close.
type Batcher struct {
	writer BatchWriter

	mu     sync.Mutex
	opps   []models.Opportunity
	tris   []models.TriOpportunity
	health []models.VenueHealth

	flushTimeout time.Duration
}

// NewBatcher builds a batcher over the given writer.
func NewBatcher(writer BatchWriter) *Batcher {
	return &Batcher{writer: writer, flushTimeout: 10 * time.Second}
}

// AppendOpportunity buffers one cross-exchange detection.
func (b *Batcher) AppendOpportunity(o models.Opportunity) {
	b.mu.Lock()
	b.opps = append(b.opps, o)
	full := len(b.opps) >= batchSize
	b.mu.Unlock()
	if full {
		b.Flush(context.Background())
	}
}

// AppendTriOpportunity buffers one triangular detection.
func (b *Batcher) AppendTriOpportunity(o models.TriOpportunity) {
	b.mu.Lock()
	b.tris = append(b.tris, o)
	full := len(b.tris) >= batchSize
	b.mu.Unlock()
	if full {
		b.Flush(context.Background())
	}
}

// AppendHealth buffers one health snapshot.
func (b *Batcher) AppendHealth(h models.VenueHealth) error {
	b.mu.Lock()
	b.health = append(b.health, h)
	full := len(b.health) >= batchSize
	b.mu.Unlock()
	if full {
		b.Flush(context.Background())
	}
	return nil
}

// Flush commits everything currently buffered. Rows that fail to commit
// are dropped with a logged error rather than retried; detections are
// advisory, not ledger entries.
func (b *Batcher) Flush(ctx context.Context) {
	b.mu.Lock()
	opps, tris, health := b.opps, b.tris, b.health
	b.opps, b.tris, b.health = nil, nil, nil
	b.mu.Unlock()

	if len(opps) == 0 && len(tris) == 0 && len(health) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, b.flushTimeout)
	defer cancel()

	if len(opps) > 0 {
		if err := b.writer.WriteOpportunities(ctx, opps); err != nil {
			log.Error().Err(err).Int("rows", len(opps)).Msg("opportunity batch write failed")
		}
	}
	if len(tris) > 0 {
		if err := b.writer.WriteTriOpportunities(ctx, tris); err != nil {
			log.Error().Err(err).Int("rows", len(tris)).Msg("tri batch write failed")
		}
	}
	if len(health) > 0 {
		if err := b.writer.WriteHealth(ctx, health); err != nil {
			log.Error().Err(err).Int("rows", len(health)).Msg("health batch write failed")
		}
	}
}

// Pending reports the current buffered row counts.
func (b *Batcher) Pending() (opps, tris, health int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.opps), len(b.tris), len(b.health)
}

// Run flushes on the interval until ctx is done, then performs the final
// flush.
func (b *Batcher) Run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.Flush(context.Background())
			return
		case <-ticker.C:
			b.Flush(ctx)
		}
	}
}
