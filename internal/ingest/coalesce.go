package ingest

import (
	"context"
	"time"

	"github.com/arbwatch/arbwatch/internal/book"
	"github.com/arbwatch/arbwatch/internal/health"
)

// Coalescer collapses bursts of snapshots on one stream into the single
// newest snapshot per window before publishing to the book store. Active
// symbols can update hundreds of times per second; the scanners only ever
// need the latest consistent view.
type Coalescer struct {
	venue    string
	symbol   string
	queue    *Queue
	store    *book.Store
	window   time.Duration
	reg      *health.Registry
	ingested func() // called once per snapshot published
}

// NewCoalescer builds a coalescer for one stream.
func NewCoalescer(venue, symbol string, queue *Queue, store *book.Store, window time.Duration, reg *health.Registry, ingested func()) *Coalescer {
	return &Coalescer{venue: venue, symbol: symbol, queue: queue, store: store, window: window, reg: reg, ingested: ingested}
}

// Run blocks on the stream queue, waits out the coalescing window, then
// publishes the newest snapshot seen. Exactly one snapshot per non-empty
// window reaches the store.
func (c *Coalescer) Run(ctx context.Context) {
	timer := time.NewTimer(c.window)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.queue.Wait():
		}

		if c.reg != nil {
			c.reg.QueueDepth(c.venue, c.queue.Len())
		}

		timer.Reset(c.window)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		newest, drained := c.queue.DrainNewest()
		if newest == nil {
			continue
		}
		c.store.Put(newest)
		if c.ingested != nil {
			c.ingested()
		}
		if c.reg != nil && drained > 1 {
			c.reg.Coalesced(c.venue, int64(drained-1))
		}
	}
}
