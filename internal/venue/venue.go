// Package venue defines the connector contract every exchange integration
// satisfies, and the catalog that describes which venues this process
// talks to.
package venue

import (
	"context"

	"github.com/arbwatch/arbwatch/internal/models"
)

// Connector is the single polymorphic surface per venue. Implementations
// convert venue-native payloads to the canonical OrderBook at the earliest
// point; downstream code never sees raw JSON.
type Connector interface {
	// Name is the lowercase venue identifier.
	Name() string

	// Connect performs startup work (market metadata load, connectivity
	// probe). A venue that fails to connect is excluded from the run.
	Connect(ctx context.Context) error

	// Disconnect releases transports. Safe to call more than once.
	Disconnect()

	// SupportsStreaming reports whether StreamBooks is usable.
	SupportsStreaming() bool

	// StreamBooks subscribes to the top-depth channel for one symbol and
	// delivers normalized snapshots until ctx is done or the transport
	// fails. The channel is closed on return.
	StreamBooks(ctx context.Context, symbol string, depthLevels int) (<-chan *models.OrderBook, error)

	// PollBook fetches one normalized snapshot over request/response.
	PollBook(ctx context.Context, symbol string, depthLevels int) (*models.OrderBook, error)

	// Markets returns the venue's tradable markets keyed by canonical
	// symbol. Valid after Connect.
	Markets() map[string]models.MarketMeta

	// Fees returns the venue's published schedule when Connect could
	// fetch one; ok is false otherwise.
	Fees() (maker, taker float64, ok bool)

	// RateLimitMS is the venue's declared minimum spacing between REST
	// requests, in milliseconds.
	RateLimitMS() int
}
