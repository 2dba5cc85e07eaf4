// Package generic implements a catalog-driven REST connector for venues
// without a native integration. Each venue supplies a codec that converts
// its JSON shapes into canonical entities at the boundary.
package generic

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/arbwatch/arbwatch/internal/models"
	"github.com/arbwatch/arbwatch/internal/venue"
)

// Codec decodes one venue's REST payloads.
type Codec interface {
	// NativeSymbol converts a canonical symbol into the venue's path form.
	NativeSymbol(std string) string

	// DecodeMarkets parses the markets endpoint body.
	DecodeMarkets(body []byte) ([]models.MarketMeta, error)

	// DecodeDepth parses a depth endpoint body into a canonical snapshot.
	DecodeDepth(body []byte, symbol string, ts time.Time) (*models.OrderBook, error)
}

// Connector is a poll-only venue backed by a catalog entry and a codec.
type Connector struct {
	entry      venue.CatalogEntry
	codec      Codec
	httpClient *http.Client
	markets    map[string]models.MarketMeta
}

// New builds a REST connector for the catalog entry.
func New(entry venue.CatalogEntry, codec Codec) *Connector {
	return &Connector{
		entry:      entry,
		codec:      codec,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Connector) Name() string            { return c.entry.Name }
func (c *Connector) SupportsStreaming() bool { return false }
func (c *Connector) RateLimitMS() int        { return c.entry.RateLimitMS }
func (c *Connector) Disconnect()             {}

func (c *Connector) Fees() (maker, taker float64, ok bool) {
	if c.entry.Maker > 0 || c.entry.Taker > 0 {
		return c.entry.Maker, c.entry.Taker, true
	}
	return 0, 0, false
}

// Connect loads and converts the venue's market metadata.
func (c *Connector) Connect(ctx context.Context) error {
	body, err := c.get(ctx, c.entry.RESTBaseURL+c.entry.MarketsPath)
	if err != nil {
		return fmt.Errorf("load %s markets: %w", c.entry.Name, err)
	}
	metas, err := c.codec.DecodeMarkets(body)
	if err != nil {
		return fmt.Errorf("decode %s markets: %w", c.entry.Name, err)
	}
	c.markets = make(map[string]models.MarketMeta, len(metas))
	for _, m := range metas {
		if m.Active {
			c.markets[m.Symbol] = m
		}
	}
	log.Info().Str("venue", c.entry.Name).Int("markets", len(c.markets)).Msg("markets loaded")
	return nil
}

func (c *Connector) Markets() map[string]models.MarketMeta { return c.markets }

// StreamBooks is unsupported; callers consult SupportsStreaming first.
func (c *Connector) StreamBooks(ctx context.Context, symbol string, depthLevels int) (<-chan *models.OrderBook, error) {
	return nil, fmt.Errorf("venue %s does not stream", c.entry.Name)
}

// PollBook fetches and decodes one depth snapshot.
func (c *Connector) PollBook(ctx context.Context, symbol string, depthLevels int) (*models.OrderBook, error) {
	url := c.entry.RESTBaseURL + fmt.Sprintf(c.entry.DepthPath, c.codec.NativeSymbol(symbol), depthLevels)
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("poll %s %s: %w", c.entry.Name, symbol, err)
	}
	return c.codec.DecodeDepth(body, symbol, time.Now())
}

func (c *Connector) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("%s: %d %s", url, resp.StatusCode, string(snippet))
	}
	return io.ReadAll(resp.Body)
}
