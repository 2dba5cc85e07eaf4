// Package binance implements the native Binance connector: REST depth
// snapshots plus the partial-depth websocket stream.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/arbwatch/arbwatch/internal/models"
	"github.com/arbwatch/arbwatch/internal/symbols"
)

const (
	defaultRESTBase = "https://api.binance.com"
	defaultWSBase   = "wss://stream.binance.com:9443/ws"

	handshakeTimeout = 30 * time.Second
	readTimeout      = 30 * time.Second
)

// Connector talks to Binance spot. It advertises streaming and keeps the
// market metadata loaded by Connect.
type Connector struct {
	restBase   string
	wsBase     string
	httpClient *http.Client
	markets    map[string]models.MarketMeta
	rateLimit  int
}

// New builds a connector. Empty URLs select the public endpoints.
func New(restBase, wsBase string, rateLimitMS int) *Connector {
	if restBase == "" {
		restBase = defaultRESTBase
	}
	if wsBase == "" {
		wsBase = defaultWSBase
	}
	if rateLimitMS <= 0 {
		rateLimitMS = 50
	}
	return &Connector{
		restBase:   restBase,
		wsBase:     wsBase,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		rateLimit:  rateLimitMS,
	}
}

func (c *Connector) Name() string            { return "binance" }
func (c *Connector) SupportsStreaming() bool { return true }
func (c *Connector) RateLimitMS() int        { return c.rateLimit }
func (c *Connector) Disconnect()             {}

// Fees: Binance does not publish a schedule on the public REST surface,
// so the fee model falls back to its built-in table.
func (c *Connector) Fees() (maker, taker float64, ok bool) { return 0, 0, false }

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol     string `json:"symbol"`
		Status     string `json:"status"`
		BaseAsset  string `json:"baseAsset"`
		QuoteAsset string `json:"quoteAsset"`
	} `json:"symbols"`
}

// Connect loads spot market metadata.
func (c *Connector) Connect(ctx context.Context) error {
	url := c.restBase + "/api/v3/exchangeInfo"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build exchangeInfo request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch exchangeInfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("binance exchangeInfo: %d %s", resp.StatusCode, string(body))
	}

	var info exchangeInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return fmt.Errorf("decode exchangeInfo: %w", err)
	}

	c.markets = make(map[string]models.MarketMeta, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" || s.BaseAsset == "" || s.QuoteAsset == "" {
			continue
		}
		std := symbols.Join(s.BaseAsset, s.QuoteAsset)
		c.markets[std] = models.MarketMeta{
			Symbol: std,
			Base:   strings.ToUpper(s.BaseAsset),
			Quote:  strings.ToUpper(s.QuoteAsset),
			Active: true,
			Venue:  "binance",
		}
	}
	log.Info().Int("markets", len(c.markets)).Msg("binance markets loaded")
	return nil
}

func (c *Connector) Markets() map[string]models.MarketMeta { return c.markets }

type depthPayload struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// PollBook fetches one REST depth snapshot.
func (c *Connector) PollBook(ctx context.Context, symbol string, depthLevels int) (*models.OrderBook, error) {
	native := strings.ReplaceAll(symbols.VenueSymbol(symbol, "binance"), "/", "")
	url := fmt.Sprintf("%s/api/v3/depth?symbol=%s&limit=%d", c.restBase, native, depthLevels)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build depth request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch depth: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("binance depth %s: %d %s", native, resp.StatusCode, string(body))
	}

	var payload depthPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode depth: %w", err)
	}
	return buildBook(symbol, payload, time.Now())
}

// StreamBooks subscribes to the partial depth stream
// (<symbol>@depth<levels>@100ms) and converts every frame into a full
// snapshot of the requested depth.
func (c *Connector) StreamBooks(ctx context.Context, symbol string, depthLevels int) (<-chan *models.OrderBook, error) {
	if depthLevels != 5 && depthLevels != 10 && depthLevels != 20 {
		depthLevels = 10
	}
	native := strings.ToLower(strings.ReplaceAll(symbols.VenueSymbol(symbol, "binance"), "/", ""))
	url := fmt.Sprintf("%s/%s@depth%d@100ms", c.wsBase, native, depthLevels)

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	out := make(chan *models.OrderBook)
	done := make(chan struct{})

	// Unblock the read loop when the caller cancels. The done channel
	// retires the watcher once the read loop exits on its own, so a
	// long-lived ctx does not accumulate one watcher per reconnect.
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	go func() {
		defer close(out)
		defer close(done)
		defer conn.Close()

		for {
			if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
				return
			}
			_, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					log.Debug().Err(err).Str("symbol", symbol).Msg("binance stream read failed")
				}
				return
			}

			var payload depthPayload
			if err := json.Unmarshal(data, &payload); err != nil {
				log.Debug().Err(err).Str("symbol", symbol).Msg("binance stream frame dropped")
				continue
			}
			b, err := buildBook(symbol, payload, time.Now())
			if err != nil {
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// buildBook converts the wire shape [[price, qty], ...] into a normalized
// snapshot, rejecting malformed or crossed books.
func buildBook(symbol string, payload depthPayload, ts time.Time) (*models.OrderBook, error) {
	b := &models.OrderBook{
		Venue:     "binance",
		Symbol:    symbol,
		Bids:      parseLevels(payload.Bids),
		Asks:      parseLevels(payload.Asks),
		Timestamp: ts,
		Nonce:     payload.LastUpdateID,
	}
	return b.Normalize()
}

func parseLevels(raw [][]string) []models.DepthLevel {
	out := make([]models.DepthLevel, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			continue
		}
		price, err1 := strconv.ParseFloat(pair[0], 64)
		amount, err2 := strconv.ParseFloat(pair[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, models.DepthLevel{Price: price, Amount: amount})
	}
	return out
}
