package generic

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/arbwatch/arbwatch/internal/models"
	"github.com/arbwatch/arbwatch/internal/symbols"
)

// CodecFor returns the codec for a known catalog venue.
func CodecFor(name string) (Codec, bool) {
	switch strings.ToLower(name) {
	case "okx":
		return okxCodec{}, true
	case "kraken":
		return krakenCodec{}, true
	case "gateio":
		return gateioCodec{}, true
	default:
		return nil, false
	}
}

func parseStringLevels(raw [][]string) []models.DepthLevel {
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

// ---- OKX ----

type okxCodec struct{}

func (okxCodec) NativeSymbol(std string) string {
	return strings.ReplaceAll(std, "/", "-")
}

func (okxCodec) DecodeMarkets(body []byte) ([]models.MarketMeta, error) {
	var resp struct {
		Data []struct {
			InstID   string `json:"instId"`
			BaseCcy  string `json:"baseCcy"`
			QuoteCcy string `json:"quoteCcy"`
			State    string `json:"state"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := make([]models.MarketMeta, 0, len(resp.Data))
	for _, d := range resp.Data {
		if d.BaseCcy == "" || d.QuoteCcy == "" {
			continue
		}
		out = append(out, models.MarketMeta{
			Symbol: symbols.Join(d.BaseCcy, d.QuoteCcy),
			Base:   strings.ToUpper(d.BaseCcy),
			Quote:  strings.ToUpper(d.QuoteCcy),
			Active: d.State == "live",
			Venue:  "okx",
		})
	}
	return out, nil
}

func (okxCodec) DecodeDepth(body []byte, symbol string, ts time.Time) (*models.OrderBook, error) {
	var resp struct {
		Data []struct {
			Bids [][]string `json:"bids"`
			Asks [][]string `json:"asks"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("okx depth for %s: empty data", symbol)
	}
	// OKX levels carry extra columns after price and size; the first two
	// are all that matter here.
	b := &models.OrderBook{
		Venue:     "okx",
		Symbol:    symbol,
		Bids:      parseStringLevels(resp.Data[0].Bids),
		Asks:      parseStringLevels(resp.Data[0].Asks),
		Timestamp: ts,
	}
	return b.Normalize()
}

// ---- Kraken ----

type krakenCodec struct{}

func (krakenCodec) NativeSymbol(std string) string {
	return symbols.VenueSymbol(std, "kraken")
}

func (krakenCodec) DecodeMarkets(body []byte) ([]models.MarketMeta, error) {
	var resp struct {
		Result map[string]struct {
			WSName string `json:"wsname"`
			Base   string `json:"base"`
			Quote  string `json:"quote"`
			Status string `json:"status"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := make([]models.MarketMeta, 0, len(resp.Result))
	for name, p := range resp.Result {
		std := symbols.Normalize(name, "kraken")
		if p.WSName != "" {
			std = symbols.Normalize(strings.ReplaceAll(p.WSName, "XBT", "BTC"), "kraken")
		}
		base, quote, err := symbols.Parse(std)
		if err != nil {
			continue
		}
		out = append(out, models.MarketMeta{
			Symbol: symbols.Join(base, quote),
			Base:   base,
			Quote:  quote,
			Active: p.Status == "" || p.Status == "online",
			Venue:  "kraken",
		})
	}
	return out, nil
}

func (krakenCodec) DecodeDepth(body []byte, symbol string, ts time.Time) (*models.OrderBook, error) {
	// Kraken wraps the book under result[<native pair>] and renders each
	// level as [price, volume, timestamp].
	var resp struct {
		Error  []string `json:"error"`
		Result map[string]struct {
			Bids [][]json.Number `json:"bids"`
			Asks [][]json.Number `json:"asks"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Error) > 0 {
		return nil, fmt.Errorf("kraken depth for %s: %s", symbol, strings.Join(resp.Error, "; "))
	}
	for _, book := range resp.Result {
		b := &models.OrderBook{
			Venue:     "kraken",
			Symbol:    symbol,
			Bids:      parseNumberLevels(book.Bids),
			Asks:      parseNumberLevels(book.Asks),
			Timestamp: ts,
		}
		return b.Normalize()
	}
	return nil, fmt.Errorf("kraken depth for %s: empty result", symbol)
}

func parseNumberLevels(raw [][]json.Number) []models.DepthLevel {
	out := make([]models.DepthLevel, 0, len(raw))
	for _, row := range raw {
		if len(row) < 2 {
			continue
		}
		price, err1 := row[0].Float64()
		amount, err2 := row[1].Float64()
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, models.DepthLevel{Price: price, Amount: amount})
	}
	return out
}

// ---- Gate.io ----

type gateioCodec struct{}

func (gateioCodec) NativeSymbol(std string) string {
	return strings.ReplaceAll(std, "/", "_")
}

func (gateioCodec) DecodeMarkets(body []byte) ([]models.MarketMeta, error) {
	var pairs []struct {
		ID          string `json:"id"`
		Base        string `json:"base"`
		Quote       string `json:"quote"`
		TradeStatus string `json:"trade_status"`
	}
	if err := json.Unmarshal(body, &pairs); err != nil {
		return nil, err
	}
	out := make([]models.MarketMeta, 0, len(pairs))
	for _, p := range pairs {
		if p.Base == "" || p.Quote == "" {
			continue
		}
		out = append(out, models.MarketMeta{
			Symbol: symbols.Join(p.Base, p.Quote),
			Base:   strings.ToUpper(p.Base),
			Quote:  strings.ToUpper(p.Quote),
			Active: p.TradeStatus == "tradable",
			Venue:  "gateio",
		})
	}
	return out, nil
}

func (gateioCodec) DecodeDepth(body []byte, symbol string, ts time.Time) (*models.OrderBook, error) {
	var resp struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	b := &models.OrderBook{
		Venue:     "gateio",
		Symbol:    symbol,
		Bids:      parseStringLevels(resp.Bids),
		Asks:      parseStringLevels(resp.Asks),
		Timestamp: ts,
	}
	return b.Normalize()
}
