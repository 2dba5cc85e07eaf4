package venue

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CatalogEntry describes one venue: REST endpoints for markets and depth,
// an optional websocket endpoint, and its rate-limit contract. Entries
// with a websocket URL advertise streaming capability.
type CatalogEntry struct {
	Name        string `yaml:"name"`
	RESTBaseURL string `yaml:"rest_base_url"`
	MarketsPath string `yaml:"markets_path"`
	DepthPath   string `yaml:"depth_path"` // expects %s symbol and %d limit verbs
	WSBaseURL   string `yaml:"ws_base_url"`
	RateLimitMS int    `yaml:"rate_limit_ms"`
	Maker       float64 `yaml:"maker"`
	Taker       float64 `yaml:"taker"`
}

// Catalog is the set of venues the process knows how to reach.
type Catalog struct {
	Venues []CatalogEntry `yaml:"venues"`
}

// DefaultCatalog covers the venues the generic REST connector can serve
// out of the box. Binance additionally gets the native stream connector.
func DefaultCatalog() Catalog {
	return Catalog{Venues: []CatalogEntry{
		{
			Name:        "binance",
			RESTBaseURL: "https://api.binance.com",
			MarketsPath: "/api/v3/exchangeInfo",
			DepthPath:   "/api/v3/depth?symbol=%s&limit=%d",
			WSBaseURL:   "wss://stream.binance.com:9443/ws",
			RateLimitMS: 50,
		},
		{
			Name:        "okx",
			RESTBaseURL: "https://www.okx.com",
			MarketsPath: "/api/v5/public/instruments?instType=SPOT",
			DepthPath:   "/api/v5/market/books?instId=%s&sz=%d",
			RateLimitMS: 100,
		},
		{
			Name:        "kraken",
			RESTBaseURL: "https://api.kraken.com",
			MarketsPath: "/0/public/AssetPairs",
			DepthPath:   "/0/public/Depth?pair=%s&count=%d",
			RateLimitMS: 500,
		},
		{
			Name:        "gateio",
			RESTBaseURL: "https://api.gateio.ws",
			MarketsPath: "/api/v4/spot/currency_pairs",
			DepthPath:   "/api/v4/spot/order_book?currency_pair=%s&limit=%d",
			RateLimitMS: 200,
		},
	}}
}

// LoadCatalog reads a catalog file, falling back to the default catalog
// when path is empty or missing.
func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultCatalog(), nil
		}
		return Catalog{}, fmt.Errorf("read venue catalog %s: %w", path, err)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse venue catalog %s: %w", path, err)
	}
	for i := range c.Venues {
		if c.Venues[i].RateLimitMS <= 0 {
			c.Venues[i].RateLimitMS = 200
		}
	}
	return c, nil
}
