package generic

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbwatch/arbwatch/internal/venue"
)

func TestConnectorConnectAndPoll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/spot/currency_pairs":
			w.Write([]byte(`[
				{"id":"BTC_USDT","base":"BTC","quote":"USDT","trade_status":"tradable"},
				{"id":"DEAD_USDT","base":"DEAD","quote":"USDT","trade_status":"untradable"}
			]`))
		case "/spot/order_book":
			assert.Equal(t, "BTC_USDT", r.URL.Query().Get("currency_pair"))
			w.Write([]byte(`{"bids":[["50000","0.5"]],"asks":[["50010","0.4"]]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	codec, _ := CodecFor("gateio")
	c := New(venue.CatalogEntry{
		Name:        "gateio",
		RESTBaseURL: srv.URL,
		MarketsPath: "/spot/currency_pairs",
		DepthPath:   "/spot/order_book?currency_pair=%s&limit=%d",
		RateLimitMS: 10,
	}, codec)

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	markets := c.Markets()
	require.Len(t, markets, 1, "inactive markets are dropped")
	assert.Contains(t, markets, "BTC/USDT")

	book, err := c.PollBook(ctx, "BTC/USDT", 10)
	require.NoError(t, err)
	assert.Equal(t, "gateio", book.Venue)
	assert.Equal(t, 50000.0, book.BestBid())

	assert.False(t, c.SupportsStreaming())
	_, err = c.StreamBooks(ctx, "BTC/USDT", 10)
	assert.Error(t, err)
}

func TestConnectorSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	codec, _ := CodecFor("gateio")
	c := New(venue.CatalogEntry{
		Name:        "gateio",
		RESTBaseURL: srv.URL,
		MarketsPath: "/markets",
		DepthPath:   "/depth?pair=%s&limit=%d",
	}, codec)

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
