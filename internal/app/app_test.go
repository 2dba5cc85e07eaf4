package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbwatch/arbwatch/internal/config"
	"github.com/arbwatch/arbwatch/internal/fees"
	"github.com/arbwatch/arbwatch/internal/health"
	"github.com/arbwatch/arbwatch/internal/venue"
)

func TestConnectVenuesRunsConcurrently(t *testing.T) {
	// Both markets endpoints hold their response until the other request
	// has arrived, so serial connects would stall on the first venue.
	var arrived atomic.Int64
	barrier := make(chan struct{})
	hold := func(payload string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if arrived.Add(1) == 2 {
				close(barrier)
			}
			select {
			case <-barrier:
			case <-time.After(2 * time.Second):
				http.Error(w, "peer never connected", http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(payload))
		}
	}

	okxSrv := httptest.NewServer(hold(
		`{"data":[{"instId":"BTC-USDT","baseCcy":"BTC","quoteCcy":"USDT","state":"live"}]}`))
	defer okxSrv.Close()
	gateSrv := httptest.NewServer(hold(
		`[{"id":"BTC_USDT","base":"BTC","quote":"USDT","trade_status":"tradable"}]`))
	defer gateSrv.Close()

	a := &App{
		cfg:      &config.Config{MaxConcurrentExchanges: 2},
		feeModel: fees.NewModel(nil),
		registry: health.NewRegistry(),
		catalog: venue.Catalog{Venues: []venue.CatalogEntry{
			{Name: "okx", RESTBaseURL: okxSrv.URL, MarketsPath: "/markets", Taker: 0.0010},
			{Name: "gateio", RESTBaseURL: gateSrv.URL, MarketsPath: "/markets", Taker: 0.0020},
		}},
	}

	require.NoError(t, a.connectVenues(context.Background()))
	require.Len(t, a.conns, 2)
	// sorted by name for stable downstream iteration
	assert.Equal(t, "gateio", a.conns[0].Name())
	assert.Equal(t, "okx", a.conns[1].Name())
}

func TestConnectVenuesNoneConnectedIsFatal(t *testing.T) {
	a := &App{
		cfg:      &config.Config{MaxConcurrentExchanges: 4},
		feeModel: fees.NewModel(nil),
		registry: health.NewRegistry(),
		catalog: venue.Catalog{Venues: []venue.CatalogEntry{
			{Name: "unknownvenue"},
		}},
	}

	require.Error(t, a.connectVenues(context.Background()))
}
