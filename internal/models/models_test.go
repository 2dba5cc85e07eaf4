package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSortsAndFilters(t *testing.T) {
	b := &OrderBook{
		Venue:  "binance",
		Symbol: "BTC/USDT",
		Bids: []DepthLevel{
			{Price: 99, Amount: 1},
			{Price: 100, Amount: 2},
			{Price: 0, Amount: 5},
			{Price: 98, Amount: -1},
		},
		Asks: []DepthLevel{
			{Price: 102, Amount: 1},
			{Price: 101, Amount: 1},
		},
	}

	out, err := b.Normalize()
	require.NoError(t, err)
	require.Len(t, out.Bids, 2)
	assert.Equal(t, 100.0, out.Bids[0].Price)
	assert.Equal(t, 99.0, out.Bids[1].Price)
	assert.Equal(t, 101.0, out.Asks[0].Price)
	assert.Equal(t, 100.0, out.BestBid())
	assert.Equal(t, 101.0, out.BestAsk())
	assert.True(t, out.TwoSided())
}

func TestNormalizeRejectsCrossedBook(t *testing.T) {
	b := &OrderBook{
		Venue:  "okx",
		Symbol: "ETH/USDT",
		Bids:   []DepthLevel{{Price: 101, Amount: 1}},
		Asks:   []DepthLevel{{Price: 100, Amount: 1}},
	}

	_, err := b.Normalize()
	require.Error(t, err)
	var crossed *ErrCrossedBook
	require.ErrorAs(t, err, &crossed)
	assert.Equal(t, "okx", crossed.Venue)
	assert.Equal(t, 101.0, crossed.Bid)
}

func TestOpportunityDedupeKey(t *testing.T) {
	o := Opportunity{
		Symbol:    "BTC/USDT",
		BuyVenue:  "binance",
		SellVenue: "kraken",
		Notional:  100.7,
	}
	assert.Equal(t, "CROSS|binance|kraken|BTC/USDT|100", o.DedupeKey())

	// same detection parameters collapse to one key regardless of prices
	o2 := o
	o2.BuyPriceAfter = 99999
	assert.Equal(t, o.DedupeKey(), o2.DedupeKey())
}

func TestTriOpportunityDedupeKey(t *testing.T) {
	o := TriOpportunity{
		Venue:    "binance",
		Cycle:    [3]string{"USDT", "BTC", "ETH"},
		Notional: 250.2,
	}
	assert.Equal(t, "TRI|binance|USDT|BTC|ETH|250", o.DedupeKey())
}

func TestVenueHealthHealthy(t *testing.T) {
	now := time.Now()

	streaming := VenueHealth{StreamConnected: true, LastStreamMsg: now.Add(-10 * time.Second)}
	assert.True(t, streaming.Healthy(now))

	stale := VenueHealth{StreamConnected: true, LastStreamMsg: now.Add(-2 * time.Minute)}
	assert.False(t, stale.Healthy(now))

	polling := VenueHealth{RestOK: true, LastRest: now.Add(-30 * time.Second)}
	assert.True(t, polling.Healthy(now))

	dead := VenueHealth{}
	assert.False(t, dead.Healthy(now))
}

func TestFeesForSymbol(t *testing.T) {
	f := Fees{
		Venue: "bybit",
		Maker: 0.0001,
		Taker: 0.0006,
		SymbolOverride: map[string]FeePair{
			"BTC/USDT": {Taker: 0.0002},
		},
	}
	assert.Equal(t, 0.0002, f.For("BTC/USDT").Taker)
	assert.Equal(t, 0.0006, f.For("ETH/USDT").Taker)
}
