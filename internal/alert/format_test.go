package alert

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/arbwatch/arbwatch/internal/models"
)

func TestFormatCross(t *testing.T) {
	msg := FormatCross(models.Opportunity{
		Symbol:         "BTC/USDT",
		BuyVenue:       "binance",
		SellVenue:      "kraken",
		BuyPriceAfter:  50025.0,
		SellPriceAfter: 50400.0,
		BuyFees:        models.FeePair{Taker: 0.0005},
		SellFees:       models.FeePair{Taker: 0.0026},
		SpreadBPS:      74.6,
		Notional:       100,
		Mode:           models.ModeStream,
		DetectedAt:     time.Now(),
	})

	assert.Contains(t, msg, "BTC/USDT")
	assert.Contains(t, msg, "buy binance")
	assert.Contains(t, msg, "sell kraken")
	assert.Contains(t, msg, "74.6 bps")
	assert.Contains(t, msg, "[stream]")
	assertASCIIWithinBudget(t, msg)
}

func TestFormatTri(t *testing.T) {
	msg := FormatTri(models.TriOpportunity{
		Venue:       "binance",
		BaseAsset:   "USDT",
		Cycle:       [3]string{"USDT", "BTC", "ETH"},
		StartAmount: 100,
		EndAmount:   100.70,
		GainBPS:     69.7,
		Legs: [3]models.Leg{
			{Symbol: "BTC/USDT", Price: 50000, Side: models.SideBuy},
			{Symbol: "ETH/BTC", Price: 0.05, Side: models.SideBuy},
			{Symbol: "ETH/USDT", Price: 2525, Side: models.SideSell},
		},
	})

	assert.Contains(t, msg, "USDT>BTC>ETH")
	assert.Contains(t, msg, "on binance")
	assert.Contains(t, msg, "69.7 bps")
	assert.Contains(t, msg, "sell ETH/USDT")
	assertASCIIWithinBudget(t, msg)
}

func TestFormatShutdown(t *testing.T) {
	msg := FormatShutdown(12, 340, 1)
	assert.Contains(t, msg, "12 alerts sent")
	assert.Contains(t, msg, "340 suppressed")
	assertASCIIWithinBudget(t, msg)
}

func TestClampNonASCIIAndLength(t *testing.T) {
	msg := clamp("price → up " + strings.Repeat("x", 600))
	assertASCIIWithinBudget(t, msg)
	assert.Contains(t, msg, "price ? up")
	assert.Len(t, msg, maxMessageBytes)
}

func assertASCIIWithinBudget(t *testing.T, msg string) {
	t.Helper()
	assert.LessOrEqual(t, len(msg), maxMessageBytes)
	for _, r := range msg {
		assert.Less(t, int(r), 128, "non-ASCII rune in %q", msg)
	}
}
