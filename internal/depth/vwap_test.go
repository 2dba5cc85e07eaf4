package depth

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbwatch/arbwatch/internal/models"
)

func levels(pairs ...float64) []models.DepthLevel {
	var out []models.DepthLevel
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, models.DepthLevel{Price: pairs[i], Amount: pairs[i+1]})
	}
	return out
}

func TestVWAPSingleLevelFill(t *testing.T) {
	asks := levels(100, 5)

	r := VWAP(asks, 200)
	require.True(t, r.FullyFilled)
	assert.InDelta(t, 100.0, r.Price, 1e-9)
	assert.InDelta(t, 2.0, r.Volume, 1e-9)
	assert.Equal(t, 1, r.LevelsUsed)
}

func TestVWAPWalksLevelsWithPartialLast(t *testing.T) {
	// 100*1 = 100 notional on the first level, then 50 of the second.
	asks := levels(100, 1, 102, 1)

	r := VWAP(asks, 150)
	require.True(t, r.FullyFilled)
	assert.Equal(t, 2, r.LevelsUsed)

	// volume = 1 + 50/102, effective price = 150/volume
	wantVolume := 1 + 50.0/102
	assert.InDelta(t, wantVolume, r.Volume, 1e-9)
	assert.InDelta(t, 150/wantVolume, r.Price, 1e-9)
	assert.Greater(t, r.Price, 100.0)
	assert.Less(t, r.Price, 102.0)
}

func TestVWAPInsufficientDepth(t *testing.T) {
	asks := levels(100, 1)

	r := VWAP(asks, 500)
	assert.False(t, r.FullyFilled)
	assert.InDelta(t, 100.0, r.Price, 1e-9)
	assert.InDelta(t, 1.0, r.Volume, 1e-9)
	assert.Equal(t, 1, r.LevelsUsed)
}

func TestVWAPDegenerateInputs(t *testing.T) {
	assert.Zero(t, VWAP(nil, 100))
	assert.Zero(t, VWAP(levels(100, 1), 0))
	assert.Zero(t, VWAP(levels(100, 1), -5))
}

func TestVWAPMonotoneInNotional(t *testing.T) {
	asks := levels(100, 1, 101, 1, 103, 2, 110, 5)

	prev := 0.0
	for _, notional := range []float64{50, 100, 150, 250, 400} {
		r := VWAP(asks, notional)
		require.True(t, r.FullyFilled, "notional %f", notional)
		assert.GreaterOrEqual(t, r.Price, prev)
		prev = r.Price
	}
}

func TestAfterFees(t *testing.T) {
	filled := models.VWAPResult{Price: 100, Volume: 1, LevelsUsed: 1, FullyFilled: true}

	assert.InDelta(t, 100.15, AfterFees(filled, 0.0015, models.SideBuy), 1e-9)
	assert.InDelta(t, 99.85, AfterFees(filled, 0.0015, models.SideSell), 1e-9)

	unfilled := models.VWAPResult{Price: 100, FullyFilled: false}
	assert.Zero(t, AfterFees(unfilled, 0.0015, models.SideBuy))
}

func TestSpendBase(t *testing.T) {
	bids := levels(100, 1, 99, 2)

	// 2 units price at the best bid: 200 notional, swept across both
	// levels which hold 298.
	out, used, filled := SpendBase(bids, 2)
	require.True(t, filled)
	assert.Equal(t, 2, used)
	assert.InDelta(t, 200, out, 1e-9)

	// 10 units need 1000 notional; only 298 rests on the book.
	out, used, filled = SpendBase(bids, 10)
	assert.False(t, filled)
	assert.Equal(t, 2, used)
	assert.InDelta(t, 298, out, 1e-9)

	_, _, filled = SpendBase(nil, 1)
	assert.False(t, filled)
}

func TestSpendQuote(t *testing.T) {
	asks := levels(100, 1)

	base, used, filled := SpendQuote(asks, 50)
	require.True(t, filled)
	assert.Equal(t, 1, used)
	assert.InDelta(t, 0.5, base, 1e-9)
}

func TestSufficientDepth(t *testing.T) {
	asks := levels(100, 1, 100, 1)

	assert.True(t, SufficientDepth(asks, 150, 0))
	assert.False(t, SufficientDepth(asks, 250, 0))
	assert.False(t, SufficientDepth(asks, 150, 1))
	assert.False(t, SufficientDepth(nil, 1, 0))
}

func TestSlippage(t *testing.T) {
	asks := levels(100, 1, 110, 10)

	assert.InDelta(t, 0, Slippage(asks, 50), 1e-9)
	assert.Greater(t, Slippage(asks, 500), 0.0)
	assert.True(t, math.IsInf(Slippage(asks, 1e9), 1))
	assert.True(t, math.IsInf(Slippage(nil, 100), 1))
}
