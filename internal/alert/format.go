package alert

import (
	"fmt"
	"strings"

	"github.com/arbwatch/arbwatch/internal/models"
)

// maxMessageBytes bounds every outbound alert body. Messages are plain
// ASCII so byte length equals rune length.
const maxMessageBytes = 512

// FormatCross renders a cross-exchange opportunity as a notification body.
func FormatCross(o models.Opportunity) string {
	msg := fmt.Sprintf(
		"ARB %s\nbuy %s @ %.8g (fee %.4f)\nsell %s @ %.8g (fee %.4f)\nspread %.1f bps on %.0f notional [%s]",
		o.Symbol,
		o.BuyVenue, o.BuyPriceAfter, o.BuyFees.Taker,
		o.SellVenue, o.SellPriceAfter, o.SellFees.Taker,
		o.SpreadBPS, o.Notional, o.Mode,
	)
	return clamp(msg)
}

// FormatTri renders a triangular opportunity as a notification body.
func FormatTri(o models.TriOpportunity) string {
	var legs []string
	for _, leg := range o.Legs {
		legs = append(legs, fmt.Sprintf("%s %s @ %.8g", leg.Side, leg.Symbol, leg.Price))
	}
	msg := fmt.Sprintf(
		"TRI %s on %s\n%s\ngain %.1f bps: %.2f -> %.2f %s",
		strings.Join(o.Cycle[:], ">"), o.Venue,
		strings.Join(legs, "\n"),
		o.GainBPS, o.StartAmount, o.EndAmount, o.BaseAsset,
	)
	return clamp(msg)
}

// FormatShutdown renders the end-of-run status line.
func FormatShutdown(sent, suppressed, dropped int64) string {
	return clamp(fmt.Sprintf("arbwatch stopping: %d alerts sent, %d suppressed, %d dropped", sent, suppressed, dropped))
}

// clamp forces ASCII and truncates to the byte budget.
func clamp(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < 128 {
			b.WriteRune(r)
		} else {
			b.WriteByte('?')
		}
	}
	out := b.String()
	if len(out) > maxMessageBytes {
		out = out[:maxMessageBytes]
	}
	return out
}
