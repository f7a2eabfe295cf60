// README: Common money value object used across modules.
package types

import "math"

type Money struct {
	Amount   int64
	Currency string
}

// Scale multiplies the amount by factor, rounding half away from zero.
// Used for price escalation and commission splits.
func (m Money) Scale(factor float64) Money {
	return Money{
		Amount:   int64(math.Round(float64(m.Amount) * factor)),
		Currency: m.Currency,
	}
}

// Sub returns m minus other. Currencies are assumed to match; the engine
// never mixes currencies within one shipment.
func (m Money) Sub(other Money) Money {
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}
}
