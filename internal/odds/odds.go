// Package odds converts between the price conventions used by the two
// venue families: European decimal odds (payout multiplier per unit
// staked) and cents prices (a probability in percent, as quoted by
// binary-contract exchanges). All engine arithmetic happens in decimal
// space; cents prices are converted at the feed boundary. The two
// conventions are kept as distinct types so a cents value can never be
// fed into decimal math without an explicit conversion.
package odds

import (
	"fmt"
	"math"
)

// Decimal is a decimal-odds quote. Valid values are strictly greater
// than 1; the zero value means "not observed yet".
type Decimal float64

// Cents is a binary-contract price in cents, i.e. a probability in
// percent on [0, 100]. The zero value means "not observed yet".
type Cents float64

// Valid reports whether d is a usable decimal quote.
func (d Decimal) Valid() bool {
	return d > 1 && !math.IsInf(float64(d), 0)
}

// ImpliedProbability returns 1/odds. Callers must check Valid first;
// an invalid quote yields a meaningless probability.
func (d Decimal) ImpliedProbability() float64 {
	return 1 / float64(d)
}

// Valid reports whether c is a usable cents price. A price of 0 or 100
// is a settled market, not a quote.
func (c Cents) Valid() bool {
	return c > 0 && c < 100
}

// Decimal converts a cents price to its decimal-odds equivalent
// (100/price). Conversion of an invalid price returns 0.
func (c Cents) Decimal() Decimal {
	if !c.Valid() {
		return 0
	}
	return Decimal(100 / float64(c))
}

// Cents converts decimal odds back to a cents price (100/odds).
// Conversion of an invalid quote returns 0.
func (d Decimal) Cents() Cents {
	if !d.Valid() {
		return 0
	}
	return Cents(100 / float64(d))
}

// American renders the quote in the conventional American format,
// e.g. "+150" or "-120". Display only; nothing downstream parses it.
func (d Decimal) American() string {
	if !d.Valid() {
		return "-"
	}
	if d >= 2 {
		return fmt.Sprintf("+%d", int(math.Round((float64(d)-1)*100)))
	}
	return fmt.Sprintf("%d", int(math.Round(-100/(float64(d)-1))))
}

// String renders a cents price for display, e.g. "45¢".
func (c Cents) String() string {
	return fmt.Sprintf("%d¢", int(math.Round(float64(c))))
}
