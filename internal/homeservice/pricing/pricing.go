package pricing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Breakdown is the money split of one booking.
type Breakdown struct {
	Base            decimal.Decimal
	Total           decimal.Decimal
	Commission      decimal.Decimal
	TechnicianShare decimal.Decimal
}

// Split computes the platform commission on base for pct percent. The
// commission is rounded to paise and the technician gets the remainder, so
// Commission + TechnicianShare always equals Base.
func Split(base, pct decimal.Decimal) Breakdown {
	if base.IsNegative() {
		base = decimal.Zero
	}
	if pct.IsNegative() {
		pct = decimal.Zero
	}
	if pct.GreaterThan(hundred) {
		pct = hundred
	}
	commission := base.Mul(pct).Div(hundred).Round(2)
	return Breakdown{
		Base:            base,
		Total:           base,
		Commission:      commission,
		TechnicianShare: base.Sub(commission),
	}
}

// MinorUnits converts a rupee amount to paise as sent to the gateway.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}
