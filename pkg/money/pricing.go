package money

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// PricingError reports inputs the pricing routine refuses to price.
type PricingError struct {
	Kind   string
	Detail string
}

func (e *PricingError) Error() string {
	if e.Detail == "" {
		return "pricing: " + e.Kind
	}
	return fmt.Sprintf("pricing: %s: %s", e.Kind, e.Detail)
}

const (
	PricingNoLines           = "no_lines"
	PricingBadQuantity       = "invalid_quantity"
	PricingNegativePrice     = "negative_price"
	PricingNegativeTaxRate   = "negative_tax_rate"
	PricingNegativeShipping  = "negative_shipping"
	PricingNegativeDiscount  = "negative_discount"
	PricingDiscountTooLarge  = "discount_exceeds_subtotal"
	PricingBadCommissionRate = "invalid_commission_rate"
	PricingOverflow          = "amount_overflow"
)

var maxAmount = decimal.NewFromInt(math.MaxInt64)

// fit converts a whole-cent decimal back to Cents, refusing values that do
// not fit in int64.
func fit(d decimal.Decimal, what string) (Cents, error) {
	if d.Abs().GreaterThan(maxAmount) {
		return 0, &PricingError{Kind: PricingOverflow, Detail: what}
	}
	return Cents(d.IntPart()), nil
}

type Line struct {
	UnitPrice Cents
	Quantity  int
}

// Total is unit_price × quantity.
func (l Line) Total() (Cents, error) {
	d := decimal.NewFromInt(int64(l.UnitPrice)).Mul(decimal.NewFromInt(int64(l.Quantity)))
	return fit(d, fmt.Sprintf("%s x %d", l.UnitPrice, l.Quantity))
}

// CheckedSum is Sum that fails instead of wrapping.
func CheckedSum(amounts ...Cents) (Cents, error) {
	d := decimal.Zero
	for _, a := range amounts {
		d = d.Add(decimal.NewFromInt(int64(a)))
	}
	return fit(d, "sum")
}

// Input is everything one seller's order needs to be priced.
// CommissionRate is a percentage (15 means 15%).
type Input struct {
	Lines          []Line
	TaxRate        decimal.Decimal
	Shipping       Cents
	Discount       Cents
	CommissionRate decimal.Decimal
}

type Breakdown struct {
	LineTotals     []Cents
	Subtotal       Cents
	Discount       Cents
	Tax            Cents
	Shipping       Cents
	Total          Cents
	GrossSales     Cents
	CommissionRate decimal.Decimal
	Commission     Cents
	NetPayout      Cents
}

var maxCommission = decimal.NewFromInt(100)

// Price computes every derived money field of an order.
//
//	total      = subtotal - discount + tax + shipping
//	tax        = round((subtotal - discount) * tax_rate)
//	gross      = subtotal
//	commission = round(gross * rate / 100)
//	net payout = gross - commission
func Price(in Input) (Breakdown, error) {
	if len(in.Lines) == 0 {
		return Breakdown{}, &PricingError{Kind: PricingNoLines}
	}
	if in.TaxRate.IsNegative() {
		return Breakdown{}, &PricingError{Kind: PricingNegativeTaxRate, Detail: in.TaxRate.String()}
	}
	if in.Shipping < 0 {
		return Breakdown{}, &PricingError{Kind: PricingNegativeShipping, Detail: in.Shipping.String()}
	}
	if in.Discount < 0 {
		return Breakdown{}, &PricingError{Kind: PricingNegativeDiscount, Detail: in.Discount.String()}
	}
	if in.CommissionRate.IsNegative() || in.CommissionRate.GreaterThan(maxCommission) {
		return Breakdown{}, &PricingError{Kind: PricingBadCommissionRate, Detail: in.CommissionRate.String()}
	}

	b := Breakdown{LineTotals: make([]Cents, len(in.Lines))}
	for i, l := range in.Lines {
		if l.Quantity < 1 {
			return Breakdown{}, &PricingError{Kind: PricingBadQuantity, Detail: fmt.Sprintf("line %d: %d", i, l.Quantity)}
		}
		if l.UnitPrice < 0 {
			return Breakdown{}, &PricingError{Kind: PricingNegativePrice, Detail: fmt.Sprintf("line %d: %s", i, l.UnitPrice)}
		}
		lt, err := l.Total()
		if err != nil {
			return Breakdown{}, err
		}
		b.LineTotals[i] = lt
	}
	sub, err := CheckedSum(b.LineTotals...)
	if err != nil {
		return Breakdown{}, err
	}
	b.Subtotal = sub
	if in.Discount > b.Subtotal {
		return Breakdown{}, &PricingError{Kind: PricingDiscountTooLarge, Detail: fmt.Sprintf("%s > %s", in.Discount, b.Subtotal)}
	}

	b.Discount = in.Discount
	taxable := b.Subtotal - b.Discount
	if b.Tax, err = fit(decimal.NewFromInt(int64(taxable)).Mul(in.TaxRate).Round(0), "tax"); err != nil {
		return Breakdown{}, err
	}
	b.Shipping = in.Shipping
	if b.Total, err = CheckedSum(taxable, b.Tax, b.Shipping); err != nil {
		return Breakdown{}, err
	}
	b.GrossSales = b.Subtotal
	b.CommissionRate = in.CommissionRate
	b.Commission = b.GrossSales.Percent(in.CommissionRate)
	b.NetPayout = b.GrossSales - b.Commission
	return b, nil
}

// Distribute splits amount across weights proportionally, largest remainder
// first, so the parts always sum to amount exactly. Zero weights get zero.
func Distribute(amount Cents, weights []Cents) []Cents {
	out := make([]Cents, len(weights))
	var total Cents
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total == 0 || amount == 0 {
		return out
	}

	type rem struct {
		idx int
		r   int64
	}
	rems := make([]rem, 0, len(weights))
	var assigned Cents
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		num := int64(amount) * int64(w)
		out[i] = Cents(num / int64(total))
		assigned += out[i]
		rems = append(rems, rem{idx: i, r: num % int64(total)})
	}
	// stable: ties go to the earlier seller
	for left := amount - assigned; left > 0; left-- {
		best := -1
		for j := range rems {
			if best == -1 || rems[j].r > rems[best].r {
				best = j
			}
		}
		out[rems[best].idx]++
		rems[best].r = -1
	}
	return out
}

// Share returns round(amount * share), the driver's cut of a delivery fee.
func Share(amount Cents, share decimal.Decimal) Cents {
	return amount.MulRate(share)
}
