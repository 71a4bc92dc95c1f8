// Package money holds the fixed-point amount type used for every price,
// fee and payout, plus the checkout pricing routine built on top of it.
package money

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Cents is an amount in minor units. JSON renders it as a two-decimal string.
type Cents int64

var hundred = decimal.NewFromInt(100)

// FromDecimal rounds a major-unit decimal to cents, half away from zero.
func FromDecimal(d decimal.Decimal) Cents {
	return Cents(d.Mul(hundred).Round(0).IntPart())
}

// Parse reads a decimal string such as "12.5" or "12.50".
// More than two fractional digits is rejected rather than silently rounded.
func Parse(s string) (Cents, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if !d.Equal(d.Round(2)) {
		return 0, fmt.Errorf("amount %q has more than 2 decimal places", s)
	}
	return FromDecimal(d), nil
}

func MustParse(s string) Cents {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Cents) Decimal() decimal.Decimal { return decimal.New(int64(c), -2) }

func (c Cents) String() string { return c.Decimal().StringFixed(2) }

// MulRate returns round(c * rate), e.g. rate 0.08 for tax.
func (c Cents) MulRate(rate decimal.Decimal) Cents {
	return Cents(decimal.NewFromInt(int64(c)).Mul(rate).Round(0).IntPart())
}

// Percent returns round(c * pct / 100), e.g. pct 15 for a 15% commission.
func (c Cents) Percent(pct decimal.Decimal) Cents {
	return Cents(decimal.NewFromInt(int64(c)).Mul(pct).Div(hundred).Round(0).IntPart())
}

func (c Cents) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts both "12.34" and 12.34.
func (c *Cents) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

func Sum(vs ...Cents) Cents {
	var t Cents
	for _, v := range vs {
		t += v
	}
	return t
}

// Min returns the smaller of two amounts.
func Min(a, b Cents) Cents {
	if a < b {
		return a
	}
	return b
}
