package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := map[string]Cents{
		"0":      0,
		"10":     1000,
		"10.5":   1050,
		"10.05":  1005,
		"-2.40":  -240,
		"0.01":   1,
		"999.99": 99999,
	}
	for in, want := range cases {
		got, err := Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := Parse("1.005")
	assert.Error(t, err)
	_, err = Parse("abc")
	assert.Error(t, err)
}

func TestRoundingIsHalfAwayFromZero(t *testing.T) {
	// 0.125 would be 0.12 under banker's rounding
	assert.Equal(t, Cents(13), FromDecimal(decimal.RequireFromString("0.125")))
	assert.Equal(t, Cents(-13), FromDecimal(decimal.RequireFromString("-0.125")))
	assert.Equal(t, Cents(3), Cents(5).MulRate(decimal.RequireFromString("0.5")))
	assert.Equal(t, Cents(-3), Cents(-5).MulRate(decimal.RequireFromString("0.5")))
	// 2.50 * 15% = 0.375 -> 0.38
	assert.Equal(t, Cents(38), Cents(250).Percent(decimal.NewFromInt(15)))
}

func TestJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Total Cents `json:"total"`
	}{Total: 2160})
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":"21.60"}`, string(b))

	var in struct {
		A Cents `json:"a"`
		B Cents `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"12.30","b":7.5}`), &in))
	assert.Equal(t, Cents(1230), in.A)
	assert.Equal(t, Cents(750), in.B)

	assert.Error(t, json.Unmarshal([]byte(`{"a":"1.234"}`), &in))
}

func TestString(t *testing.T) {
	assert.Equal(t, "0.00", Cents(0).String())
	assert.Equal(t, "0.05", Cents(5).String())
	assert.Equal(t, "-1.50", Cents(-150).String())
	assert.Equal(t, "1234.56", Cents(123456).String())
}
