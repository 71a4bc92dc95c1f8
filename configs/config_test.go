package configs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("TAX_RATE", "")
	t.Setenv("SHIPPING_FEE", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "CAD", cfg.Currency)
	assert.Equal(t, "0.08", cfg.TaxRate.String())
	assert.Equal(t, "5.00", cfg.ShippingFee.String())
	assert.Equal(t, "10", cfg.DefaultCommissionRate.String())
	assert.Equal(t, "0.8", cfg.DriverEarningsShare.String())
	assert.Equal(t, 15*time.Minute, cfg.PickupETA)
	assert.Equal(t, 45*time.Minute, cfg.DeliveryETA)
	assert.Equal(t, 15*time.Second, cfg.PaymentTimeout)
	assert.Equal(t, 10*time.Second, cfg.MapsTimeout)
}

func TestLoadConfigRejectsMalformed(t *testing.T) {
	t.Setenv("TAX_RATE", "eight")
	t.Setenv("PAYMENT_TIMEOUT", "soon")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.ErrorContains(t, err, "TAX_RATE")
	assert.ErrorContains(t, err, "PAYMENT_TIMEOUT")
}

func TestValidate(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("CURRENCY", "CA")
	t.Setenv("DB_DRIVER", "mysql")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	err = cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "JWT_SECRET")
	assert.ErrorContains(t, err, "CURRENCY")
	assert.ErrorContains(t, err, "DB_DRIVER")
}
