// Package testdb opens a migrated in-memory database and seeds catalog
// rows for package tests.
package testdb

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kidoxdavid/eazyfoods-sub000/configs"
	"github.com/kidoxdavid/eazyfoods-sub000/entity"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/money"
)

// Config is the platform configuration tests run with.
func Config() *configs.Config {
	return &configs.Config{
		AppEnv:                "test",
		ServiceName:           "ezf-core-test",
		DBDriver:              "sqlite",
		JWTSecret:             "test-secret",
		JWTTTL:                time.Hour,
		Currency:              "CAD",
		TaxRate:               decimal.RequireFromString("0.08"),
		ShippingFee:           money.MustParse("5.00"),
		DefaultCommissionRate: decimal.NewFromInt(10),
		DriverEarningsShare:   decimal.RequireFromString("0.80"),
		PickupETA:             15 * time.Minute,
		DeliveryETA:           45 * time.Minute,
		MapsTimeout:           time.Second,
		MapsAvgSpeedKmh:       30,
		PaymentGateway:        "sandbox",
		PaymentTestMode:       true,
		PaymentWebhookSecret:  "whsec-test",
		PaymentTimeout:        time.Second,
		EventsExchange:        "ezf.events",
	}
}

// Open returns a fresh migrated database private to t.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	cfg := Config()
	cfg.DBSource = "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := configs.ConnectDB(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, configs.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func ptr[T any](v T) *T { return &v }

type Fixtures struct {
	T  testing.TB
	DB *gorm.DB
}

func NewFixtures(t testing.TB, db *gorm.DB) *Fixtures {
	return &Fixtures{T: t, DB: db}
}

func (f *Fixtures) create(v any) {
	f.T.Helper()
	require.NoError(f.T, f.DB.Create(v).Error)
}

// Vendor creates an active store; an empty rate uses the platform default.
func (f *Fixtures) Vendor(name, commission string) *entity.Vendor {
	v := &entity.Vendor{Name: name, Lat: ptr(43.6532), Lng: ptr(-79.3832), IsActive: true}
	if commission != "" {
		v.CommissionRate = decimal.NewNullDecimal(decimal.RequireFromString(commission))
	}
	f.create(v)
	return v
}

func (f *Fixtures) Chef(name string) *entity.Chef {
	c := &entity.Chef{Name: name, Lat: ptr(43.6629), Lng: ptr(-79.3957), IsActive: true}
	f.create(c)
	return c
}

// Product creates an active product and its inventory row.
func (f *Fixtures) Product(v *entity.Vendor, name, price string, stock int64) *entity.Product {
	p := &entity.Product{VendorID: v.ID, Name: name, Price: money.MustParse(price), IsActive: true}
	f.create(p)
	f.create(&entity.InventoryItem{ProductID: p.ID, VendorID: v.ID, StockQuantity: stock, LowStockThreshold: 1})
	return p
}

func (f *Fixtures) Cuisine(c *entity.Chef, name, price string) *entity.Cuisine {
	cu := &entity.Cuisine{ChefID: c.ID, Name: name, Price: money.MustParse(price), IsAvailable: true}
	f.create(cu)
	return cu
}

func (f *Fixtures) Address(customerID uuid.UUID) *entity.Address {
	a := &entity.Address{CustomerID: customerID, Line1: "1 Front St", City: "Toronto", PostalCode: "M5J 2X5",
		Lat: ptr(43.6450), Lng: ptr(-79.3800)}
	f.create(a)
	return a
}

// Driver creates an approved, active, available driver.
func (f *Fixtures) Driver(name string) *entity.Driver {
	d := &entity.Driver{Name: name, VehicleType: "bike", LicenseNumber: "L-" + name,
		VerificationStatus: entity.VerificationApproved, IsActive: true, IsAvailable: true}
	f.create(d)
	return d
}

// PercentCoupon is an approved, unrestricted percentage coupon.
func (f *Fixtures) PercentCoupon(code, pct string) *entity.Coupon {
	c := &entity.Coupon{Code: code, Kind: entity.CouponPercentage, PercentOff: decimal.RequireFromString(pct),
		IsActive: true, IsApproved: true}
	f.create(c)
	return c
}

func (f *Fixtures) Coupon(c *entity.Coupon) *entity.Coupon {
	f.create(c)
	return c
}

func (f *Fixtures) Stock(productID uuid.UUID) int64 {
	f.T.Helper()
	var it entity.InventoryItem
	require.NoError(f.T, f.DB.Where("product_id = ?", productID).First(&it).Error)
	return it.StockQuantity
}
