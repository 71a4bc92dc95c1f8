package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kidoxdavid/eazyfoods-sub000/pkg/money"
)

// Coupon is administered elsewhere; the core only evaluates and counts it.
type Coupon struct {
	Base
	Code        string     `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Description string     `json:"description,omitempty"`
	Kind        CouponKind `gorm:"size:16;not null" json:"kind"`

	PercentOff  decimal.Decimal `gorm:"type:numeric(5,2)" json:"percent_off"`
	AmountOff   money.Cents     `json:"amount_off"`
	MaxDiscount money.Cents     `json:"max_discount"` // 0 = uncapped

	// optional seller scope
	VendorID *uuid.UUID `gorm:"type:uuid" json:"vendor_id,omitempty"`
	ChefID   *uuid.UUID `gorm:"type:uuid" json:"chef_id,omitempty"`

	IsActive   bool       `json:"is_active"`
	IsApproved bool       `json:"is_approved"`
	StartsAt   *time.Time `json:"starts_at,omitempty"`
	EndsAt     *time.Time `json:"ends_at,omitempty"`

	UsageLimit       *int64      `json:"usage_limit,omitempty"`
	UsageCount       int64       `json:"usage_count"`
	PerCustomerLimit *int64      `json:"per_customer_limit,omitempty"`
	FirstTimeOnly    bool        `json:"first_time_only"`
	MinimumAmount    money.Cents `json:"minimum_amount"`
	MinimumItems     int         `json:"minimum_items"`
}
