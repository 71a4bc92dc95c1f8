package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/kidoxdavid/eazyfoods-sub000/pkg/money"
)

type CouponUsage struct {
	Base
	CouponID   uuid.UUID `gorm:"type:uuid;index;not null;uniqueIndex:idx_coupon_usage_seq" json:"coupon_id"`
	CustomerID uuid.UUID `gorm:"type:uuid;index;not null;uniqueIndex:idx_coupon_usage_seq" json:"customer_id"`
	// Seq numbers a customer's uses of a per-customer-limited coupon; two
	// checkouts claiming the same slot collide on the unique index.
	Seq        *int64      `gorm:"uniqueIndex:idx_coupon_usage_seq" json:"-"`
	CheckoutID uuid.UUID   `gorm:"type:uuid;uniqueIndex;not null" json:"checkout_id"`
	Discount   money.Cents `gorm:"not null" json:"discount"`
	UsedAt     time.Time   `gorm:"not null" json:"used_at"`
}
