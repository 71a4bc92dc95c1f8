package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kidoxdavid/eazyfoods-sub000/pkg/money"
)

type DeliveryMethod string

const (
	MethodPickup   DeliveryMethod = "pickup"
	MethodDelivery DeliveryMethod = "delivery"
)

func (m DeliveryMethod) Valid() bool { return m == MethodPickup || m == MethodDelivery }

type SellerKind string

const (
	SellerVendor SellerKind = "vendor"
	SellerChef   SellerKind = "chef"
)

func (k SellerKind) Valid() bool { return k == SellerVendor || k == SellerChef }

type Order struct {
	Base
	Number         string    `gorm:"size:32;uniqueIndex;not null" json:"number"`
	CheckoutID     uuid.UUID `gorm:"type:uuid;index;not null" json:"checkout_id"`
	IdempotencyKey string    `gorm:"size:128;index:idx_orders_idempotency" json:"-"`
	CustomerID     uuid.UUID `gorm:"type:uuid;index;index:idx_orders_idempotency;not null" json:"customer_id"`

	// exactly one of VendorID / ChefID, matching SellerKind
	SellerKind SellerKind `gorm:"size:16;not null" json:"seller_kind"`
	VendorID   *uuid.UUID `gorm:"type:uuid;index" json:"vendor_id,omitempty"`
	ChefID     *uuid.UUID `gorm:"type:uuid;index" json:"chef_id,omitempty"`
	SellerName string     `gorm:"size:200" json:"seller_name"`

	Status            OrderStatus    `gorm:"size:16;index;not null" json:"status"`
	DeliveryMethod    DeliveryMethod `gorm:"size:16;not null" json:"delivery_method"`
	DeliveryAddressID *uuid.UUID     `gorm:"type:uuid" json:"delivery_address_id,omitempty"`
	DriverID          *uuid.UUID     `gorm:"type:uuid;index" json:"driver_id,omitempty"`

	Subtotal         money.Cents     `gorm:"not null" json:"subtotal"`
	Tax              money.Cents     `gorm:"not null" json:"tax"`
	Shipping         money.Cents     `gorm:"not null" json:"shipping"`
	Discount         money.Cents     `gorm:"not null" json:"discount"`
	Total            money.Cents     `gorm:"not null" json:"total"`
	GrossSales       money.Cents     `gorm:"not null" json:"gross_sales"`
	CommissionRate   decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"commission_rate"`
	CommissionAmount money.Cents     `gorm:"not null" json:"commission_amount"`
	NetPayout        money.Cents     `gorm:"not null" json:"net_payout"`
	CouponCode       string          `gorm:"size:50" json:"coupon_code,omitempty"`

	PaymentStatus  PaymentStatus `gorm:"size:16;not null" json:"payment_status"`
	RefundedAmount money.Cents   `json:"refunded_amount"`
	Notes          string        `json:"notes,omitempty"`

	AcceptedAt         *time.Time `json:"accepted_at,omitempty"`
	ReadyAt            *time.Time `json:"ready_at,omitempty"`
	PickedUpAt         *time.Time `json:"picked_up_at,omitempty"`
	DeliveredAt        *time.Time `json:"delivered_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	RefundedAt         *time.Time `json:"refunded_at,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`

	// preload only for detail
	Items   []OrderItem          `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	History []OrderStatusHistory `gorm:"foreignKey:OrderID" json:"history,omitempty"`
}

// SellerID returns whichever seller linkage is set.
func (o *Order) SellerID() uuid.UUID {
	if o.VendorID != nil {
		return *o.VendorID
	}
	if o.ChefID != nil {
		return *o.ChefID
	}
	return uuid.Nil
}
