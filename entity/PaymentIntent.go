package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/kidoxdavid/eazyfoods-sub000/pkg/money"
)

type PaymentIntent struct {
	Base
	Gateway     string       `gorm:"size:32;not null" json:"gateway"`
	AmountCents money.Cents  `gorm:"not null" json:"amount"`
	Currency    string       `gorm:"size:3;not null" json:"currency"`
	Status      IntentStatus `gorm:"size:16;not null" json:"status"`
	// GatewayRef is the idempotency key for captures.
	GatewayRef   string     `gorm:"size:128;uniqueIndex;not null" json:"gateway_ref"`
	ClientSecret string     `gorm:"size:200" json:"-"`
	CustomerID   uuid.UUID  `gorm:"type:uuid;index;not null" json:"customer_id"`
	CheckoutID   *uuid.UUID `gorm:"type:uuid;index" json:"checkout_id,omitempty"`

	FailureReason  string      `json:"failure_reason,omitempty"`
	RefundedAmount money.Cents `json:"refunded_amount"`
	CapturedAt     *time.Time  `json:"captured_at,omitempty"`
	FailedAt       *time.Time  `json:"failed_at,omitempty"`
}
