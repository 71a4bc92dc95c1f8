package entity

import (
	"github.com/google/uuid"
)

// Checkout is written first in every checkout transaction. The unique
// (customer_id, idempotency_key) pair makes a retried cart collide here
// instead of placing its orders twice. A NULL key never collides.
type Checkout struct {
	Base
	CustomerID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_checkouts_idempotency" json:"customer_id"`
	IdempotencyKey *string   `gorm:"size:128;uniqueIndex:idx_checkouts_idempotency" json:"-"`
	OrderCount     int       `gorm:"not null" json:"order_count"`
}
