package entity

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatusHistory is append-only: one row per applied transition.
type OrderStatusHistory struct {
	Base
	OrderID   uuid.UUID   `gorm:"type:uuid;index;not null" json:"order_id"`
	Status    OrderStatus `gorm:"size:16;not null" json:"status"`
	ActorID   *uuid.UUID  `gorm:"type:uuid" json:"actor_id,omitempty"`
	ActorRole string      `gorm:"size:16" json:"actor_role,omitempty"`
	Notes     string      `json:"notes,omitempty"`
	At        time.Time   `gorm:"not null" json:"at"`
}

func (OrderStatusHistory) TableName() string { return "order_status_history" }
