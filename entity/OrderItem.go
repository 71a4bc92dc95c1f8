package entity

import (
	"github.com/google/uuid"

	"github.com/kidoxdavid/eazyfoods-sub000/pkg/money"
)

// OrderItem is a catalog snapshot frozen at checkout; exactly one of
// ProductID / CuisineID is set.
type OrderItem struct {
	Base
	OrderID   uuid.UUID  `gorm:"type:uuid;index;not null" json:"order_id"`
	ProductID *uuid.UUID `gorm:"type:uuid" json:"product_id,omitempty"`
	CuisineID *uuid.UUID `gorm:"type:uuid" json:"cuisine_id,omitempty"`

	Name      string      `gorm:"size:200;not null" json:"name"`
	UnitPrice money.Cents `gorm:"not null" json:"unit_price"`
	Quantity  int         `gorm:"not null" json:"quantity"`
	Subtotal  money.Cents `gorm:"not null" json:"subtotal"`

	IsSubstituted     bool `json:"is_substituted"`
	IsOutOfStock      bool `json:"is_out_of_stock"`
	QuantityFulfilled int  `json:"quantity_fulfilled"`
}
