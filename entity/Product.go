package entity

import (
	"github.com/google/uuid"

	"github.com/kidoxdavid/eazyfoods-sub000/pkg/money"
)

type Product struct {
	Base
	VendorID uuid.UUID   `gorm:"type:uuid;index;not null" json:"vendor_id"`
	Name     string      `gorm:"size:200;not null" json:"name"`
	Price    money.Cents `gorm:"not null" json:"price"`
	IsActive bool        `json:"is_active"`
}

// Cuisine is a chef's dish; chefs cook to order so it carries no stock row.
type Cuisine struct {
	Base
	ChefID      uuid.UUID   `gorm:"type:uuid;index;not null" json:"chef_id"`
	Name        string      `gorm:"size:200;not null" json:"name"`
	Price       money.Cents `gorm:"not null" json:"price"`
	IsAvailable bool        `json:"is_available"`
}
