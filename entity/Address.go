package entity

import "github.com/google/uuid"

type Address struct {
	Base
	CustomerID uuid.UUID `gorm:"type:uuid;index;not null" json:"customer_id"`
	Line1      string    `gorm:"size:200" json:"line1"`
	City       string    `gorm:"size:100" json:"city"`
	PostalCode string    `gorm:"size:20" json:"postal_code"`
	Lat        *float64  `json:"lat,omitempty"`
	Lng        *float64  `json:"lng,omitempty"`
}
