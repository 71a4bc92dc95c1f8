package entity

import "github.com/shopspring/decimal"

// Vendor is a store. Read-only from the order core's point of view.
type Vendor struct {
	Base
	Name string `gorm:"size:200;not null" json:"name"`
	// null falls back to the platform default rate
	CommissionRate decimal.NullDecimal `gorm:"type:numeric(5,2)" json:"commission_rate"`
	Lat            *float64            `json:"lat,omitempty"`
	Lng            *float64            `json:"lng,omitempty"`
	IsActive       bool                `json:"is_active"`
}
