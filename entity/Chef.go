package entity

import "github.com/shopspring/decimal"

type Chef struct {
	Base
	Name           string              `gorm:"size:200;not null" json:"name"`
	CommissionRate decimal.NullDecimal `gorm:"type:numeric(5,2)" json:"commission_rate"`
	Lat            *float64            `json:"lat,omitempty"`
	Lng            *float64            `json:"lng,omitempty"`
	IsActive       bool                `json:"is_active"`
}
