package entity

import "github.com/google/uuid"

type InventoryItem struct {
	Base
	ProductID         uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"product_id"`
	VendorID          uuid.UUID `gorm:"type:uuid;index;not null" json:"vendor_id"`
	StockQuantity     int64     `gorm:"not null" json:"stock_quantity"`
	LowStockThreshold int64     `json:"low_stock_threshold"`
}
