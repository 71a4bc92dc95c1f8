package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/kidoxdavid/eazyfoods-sub000/pkg/money"
)

// Delivery is created by the winning driver accept; at most one per order.
type Delivery struct {
	Base
	OrderID  uuid.UUID      `gorm:"type:uuid;uniqueIndex;not null" json:"order_id"`
	DriverID uuid.UUID      `gorm:"type:uuid;index;not null" json:"driver_id"`
	Status   DeliveryStatus `gorm:"size:16;index;not null" json:"status"`

	PickupLat   *float64 `json:"pickup_lat,omitempty"`
	PickupLng   *float64 `json:"pickup_lng,omitempty"`
	DeliveryLat *float64 `json:"delivery_lat,omitempty"`
	DeliveryLng *float64 `json:"delivery_lng,omitempty"`
	CurrentLat  *float64 `json:"current_lat,omitempty"`
	CurrentLng  *float64 `json:"current_lng,omitempty"`
	DistanceKm  float64  `json:"distance_km"`

	EstimatedPickupAt   time.Time `json:"estimated_pickup_at"`
	EstimatedDeliveryAt time.Time `json:"estimated_delivery_at"`

	DeliveryFee    money.Cents `gorm:"not null" json:"delivery_fee"`
	DriverEarnings money.Cents `gorm:"not null" json:"driver_earnings"`

	CustomerRating   *int    `json:"customer_rating,omitempty"`
	CustomerFeedback *string `json:"customer_feedback,omitempty"`
	Notes            string  `json:"notes,omitempty"`

	AcceptedAt     time.Time  `json:"accepted_at"`
	PickedUpAt     *time.Time `json:"picked_up_at,omitempty"`
	InTransitAt    *time.Time `json:"in_transit_at,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	RatedAt        *time.Time `json:"rated_at,omitempty"`
	LastLocationAt *time.Time `json:"last_location_at,omitempty"`
}
