package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/kidoxdavid/eazyfoods-sub000/pkg/money"
)

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

func (v VerificationStatus) Valid() bool {
	return v == VerificationPending || v == VerificationApproved || v == VerificationRejected
}

type Driver struct {
	Base
	AccountID     *uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"account_id,omitempty"`
	Name          string     `gorm:"size:200;not null" json:"name"`
	Phone         string     `gorm:"size:40" json:"phone"`
	VehicleType   string     `gorm:"size:40" json:"vehicle_type"`
	VehiclePlate  string     `gorm:"size:40" json:"vehicle_plate"`
	LicenseNumber string     `gorm:"size:60" json:"license_number"`

	VerificationStatus VerificationStatus `gorm:"size:16;not null" json:"verification_status"`
	VerificationNotes  string             `json:"verification_notes,omitempty"`
	VerifiedAt         *time.Time         `json:"verified_at,omitempty"`
	IsActive           bool               `json:"is_active"`
	IsAvailable        bool               `json:"is_available"`

	// written only by the delivery dispatcher
	TotalDeliveries     int64       `json:"total_deliveries"`
	CompletedDeliveries int64       `json:"completed_deliveries"`
	CancelledDeliveries int64       `json:"cancelled_deliveries"`
	AverageRating       float64     `json:"average_rating"`
	TotalRatings        int64       `json:"total_ratings"`
	TotalEarnings       money.Cents `json:"total_earnings"`

	CurrentLat         *float64   `json:"current_lat,omitempty"`
	CurrentLng         *float64   `json:"current_lng,omitempty"`
	LastLocationUpdate *time.Time `json:"last_location_update,omitempty"`
}

// CanAcceptOffers is the eligibility rule for the offer pool.
func (d *Driver) CanAcceptOffers() bool {
	return d.IsActive && d.IsAvailable && d.VerificationStatus == VerificationApproved
}
