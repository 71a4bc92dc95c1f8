package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kidoxdavid/eazyfoods-sub000/entity"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/money"
)

type DriverRepository struct{ DB *gorm.DB }

func NewDriverRepository(db *gorm.DB) *DriverRepository { return &DriverRepository{DB: db} }

func (r *DriverRepository) Create(tx *gorm.DB, d *entity.Driver) error {
	return tx.Create(d).Error
}

func (r *DriverRepository) GetByID(tx *gorm.DB, id uuid.UUID) (*entity.Driver, error) {
	var d entity.Driver
	if err := tx.Where("id = ?", id).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DriverRepository) List(tx *gorm.DB, status entity.VerificationStatus, skip, limit int) ([]entity.Driver, int64, error) {
	q := tx.Model(&entity.Driver{})
	if status != "" {
		q = q.Where("verification_status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []entity.Driver
	err := q.Order("created_at DESC").Offset(skip).Limit(limit).Find(&out).Error
	return out, total, err
}

func (r *DriverRepository) SetAvailability(tx *gorm.DB, id uuid.UUID, available bool) error {
	return tx.Model(&entity.Driver{}).Where("id = ?", id).Update("is_available", available).Error
}

func (r *DriverRepository) UpdateLocation(tx *gorm.DB, id uuid.UUID, lat, lng float64, at time.Time) error {
	return tx.Model(&entity.Driver{}).Where("id = ?", id).Updates(map[string]any{
		"current_lat":          lat,
		"current_lng":          lng,
		"last_location_update": at,
	}).Error
}

func (r *DriverRepository) SetVerification(tx *gorm.DB, id uuid.UUID, status entity.VerificationStatus, notes string, at time.Time) (int64, error) {
	res := tx.Model(&entity.Driver{}).Where("id = ?", id).Updates(map[string]any{
		"verification_status": status,
		"verification_notes":  notes,
		"verified_at":         at,
	})
	return res.RowsAffected, res.Error
}

// ----- Counters (dispatcher only) -----

func (r *DriverRepository) RecordCompleted(tx *gorm.DB, id uuid.UUID, earnings money.Cents) error {
	return tx.Model(&entity.Driver{}).Where("id = ?", id).Updates(map[string]any{
		"completed_deliveries": gorm.Expr("completed_deliveries + 1"),
		"total_deliveries":     gorm.Expr("total_deliveries + 1"),
		"total_earnings":       gorm.Expr("total_earnings + ?", int64(earnings)),
	}).Error
}

func (r *DriverRepository) RecordCancelled(tx *gorm.DB, id uuid.UUID) error {
	return tx.Model(&entity.Driver{}).Where("id = ?", id).
		Update("cancelled_deliveries", gorm.Expr("cancelled_deliveries + 1")).Error
}

func (r *DriverRepository) SetRating(tx *gorm.DB, id uuid.UUID, avg float64, count int64) error {
	return tx.Model(&entity.Driver{}).Where("id = ?", id).Updates(map[string]any{
		"average_rating": avg,
		"total_ratings":  count,
	}).Error
}
