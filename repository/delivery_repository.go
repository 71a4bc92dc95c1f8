package repository

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kidoxdavid/eazyfoods-sub000/entity"
)

type DeliveryRepository struct{ DB *gorm.DB }

func NewDeliveryRepository(db *gorm.DB) *DeliveryRepository { return &DeliveryRepository{DB: db} }

// Create relies on the unique index on order_id: a second driver gets
// gorm.ErrDuplicatedKey.
func (r *DeliveryRepository) Create(tx *gorm.DB, d *entity.Delivery) error {
	return tx.Create(d).Error
}

func (r *DeliveryRepository) Get(tx *gorm.DB, id uuid.UUID) (*entity.Delivery, error) {
	var d entity.Delivery
	if err := tx.Where("id = ?", id).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DeliveryRepository) GetByOrder(tx *gorm.DB, orderID uuid.UUID) (*entity.Delivery, error) {
	var d entity.Delivery
	if err := tx.Where("order_id = ?", orderID).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DeliveryRepository) UpdateStatusGuard(tx *gorm.DB, id uuid.UUID, from, to entity.DeliveryStatus, updates map[string]any) (int64, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to
	res := tx.Model(&entity.Delivery{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// location writes are only accepted while the delivery is still running
func (r *DeliveryRepository) UpdateLocationGuard(tx *gorm.DB, id, driverID uuid.UUID, updates map[string]any) (int64, error) {
	res := tx.Model(&entity.Delivery{}).
		Where("id = ? AND driver_id = ? AND status IN ?", id, driverID, entity.ActiveDeliveryStatuses()).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// Delete removes a pre-pickup delivery so the order can be offered again.
func (r *DeliveryRepository) DeleteAccepted(tx *gorm.DB, id, driverID uuid.UUID) (int64, error) {
	res := tx.Where("id = ? AND driver_id = ? AND status = ?", id, driverID, entity.DeliveryAccepted).
		Delete(&entity.Delivery{})
	return res.RowsAffected, res.Error
}

func (r *DeliveryRepository) HasActiveForDriver(tx *gorm.DB, driverID uuid.UUID) (bool, error) {
	var cnt int64
	if err := tx.Model(&entity.Delivery{}).
		Where("driver_id = ? AND status IN ?", driverID, entity.ActiveDeliveryStatuses()).
		Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *DeliveryRepository) ListForDriver(tx *gorm.DB, driverID uuid.UUID, status entity.DeliveryStatus, skip, limit int) ([]entity.Delivery, int64, error) {
	q := tx.Model(&entity.Delivery{}).Where("driver_id = ?", driverID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []entity.Delivery
	err := q.Order("created_at DESC").Offset(skip).Limit(limit).Find(&out).Error
	return out, total, err
}

// SetRatingGuard writes the rating once; 0 rows means it was already rated
// or the delivery is not delivered.
func (r *DeliveryRepository) SetRatingGuard(tx *gorm.DB, id uuid.UUID, updates map[string]any) (int64, error) {
	res := tx.Model(&entity.Delivery{}).
		Where("id = ? AND status = ? AND customer_rating IS NULL", id, entity.DeliveryDelivered).
		Updates(updates)
	return res.RowsAffected, res.Error
}

type RatingStats struct {
	Average float64
	Count   int64
}

func (r *DeliveryRepository) RatingStatsForDriver(tx *gorm.DB, driverID uuid.UUID) (RatingStats, error) {
	var s RatingStats
	err := tx.Model(&entity.Delivery{}).
		Select("COALESCE(AVG(customer_rating), 0) AS average, COUNT(customer_rating) AS count").
		Where("driver_id = ? AND customer_rating IS NOT NULL", driverID).
		Scan(&s).Error
	return s, err
}
