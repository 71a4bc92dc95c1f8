package repository

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kidoxdavid/eazyfoods-sub000/entity"
)

type CouponRepository struct{ DB *gorm.DB }

func NewCouponRepository(db *gorm.DB) *CouponRepository { return &CouponRepository{DB: db} }

func (r *CouponRepository) FindByCode(tx *gorm.DB, code string) (*entity.Coupon, error) {
	var c entity.Coupon
	if err := tx.Where("UPPER(code) = UPPER(?)", code).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CouponRepository) CountCustomerUsage(tx *gorm.DB, couponID, customerID uuid.UUID) (int64, error) {
	var n int64
	err := tx.Model(&entity.CouponUsage{}).
		Where("coupon_id = ? AND customer_id = ?", couponID, customerID).
		Count(&n).Error
	return n, err
}

// CustomerHasOrders backs first-time-only coupons; cancelled orders don't count.
func (r *CouponRepository) CustomerHasOrders(tx *gorm.DB, customerID uuid.UUID) (bool, error) {
	var n int64
	err := tx.Model(&entity.Order{}).
		Where("customer_id = ? AND status <> ?", customerID, entity.OrderCancelled).
		Count(&n).Error
	return n > 0, err
}

// IncrementUsageGuard bumps usage_count unless the global limit is reached.
func (r *CouponRepository) IncrementUsageGuard(tx *gorm.DB, couponID uuid.UUID) (int64, error) {
	res := tx.Model(&entity.Coupon{}).
		Where("id = ? AND (usage_limit IS NULL OR usage_count < usage_limit)", couponID).
		Update("usage_count", gorm.Expr("usage_count + 1"))
	return res.RowsAffected, res.Error
}

func (r *CouponRepository) CreateUsage(tx *gorm.DB, u *entity.CouponUsage) error {
	return tx.Create(u).Error
}

func (r *CouponRepository) FindByCouponID(tx *gorm.DB, id uuid.UUID) (*entity.Coupon, error) {
	var c entity.Coupon
	if err := tx.Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}
