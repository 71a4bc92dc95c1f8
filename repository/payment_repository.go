package repository

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kidoxdavid/eazyfoods-sub000/entity"
)

type PaymentRepository struct {
	DB *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{DB: db}
}

func (r *PaymentRepository) Create(tx *gorm.DB, p *entity.PaymentIntent) error {
	return tx.Create(p).Error
}

func (r *PaymentRepository) Get(tx *gorm.DB, id uuid.UUID) (*entity.PaymentIntent, error) {
	var p entity.PaymentIntent
	if err := tx.Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByGatewayRef(tx *gorm.DB, ref string) (*entity.PaymentIntent, error) {
	var p entity.PaymentIntent
	if err := tx.Where("gateway_ref = ?", ref).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByCheckout(tx *gorm.DB, checkoutID uuid.UUID) (*entity.PaymentIntent, error) {
	var p entity.PaymentIntent
	if err := tx.Where("checkout_id = ?", checkoutID).Order("created_at DESC").First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateStatusGuard moves an intent from → to; 0 rows means another
// callback got there first.
func (r *PaymentRepository) UpdateStatusGuard(tx *gorm.DB, id uuid.UUID, from, to entity.IntentStatus, updates map[string]any) (int64, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to
	res := tx.Model(&entity.PaymentIntent{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// BindCheckoutGuard attaches an unbound intent to a checkout.
func (r *PaymentRepository) BindCheckoutGuard(tx *gorm.DB, id, checkoutID uuid.UUID) (int64, error) {
	res := tx.Model(&entity.PaymentIntent{}).
		Where("id = ? AND checkout_id IS NULL", id).
		Update("checkout_id", checkoutID)
	return res.RowsAffected, res.Error
}

// AddRefund accumulates refunded money; the intent turns refunded once
// everything it captured has gone back.
func (r *PaymentRepository) AddRefund(tx *gorm.DB, id uuid.UUID, amount int64) error {
	err := tx.Model(&entity.PaymentIntent{}).Where("id = ?", id).
		Update("refunded_amount", gorm.Expr("refunded_amount + ?", amount)).Error
	if err != nil {
		return err
	}
	return tx.Model(&entity.PaymentIntent{}).
		Where("id = ? AND status = ? AND refunded_amount >= amount_cents", id, entity.IntentCaptured).
		Update("status", entity.IntentRefunded).Error
}
