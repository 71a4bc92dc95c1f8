package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kidoxdavid/eazyfoods-sub000/entity"
)

type OrderRepository struct {
	DB *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{DB: db}
}

// ---------------- Orders ----------------

// POST /checkout → one row per seller; items and history are written separately
// CreateCheckout fails with gorm.ErrDuplicatedKey when the customer already
// used the idempotency key.
func (r *OrderRepository) CreateCheckout(tx *gorm.DB, c *entity.Checkout) error {
	return tx.Create(c).Error
}

func (r *OrderRepository) CreateOrder(tx *gorm.DB, o *entity.Order) error {
	return tx.Omit("Items", "History").Create(o).Error
}

func (r *OrderRepository) GetOrder(tx *gorm.DB, orderID uuid.UUID) (*entity.Order, error) {
	var o entity.Order
	if err := tx.Where("id = ?", orderID).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// GET /orders/:id → order + items + history
func (r *OrderRepository) GetOrderDetail(tx *gorm.DB, orderID uuid.UUID) (*entity.Order, error) {
	var o entity.Order
	err := tx.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("at ASC, created_at ASC") }).
		Where("id = ?", orderID).First(&o).Error
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// OrderFilter narrows GET /orders. Nil ids mean "any".
type OrderFilter struct {
	CustomerID     *uuid.UUID
	VendorID       *uuid.UUID
	ChefID         *uuid.UUID
	DriverID       *uuid.UUID
	Status         entity.OrderStatus
	DeliveryMethod entity.DeliveryMethod
	From           *time.Time
	To             *time.Time
	Skip           int
	Limit          int
}

func (r *OrderRepository) ListOrders(tx *gorm.DB, f OrderFilter) ([]entity.Order, int64, error) {
	q := tx.Model(&entity.Order{})
	if f.CustomerID != nil {
		q = q.Where("customer_id = ?", *f.CustomerID)
	}
	if f.VendorID != nil {
		q = q.Where("vendor_id = ?", *f.VendorID)
	}
	if f.ChefID != nil {
		q = q.Where("chef_id = ?", *f.ChefID)
	}
	if f.DriverID != nil {
		q = q.Where("driver_id = ?", *f.DriverID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.DeliveryMethod != "" {
		q = q.Where("delivery_method = ?", f.DeliveryMethod)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []entity.Order
	err := q.Order("created_at DESC, id DESC").Offset(f.Skip).Limit(f.Limit).Find(&out).Error
	return out, total, err
}

// same (customer, key) → the orders of the first successful checkout
func (r *OrderRepository) FindByIdempotencyKey(tx *gorm.DB, customerID uuid.UUID, key string) ([]entity.Order, error) {
	var out []entity.Order
	err := tx.Where("customer_id = ? AND idempotency_key = ?", customerID, key).
		Order("created_at ASC, number ASC").Find(&out).Error
	return out, err
}

func (r *OrderRepository) ListByCheckout(tx *gorm.DB, checkoutID uuid.UUID) ([]entity.Order, error) {
	var out []entity.Order
	err := tx.Where("checkout_id = ?", checkoutID).Order("created_at ASC").Find(&out).Error
	return out, err
}

// PUT /orders/:id/... → status CAS on (id, from); updates carries timestamps
func (r *OrderRepository) UpdateStatusGuard(tx *gorm.DB, orderID uuid.UUID, from, to entity.OrderStatus, updates map[string]any) (int64, error) {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to
	res := tx.Model(&entity.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// first-accept-wins on the order side: only a ready, unassigned delivery order
func (r *OrderRepository) AssignDriverGuard(tx *gorm.DB, orderID, driverID uuid.UUID) (int64, error) {
	res := tx.Model(&entity.Order{}).
		Where("id = ? AND status = ? AND delivery_method = ? AND driver_id IS NULL",
			orderID, entity.OrderReady, entity.MethodDelivery).
		Update("driver_id", driverID)
	return res.RowsAffected, res.Error
}

// driver cancel before pickup → back to the offer pool
func (r *OrderRepository) ClearDriverGuard(tx *gorm.DB, orderID, driverID uuid.UUID) (int64, error) {
	res := tx.Model(&entity.Order{}).
		Where("id = ? AND status = ? AND driver_id = ?", orderID, entity.OrderReady, driverID).
		Update("driver_id", nil)
	return res.RowsAffected, res.Error
}

// GET /available-orders
func (r *OrderRepository) ListOfferPool(tx *gorm.DB, skip, limit int) ([]entity.Order, int64, error) {
	q := tx.Model(&entity.Order{}).
		Where("status = ? AND delivery_method = ? AND driver_id IS NULL", entity.OrderReady, entity.MethodDelivery)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []entity.Order
	err := q.Order("ready_at ASC, id ASC").Offset(skip).Limit(limit).Find(&out).Error
	return out, total, err
}

// ---------------- Payment status ----------------

func (r *OrderRepository) SetPaymentStatusByCheckout(tx *gorm.DB, checkoutID uuid.UUID, from []entity.PaymentStatus, to entity.PaymentStatus) (int64, error) {
	res := tx.Model(&entity.Order{}).
		Where("checkout_id = ? AND payment_status IN ?", checkoutID, from).
		Update("payment_status", to)
	return res.RowsAffected, res.Error
}

func (r *OrderRepository) RefundGuard(tx *gorm.DB, orderID uuid.UUID, amount int64, at time.Time) (int64, error) {
	res := tx.Model(&entity.Order{}).
		Where("id = ? AND payment_status = ? AND status IN ?", orderID, entity.PaymentPaid,
			[]entity.OrderStatus{entity.OrderPickedUp, entity.OrderDelivered}).
		Updates(map[string]any{
			"payment_status":  entity.PaymentRefunded,
			"refunded_amount": amount,
			"refunded_at":     at,
		})
	return res.RowsAffected, res.Error
}

// ---------------- Order Items ----------------

func (r *OrderRepository) CreateOrderItems(tx *gorm.DB, items []entity.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return tx.Create(&items).Error
}

func (r *OrderRepository) GetOrderItems(tx *gorm.DB, orderID uuid.UUID) ([]entity.OrderItem, error) {
	var items []entity.OrderItem
	err := tx.Where("order_id = ?", orderID).Order("created_at ASC").Find(&items).Error
	return items, err
}

// ---------------- Status history ----------------

func (r *OrderRepository) AppendHistory(tx *gorm.DB, h *entity.OrderStatusHistory) error {
	return tx.Create(h).Error
}

func (r *OrderRepository) CountHistory(tx *gorm.DB, orderID uuid.UUID) (int64, error) {
	var n int64
	err := tx.Model(&entity.OrderStatusHistory{}).Where("order_id = ?", orderID).Count(&n).Error
	return n, err
}
