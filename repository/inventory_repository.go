package repository

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kidoxdavid/eazyfoods-sub000/entity"
)

type InventoryRepository struct{ DB *gorm.DB }

func NewInventoryRepository(db *gorm.DB) *InventoryRepository { return &InventoryRepository{DB: db} }

func (r *InventoryRepository) Get(tx *gorm.DB, productID uuid.UUID) (*entity.InventoryItem, error) {
	var it entity.InventoryItem
	if err := tx.Where("product_id = ?", productID).First(&it).Error; err != nil {
		return nil, err
	}
	return &it, nil
}

// DecrementGuard takes qty only when that much is on hand; 0 rows means not enough.
func (r *InventoryRepository) DecrementGuard(tx *gorm.DB, productID uuid.UUID, qty int64) (int64, error) {
	res := tx.Model(&entity.InventoryItem{}).
		Where("product_id = ? AND stock_quantity >= ?", productID, qty).
		Update("stock_quantity", gorm.Expr("stock_quantity - ?", qty))
	return res.RowsAffected, res.Error
}

func (r *InventoryRepository) Increment(tx *gorm.DB, productID uuid.UUID, qty int64) (int64, error) {
	res := tx.Model(&entity.InventoryItem{}).
		Where("product_id = ?", productID).
		Update("stock_quantity", gorm.Expr("stock_quantity + ?", qty))
	return res.RowsAffected, res.Error
}

func (r *InventoryRepository) Create(tx *gorm.DB, it *entity.InventoryItem) error {
	return tx.Create(it).Error
}
