package repository

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kidoxdavid/eazyfoods-sub000/entity"
)

// CatalogRepository reads the seller and item tables owned by the catalog.
type CatalogRepository struct{ DB *gorm.DB }

func NewCatalogRepository(db *gorm.DB) *CatalogRepository { return &CatalogRepository{DB: db} }

func (r *CatalogRepository) GetVendor(tx *gorm.DB, id uuid.UUID) (*entity.Vendor, error) {
	var v entity.Vendor
	if err := tx.Where("id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *CatalogRepository) GetChef(tx *gorm.DB, id uuid.UUID) (*entity.Chef, error) {
	var c entity.Chef
	if err := tx.Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CatalogRepository) GetProduct(tx *gorm.DB, id uuid.UUID) (*entity.Product, error) {
	var p entity.Product
	if err := tx.Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *CatalogRepository) GetCuisine(tx *gorm.DB, id uuid.UUID) (*entity.Cuisine, error) {
	var c entity.Cuisine
	if err := tx.Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CatalogRepository) GetAddress(tx *gorm.DB, id uuid.UUID) (*entity.Address, error) {
	var a entity.Address
	if err := tx.Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}
