package repository

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kidoxdavid/eazyfoods-sub000/entity"
)

type AccountRepository struct {
	DB *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{DB: db}
}

func (r *AccountRepository) Create(tx *gorm.DB, a *entity.Account) error {
	return tx.Create(a).Error
}

func (r *AccountRepository) FindByEmail(tx *gorm.DB, email string) (*entity.Account, error) {
	var a entity.Account
	if err := tx.Where("email = ?", email).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepository) FindByID(tx *gorm.DB, id uuid.UUID) (*entity.Account, error) {
	var a entity.Account
	if err := tx.Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepository) SetSubject(tx *gorm.DB, id, subjectID uuid.UUID) error {
	return tx.Model(&entity.Account{}).Where("id = ?", id).Update("subject_id", subjectID).Error
}
