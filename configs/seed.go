package configs

import (
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/kidoxdavid/eazyfoods-sub000/entity"
)

// SeedAdmin creates the first admin account from ADMIN_EMAIL/ADMIN_PASSWORD.
func SeedAdmin(db *gorm.DB, cfg *Config, log *zap.Logger) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		log.Info("admin_seed_skipped", zap.String("reason", "missing ADMIN_EMAIL/ADMIN_PASSWORD"))
		return nil
	}

	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	var count int64
	if err := db.Model(&entity.Account{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		log.Info("admin_seed_exists", zap.String("email", email))
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := entity.Account{
		Email:    email,
		Password: string(hash),
		Name:     "Admin",
		Role:     "admin",
	}
	err = db.Create(&admin).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	if err != nil {
		return err
	}
	// admins act as themselves
	if err := db.Model(&admin).Update("subject_id", admin.ID).Error; err != nil {
		return err
	}
	log.Info("admin_seeded", zap.String("email", email))
	return nil
}
