package configs

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kidoxdavid/eazyfoods-sub000/entity"
)

// ConnectDB opens the configured database. Unique violations surface as
// gorm.ErrDuplicatedKey, which first-accept-wins and order numbering rely on.
func ConnectDB(cfg *Config, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres":
		dialector = postgres.Open(cfg.DBSource)
	case "sqlite":
		dialector = sqlite.Open(cfg.DBSource)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	level := gormlogger.Warn
	if cfg.AppEnv == "test" {
		level = gormlogger.Silent
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         newGormLogger(log, level),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DBDriver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.DBDriver == "sqlite" {
		// sqlite serialises writers anyway; one connection keeps
		// transactions and in-memory databases coherent
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping %s: %w", cfg.DBDriver, err)
	}
	log.Info("database_connected", zap.String("driver", cfg.DBDriver))
	return db, nil
}

// Migrate the schema
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.Account{},
		&entity.Vendor{}, &entity.Chef{}, &entity.Product{}, &entity.Cuisine{}, &entity.Address{},
		&entity.InventoryItem{},
		&entity.Checkout{}, &entity.Order{}, &entity.OrderItem{}, &entity.OrderStatusHistory{},
		&entity.Driver{}, &entity.Delivery{},
		&entity.PaymentIntent{},
		&entity.Coupon{}, &entity.CouponUsage{},
	)
}
