// Package db opens the MySQL ledger database and owns its schema.
package db

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/arsenic-art/DreamFundr/internal/config"
	"github.com/arsenic-art/DreamFundr/internal/http/middleware"
	"github.com/arsenic-art/DreamFundr/internal/modules/campaigns"
	"github.com/arsenic-art/DreamFundr/internal/modules/payments"
)

// Open connects with error translation on, so unique violations surface
// as gorm.ErrDuplicatedKey as well as MySQL error 1062.
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

// Models lists every table this service owns, in creation order.
func Models() []any {
	return []any{
		&campaigns.Campaign{},
		&payments.Donation{},
		&payments.Refund{},
		&payments.ProviderEvent{},
		&payments.SettlementAnomaly{},
		&middleware.Session{},
	}
}

// Migrate creates or extends the schema. It never drops columns.
func Migrate(db *gorm.DB, log *slog.Logger) error {
	for _, m := range Models() {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("migrate %T: %w", m, err)
		}
		log.Info("table migrated", "model", fmt.Sprintf("%T", m))
	}
	return nil
}
