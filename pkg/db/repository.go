// pkg/db/repository.go
package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/smith3v/wortschatz/pkg/config"
	"github.com/smith3v/wortschatz/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Export DB variable
var DB *gorm.DB

func InitDB(cfg config.DatabaseConfig) error {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		logger.Error("failed to build database dialector", "driver", cfg.Driver, "error", err)
		return err
	}
	gormLogger, gormErr := newGormLogger(config.AppConfig.Logging.GormLevel, cfg.Driver)
	if gormErr != nil {
		logger.Error("invalid gorm log level", "value", config.AppConfig.Logging.GormLevel, "error", gormErr)
	}
	gdb, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		logger.Error("failed to connect to database", "driver", cfg.Driver, "error", err)
		return err
	}
	if err := Migrate(gdb); err != nil {
		return err
	}
	DB = gdb
	return nil
}

func dialectorFor(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case config.DriverPostgres, "":
		dsn := "host=" + cfg.Host +
			" user=" + cfg.User +
			" password=" + cfg.Password +
			" dbname=" + cfg.DBName +
			" port=" + strconv.Itoa(cfg.Port) +
			" sslmode=" + cfg.SSLMode
		return postgres.Open(dsn), nil
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		return sqlite.Open(cfg.Path + "?_foreign_keys=on&_busy_timeout=5000"), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Migrate brings the schema up to date. It is safe to run on every start.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(&UserStats{}, &WordProgress{}, &DailyStreakRecord{}); err != nil {
		logger.Error("failed to auto-migrate database", "error", err)
		return err
	}
	if err := migrateLegacyProficiencyLabels(gdb); err != nil {
		logger.Error("failed to migrate legacy proficiency labels", "error", err)
		return err
	}
	if err := migrateEaseFloor(gdb); err != nil {
		logger.Error("failed to migrate ease factors", "error", err)
		return err
	}
	return nil
}

// Older clients stored the terminal state as "learned"; it is the same state
// as "mastered".
func migrateLegacyProficiencyLabels(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	res := db.Model(&WordProgress{}).
		Where("proficiency = ?", "learned").
		Update("proficiency", "mastered")
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		logger.Info("rewrote legacy proficiency labels", "rows", res.RowsAffected)
	}
	return nil
}

// Rows imported without scheduling state get the default ease.
func migrateEaseFloor(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	return db.Model(&WordProgress{}).
		Where("ease_factor < ?", MinEaseFactor).
		Update("ease_factor", DefaultEaseFactor).Error
}
