package database

import (
	"fmt"

	"github.com/shiv669/echo-core-go/internal/config"
	"github.com/shiv669/echo-core-go/internal/models"
	"github.com/shiv669/echo-core-go/internal/pkg/cluster"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the process-wide handle, set by Connect.
var DB *gorm.DB

// graphModels is every table the schema manages.
var graphModels = []interface{}{
	&models.NodeModel{},
	&models.VisitModel{},
	&models.OptionModel{},
}

// AutoMigrate leaves existing TEXT columns alone, so the wide ones are
// widened explicitly on MySQL.
var longTextColumns = []string{
	"ALTER TABLE `analyzes` MODIFY COLUMN `ua` LONGTEXT NULL",
	"ALTER TABLE `nodes` MODIFY COLUMN `full_text` LONGTEXT NULL",
}

// Connect opens a MySQL pool and, when asked, reconciles the schema first.
func Connect(cfg *config.AppConfig, runMigrations bool) (*gorm.DB, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	if runMigrations {
		if err := reconcileSchema(db); err != nil {
			return nil, fmt.Errorf("reconcile schema: %w", err)
		}
	}

	DB = db
	return db, nil
}

// EnsureSchema runs migration over a connection that is closed before
// returning, for setup commands that exit right after.
func EnsureSchema(cfg *config.AppConfig) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("unwrap sql.DB: %w", err)
	}
	defer sqlDB.Close()

	if err := reconcileSchema(db); err != nil {
		return fmt.Errorf("reconcile schema: %w", err)
	}
	return nil
}

func gormLogLevel(cfg *config.AppConfig) logger.LogLevel {
	if !cfg.IsDev() {
		return logger.Warn
	}
	if cluster.ShouldLogDevDiagnostics() {
		return logger.Info
	}
	return logger.Silent
}

func openDB(cfg *config.AppConfig) (*gorm.DB, error) {
	dialector := mysql.New(mysql.Config{
		DefaultStringSize: 191,
		DSN:               cfg.DSN,
	})
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(cfg)),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	return db, nil
}

func reconcileSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(graphModels...); err != nil {
		return err
	}
	if db.Dialector.Name() != "mysql" {
		return nil
	}
	for _, stmt := range longTextColumns {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
