package storage

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Supported SQL dialects
const (
	DialectMySQL  = "mysql"
	DialectSQLite = "sqlite"
)

// SQLConfig holds relational database configuration
type SQLConfig struct {
	Dialect      string
	DSN          string
	MaxIdleConns int
	MaxOpenConns int
	Logger       *zap.Logger
}

// OpenSQL connects to the projection database
func OpenSQL(cfg *SQLConfig) (*gorm.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dsn cannot be empty")
	}

	var dialector gorm.Dialector
	switch cfg.Dialect {
	case DialectMySQL:
		dialector = mysql.Open(cfg.DSN)
	case DialectSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unexpected DB dialect %q", cfg.Dialect)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dbLogger := gormlogger.New(
		zap.NewStdLog(logger.Named("gorm")),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{Logger: dbLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	return db, nil
}

// InitTables creates or migrates every projection table
func InitTables(db *gorm.DB) error {
	models := []interface{}{
		&RawEvent{},
		&Domain{},
		&TextRecord{},
		&AddressRecord{},
		&Checkpoint{},
	}
	for _, m := range models {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", m, err)
		}
	}
	return nil
}

// CloseSQL releases the underlying connection pool
func CloseSQL(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
