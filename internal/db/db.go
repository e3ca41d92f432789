package db

import (
	"database/sql"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"buywatch/internal/config"
)

type DB struct {
	Gorm *gorm.DB
	SQL  *sql.DB
}

func Open(cfg config.DBConfig) (*DB, error) {
	gcfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	gdb, err := gorm.Open(postgres.Open(cfg.DSN), gcfg)
	if err != nil {
		return nil, err
	}

	sqldb, err := gdb.DB()
	if err != nil {
		return nil, err
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return &DB{Gorm: gdb, SQL: sqldb}, nil
}

func Close(db *DB) error {
	if db == nil || db.SQL == nil {
		return nil
	}
	return db.SQL.Close()
}

func Ping(db *DB) error {
	if db == nil || db.SQL == nil {
		return nil
	}
	return db.SQL.Ping()
}

func SetTimezone(db *DB, tz string) error {
	if tz == "" {
		return nil
	}
	_, err := db.SQL.Exec("SET TIME ZONE '" + tz + "'")
	return err
}

// AcquireAdvisoryLock attempts a session-level postgres advisory lock.
// At most one monitor instance may run per logical deployment: the poller
// has no range-coordination protocol, so a second scanner would produce
// duplicate alerts bounded only by the dedup constraint.
func AcquireAdvisoryLock(db *DB, key int64) (bool, error) {
	if db == nil || db.SQL == nil {
		return false, nil
	}
	var locked bool
	if err := db.SQL.QueryRow("SELECT pg_try_advisory_lock($1)", key).Scan(&locked); err != nil {
		return false, err
	}
	return locked, nil
}

func ReleaseAdvisoryLock(db *DB, key int64) error {
	if db == nil || db.SQL == nil {
		return nil
	}
	_, err := db.SQL.Exec("SELECT pg_advisory_unlock($1)", key)
	return err
}

func NowUTC() time.Time {
	return time.Now().UTC()
}
