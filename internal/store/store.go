// Package store persists rooms, devices, connections and relayed messages
// through gorm over a pooled database/sql handle.
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dkeye/RoomRelay/internal/core"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverNone   = "none"
)

// Config describes the durable backend and its connection pool.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store is the gorm-backed implementation of core.Store.
type Store struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	now    func() time.Time
	closed atomic.Bool
}

var _ core.Store = (*Store)(nil)

// New opens the configured backend. DriverNone yields a Disabled store.
func New(cfg Config) (core.Store, error) {
	if cfg.Driver == DriverNone {
		log.Warn().Str("module", "store").Msg("persistence disabled, rooms are memory only")
		return Disabled{}, nil
	}
	return Open(cfg)
}

// Open connects, sizes the pool and migrates the schema.
func Open(cfg Config) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverSQLite, "":
		dialector = sqlite.Open(sqliteDSN(cfg.DSN))
	case DriverMySQL:
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}

	if isSQLite(cfg) {
		// sqlite allows one writer; a single pooled connection serializes
		// writers in process and keeps :memory: a single database
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(models()...); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	log.Info().Str("module", "store").Str("driver", dialector.Name()).
		Int("max_open_conns", sqlDB.Stats().MaxOpenConnections).Msg("database ready")

	return &Store{
		db:    db,
		sqlDB: sqlDB,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

func isSQLite(cfg Config) bool {
	return cfg.Driver == DriverSQLite || cfg.Driver == ""
}

// sqliteDSN makes file databases wait on a locked file and take the write
// lock at BEGIN.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, ":memory:") {
		return dsn
	}
	var params []string
	if !strings.Contains(dsn, "_busy_timeout") {
		params = append(params, "_busy_timeout=5000")
	}
	if !strings.Contains(dsn, "_txlock") {
		params = append(params, "_txlock=immediate")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// Close releases the pool. Later calls fail with core.ErrUnavailable.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.sqlDB.Close()
}

// withConn checks a connection out of the pool for the duration of fn and
// returns it on every path.
func (s *Store) withConn(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	if s.closed.Load() {
		return fmt.Errorf("%s: %w: store closed", op, core.ErrUnavailable)
	}
	conn, err := s.sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, core.ErrUnavailable, err)
	}
	defer conn.Close()

	tx := s.db.Session(&gorm.Session{Context: ctx, NewDB: true})
	tx.Statement.ConnPool = conn
	if err := fn(tx); err != nil {
		return wrap(op, err)
	}
	return nil
}

func wrap(op string, err error) error {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%s: %w: %w", op, core.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
