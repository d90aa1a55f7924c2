package infra

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 5 * time.Minute
)

type Options struct {
	// Type is "sqlite", "postgres" or "mysql".
	Type string
	DSN  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	Logger *slog.Logger
}

// Open connects, tunes the pool, verifies the connection and makes sure the
// schema exists.
func Open(ctx context.Context, opts Options) (*bun.DB, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	driver, err := driverName(opts.Type)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	sqlDB, err := sql.Open(driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", opts.Type, err)
	}

	maxOpen, maxIdle := opts.MaxOpenConns, opts.MaxIdleConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxOpenConns
	}
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdleConns
	}
	lifetime := opts.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = defaultConnMaxLifetime
	}
	// every connection to an in-memory sqlite database sees its own empty
	// database, so exactly one connection must live as long as the pool
	if opts.Type == "sqlite" && isMemoryDSN(opts.DSN) {
		maxOpen, maxIdle, lifetime = 1, 1, 0
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(lifetime)

	db := newBunDB(sqlDB, opts.Type)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", opts.Type, err)
	}
	if err := EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	opts.Logger.Info("database ready",
		"type", opts.Type,
		"driver", driver,
		"max_open_conns", maxOpen,
		"conn_max_lifetime", lifetime,
		"took", time.Since(start),
	)
	return db, nil
}

// EnsureSchema creates the todos table when it does not exist yet.
func EnsureSchema(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateTable().
		Model((*TodoModel)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create todos table: %w", err)
	}
	return nil
}

func driverName(dbType string) (string, error) {
	switch dbType {
	case "sqlite":
		return "sqlite", nil
	case "postgres":
		// pgx/v5/stdlib registers itself as "pgx"
		return "pgx", nil
	case "mysql":
		return "mysql", nil
	default:
		return "", fmt.Errorf("unsupported database type %q", dbType)
	}
}

func newBunDB(sqlDB *sql.DB, dbType string) *bun.DB {
	switch dbType {
	case "postgres":
		return bun.NewDB(sqlDB, pgdialect.New())
	case "mysql":
		return bun.NewDB(sqlDB, mysqldialect.New())
	default:
		return bun.NewDB(sqlDB, sqlitedialect.New())
	}
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory") || strings.HasPrefix(dsn, "file::memory:")
}
