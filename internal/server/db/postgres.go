package db

import (
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

const (
	defaultPostgresConns  = 10
	postgresConnLifetime  = 30 * time.Minute
	postgresConnIdleLimit = 5 * time.Minute
)

// OpenPostgres connects through the pgx stdlib driver. maxConns <= 0 uses
// the default pool size.
func OpenPostgres(dsn string, maxConns int) (*sqlx.DB, error) {
	if maxConns <= 0 {
		maxConns = defaultPostgresConns
	}
	conn, err := sqlx.Open(PGX, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	conn.SetMaxOpenConns(maxConns)
	conn.SetMaxIdleConns(max(maxConns/2, 1))
	conn.SetConnMaxLifetime(postgresConnLifetime)
	conn.SetConnMaxIdleTime(postgresConnIdleLimit)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping postgres database: %w", err)
	}
	return conn, nil
}
