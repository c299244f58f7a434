// Package db opens the reference server's SQL databases.
package db

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteBusyTimeout = 5 * time.Second

// sqliteParams are the go-sqlite3 connection settings. Foreign keys back
// the list/card/task cascades; WAL lets readers run next to the writer.
func sqliteParams() url.Values {
	p := url.Values{}
	p.Set("_foreign_keys", "on")
	p.Set("_mode", "rwc")
	p.Set("_journal_mode", "WAL")
	p.Set("_synchronous", "NORMAL")
	p.Set("_busy_timeout", strconv.Itoa(int(sqliteBusyTimeout/time.Millisecond)))
	return p
}

// OpenSQLite opens the board database at path, creating the file and its
// directory when missing. The pool holds one connection so structural
// writes never see SQLITE_BUSY.
func OpenSQLite(path string) (*sqlx.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite database path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve database path %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	conn, err := sqlx.Open(SQLite3, "file:"+abs+"?"+sqliteParams().Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite database %s: %w", abs, err)
	}
	return conn, nil
}
