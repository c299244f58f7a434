package repository

import (
	"github.com/lizmareco/tablero/internal/common/config"
	"github.com/lizmareco/tablero/internal/server/db"
)

// Provide creates the repository selected by cfg.Driver: in memory, SQLite
// or PostgreSQL.
func Provide(cfg config.DatabaseConfig) (Repository, func() error, error) {
	if cfg.Driver == db.Memory {
		repo := NewMemoryRepository()
		return repo, repo.Close, nil
	}
	conn, err := db.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	repo, err := NewSQLRepositoryWithDB(conn)
	if err != nil {
		return nil, nil, err
	}
	return repo, repo.Close, nil
}
