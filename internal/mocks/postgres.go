package mocks

import (
	"github.com/Billy-Davies-2/flashdraft/internal/dal"
	"github.com/Billy-Davies-2/flashdraft/internal/logger"
)

// MockPostgresStore stands in for Postgres in local development using SQLite
type MockPostgresStore struct {
	*dal.SQLiteStore
}

// NewMockPostgresStore creates a SQLite-backed draft store
func NewMockPostgresStore(sqliteFile string) (*MockPostgresStore, error) {
	logger.Info("Using MOCK Postgres (SQLite) for local development", "file", sqliteFile)

	store, err := dal.NewSQLiteStore(sqliteFile)
	if err != nil {
		return nil, err
	}
	return &MockPostgresStore{SQLiteStore: store}, nil
}
