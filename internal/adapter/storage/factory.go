package storage

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/rl1809/stock-ingest/internal/port"
)

// RepositoryFactory hands out unopened repositories. Scylla sessions are
// per instance; relational instances share the pool and the schema check but
// each pins its own connection once opened.
type RepositoryFactory struct {
	scylla    ScyllaConfig
	db        *sql.DB
	dialect   Dialect
	batchSize int
	logger    *zap.Logger
	schema    *schemaGuard
}

func NewRepositoryFactory(scylla ScyllaConfig, db *sql.DB, dialect Dialect, batchSize int, logger *zap.Logger) *RepositoryFactory {
	scylla.BatchSize = batchSize
	return &RepositoryFactory{
		scylla:    scylla,
		db:        db,
		dialect:   dialect,
		batchSize: batchSize,
		logger:    logger,
		schema:    &schemaGuard{},
	}
}

func (f *RepositoryFactory) NewWideColumnRepository() port.WideColumnRepository {
	return f.NewScyllaAdapter()
}

func (f *RepositoryFactory) NewRelationalRepository() port.RelationalRepository {
	return f.NewSQLAdapter()
}

func (f *RepositoryFactory) NewScyllaAdapter() *ScyllaAdapter {
	return NewScyllaAdapter(f.scylla, f.logger.Named("scylla"))
}

func (f *RepositoryFactory) NewSQLAdapter() *SQLAdapter {
	adapter := NewSQLAdapter(f.db, f.dialect, f.batchSize, f.logger.Named(f.dialect.Name))
	adapter.schema = f.schema
	return adapter
}
