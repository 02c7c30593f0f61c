package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ingest/internal/core/domain"
)

const writeSavepoint = "stock_write"

// SQLAdapter mirrors stock into stock_analytics and appends the adjustment
// audit log. It pins a single connection between Open and Close; writes run
// in a transaction that is committed every batchSize upserts.
type SQLAdapter struct {
	db        *sql.DB
	dialect   Dialect
	batchSize int
	logger    *zap.Logger
	now       func() time.Time
	schema    *schemaGuard

	mu      sync.Mutex
	conn    *sql.Conn
	tx      *sql.Tx
	pending int
}

func NewSQLAdapter(db *sql.DB, dialect Dialect, batchSize int, logger *zap.Logger) *SQLAdapter {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &SQLAdapter{
		db:        db,
		dialect:   dialect,
		batchSize: batchSize,
		logger:    logger,
		now:       time.Now,
		schema:    &schemaGuard{},
	}
}

// schemaGuard runs the schema statements once for every adapter sharing it.
// A failed run is retried by the next Open.
type schemaGuard struct {
	mu    sync.Mutex
	ready bool
}

func (g *schemaGuard) ensure(ctx context.Context, conn *sql.Conn, stmts []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.ready {
		return nil
	}
	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	g.ready = true
	return nil
}

// OpenSQL opens a pool for the dialect's driver and checks it is reachable.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.Name, err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect.Name, err)
	}
	return db, nil
}

func (m *SQLAdapter) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		return nil
	}

	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return fmt.Errorf("ping: %w", err)
	}

	if err := m.schema.ensure(ctx, conn, m.dialect.Schema); err != nil {
		conn.Close()
		return fmt.Errorf("ensure schema: %w", err)
	}

	m.conn = conn
	return nil
}

func (m *SQLAdapter) Upsert(ctx context.Context, storeID, sku string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.write(ctx, m.dialect.UpsertStock, storeID, sku, quantity, m.now().UTC()); err != nil {
		return fmt.Errorf("upsert stock: %w", err)
	}

	m.pending++
	if m.pending >= m.batchSize {
		return m.commitLocked()
	}
	return nil
}

func (m *SQLAdapter) Commit(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return ErrNotOpen
	}
	return m.commitLocked()
}

// LogAdjustment inserts into the current transaction and commits it, so any
// pending upserts become durable together with the audit row.
func (m *SQLAdapter) LogAdjustment(ctx context.Context, storeID, sku string, quantityDelta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.write(ctx, m.dialect.InsertAdjustment, storeID, sku, quantityDelta, m.now().UTC()); err != nil {
		return fmt.Errorf("insert adjustment: %w", err)
	}

	m.pending++
	return m.commitLocked()
}

// write runs one statement in the open transaction, beginning it if needed.
func (m *SQLAdapter) write(ctx context.Context, query string, args ...interface{}) error {
	if m.conn == nil {
		return ErrNotOpen
	}

	if m.tx == nil {
		tx, err := m.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		m.tx = tx
	}

	if !m.dialect.Savepoints {
		_, err := m.tx.ExecContext(ctx, query, args...)
		return err
	}

	if _, err := m.tx.ExecContext(ctx, "SAVEPOINT "+writeSavepoint); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if _, err := m.tx.ExecContext(ctx, query, args...); err != nil {
		if _, rbErr := m.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+writeSavepoint); rbErr != nil {
			return multierr.Append(err, fmt.Errorf("rollback to savepoint: %w", rbErr))
		}
		return err
	}
	_, err := m.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+writeSavepoint)
	return err
}

func (m *SQLAdapter) commitLocked() error {
	if m.pending == 0 {
		return nil
	}

	tx, pending := m.tx, m.pending
	m.tx = nil
	m.pending = 0

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %d writes: %w", pending, err)
	}
	return nil
}

// Pending is the number of writes since the last commit.
func (m *SQLAdapter) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

func (m *SQLAdapter) Close(ctx context.Context, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return nil
	}

	var err error
	switch {
	case m.tx == nil:
	case cause != nil:
		if m.pending > 0 {
			m.logger.Warn("rolling back uncommitted stock writes",
				zap.Int("pending", m.pending), zap.NamedError("cause", cause))
		}
		if rbErr := m.tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = fmt.Errorf("rollback: %w", rbErr)
		}
	case m.pending > 0:
		err = m.commitLocked()
	default:
		// a transaction with only failed writes
		if rbErr := m.tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = fmt.Errorf("rollback: %w", rbErr)
		}
	}

	m.tx = nil
	m.pending = 0
	// ErrConnDone means the pool already discarded a broken connection.
	if closeErr := m.conn.Close(); closeErr != nil && !errors.Is(closeErr, sql.ErrConnDone) {
		err = multierr.Append(err, fmt.Errorf("release connection: %w", closeErr))
	}
	m.conn = nil
	return err
}

// StockAnalytics reads the committed mirror row for a key, or nil if absent.
func (m *SQLAdapter) StockAnalytics(ctx context.Context, storeID, sku string) (*domain.StockLevel, error) {
	level := domain.StockLevel{StoreID: storeID, SKU: sku}
	err := m.db.QueryRowContext(ctx, m.dialect.SelectStock, storeID, sku).
		Scan(&level.Quantity, &level.LastUpdated)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query stock analytics: %w", err)
	}
	return &level, nil
}

func (m *SQLAdapter) AdjustmentCount(ctx context.Context) (int, error) {
	var count int
	if err := m.db.QueryRowContext(ctx, m.dialect.CountAdjustments).Scan(&count); err != nil {
		return 0, fmt.Errorf("count adjustments: %w", err)
	}
	return count, nil
}
