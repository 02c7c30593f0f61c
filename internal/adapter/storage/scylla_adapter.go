package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ingest/internal/core/domain"
)

const stockTable = "stock"

var ErrNotOpen = errors.New("repository not open")

type ScyllaConfig struct {
	Hosts             []string
	Keyspace          string
	Datacenter        string
	ReplicationFactor int
	Consistency       gocql.Consistency
	Timeout           time.Duration
	Username          string
	Password          string
	BatchSize         int
}

// ParseConsistency maps a level name such as "ONE" or "LOCAL_QUORUM" to gocql.
func ParseConsistency(name string) (gocql.Consistency, error) {
	return gocql.ParseConsistencyWrapper(name)
}

type stockWrite struct {
	storeID     string
	sku         string
	quantity    int
	lastUpdated time.Time
}

// ScyllaAdapter writes current stock into the wide-column store. Writes are
// collected into a pending batch and executed once BatchSize is reached.
type ScyllaAdapter struct {
	cfg    ScyllaConfig
	logger *zap.Logger
	dial   func(ScyllaConfig) (cqlSession, error)
	now    func() time.Time

	mu         sync.Mutex
	session    cqlSession
	insertStmt string
	selectStmt string
	batch      []stockWrite
}

func NewScyllaAdapter(cfg ScyllaConfig, logger *zap.Logger) *ScyllaAdapter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	return &ScyllaAdapter{
		cfg:    cfg,
		logger: logger,
		dial:   dialScylla,
		now:    time.Now,
	}
}

func (s *ScyllaAdapter) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		return nil
	}

	session, err := s.dial(s.cfg)
	if err != nil {
		return err
	}

	if err := s.ensureSchema(ctx, session); err != nil {
		session.Close()
		return err
	}

	table := s.cfg.Keyspace + "." + stockTable
	s.insertStmt = fmt.Sprintf(
		`INSERT INTO %s (store_id, sku, quantity, last_updated) VALUES (?, ?, ?, ?)`, table)
	s.selectStmt = fmt.Sprintf(
		`SELECT quantity, last_updated FROM %s WHERE store_id = ? AND sku = ?`, table)
	s.session = session
	s.batch = make([]stockWrite, 0, s.cfg.BatchSize)

	s.logger.Info("scylla repository opened",
		zap.Strings("hosts", s.cfg.Hosts),
		zap.String("keyspace", s.cfg.Keyspace),
		zap.Stringer("consistency", s.cfg.Consistency),
		zap.Int("batch_size", s.cfg.BatchSize),
	)
	return nil
}

func (s *ScyllaAdapter) ensureSchema(ctx context.Context, session cqlSession) error {
	keyspace := fmt.Sprintf(`
		CREATE KEYSPACE IF NOT EXISTS %s
		WITH replication = {'class': 'NetworkTopologyStrategy', '%s': %d}`,
		s.cfg.Keyspace, s.cfg.Datacenter, s.cfg.ReplicationFactor)
	if err := session.Exec(ctx, keyspace); err != nil {
		return fmt.Errorf("create keyspace: %w", err)
	}

	table := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.%s (
			store_id text,
			sku text,
			quantity int,
			last_updated timestamp,
			PRIMARY KEY (store_id, sku)
		)`, s.cfg.Keyspace, stockTable)
	if err := session.Exec(ctx, table); err != nil {
		return fmt.Errorf("create stock table: %w", err)
	}
	return nil
}

func (s *ScyllaAdapter) Save(ctx context.Context, storeID, sku string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return ErrNotOpen
	}

	s.batch = append(s.batch, stockWrite{
		storeID:     storeID,
		sku:         sku,
		quantity:    quantity,
		lastUpdated: s.now().UTC(),
	})

	if len(s.batch) < s.cfg.BatchSize {
		return nil
	}

	// The write that filled the batch is reported as failed, so it must not
	// ride along with a later flush. Earlier writes stay for the next try.
	if err := s.flushLocked(ctx); err != nil {
		s.batch = s.batch[:len(s.batch)-1]
		return err
	}
	return nil
}

func (s *ScyllaAdapter) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return ErrNotOpen
	}
	return s.flushLocked(ctx)
}

func (s *ScyllaAdapter) flushLocked(ctx context.Context) error {
	if len(s.batch) == 0 {
		return nil
	}

	rows := make([][]interface{}, 0, len(s.batch))
	for _, w := range s.batch {
		rows = append(rows, []interface{}{w.storeID, w.sku, w.quantity, w.lastUpdated})
	}

	// On failure the batch stays for the next Flush or Close.
	if err := s.session.ExecBatch(ctx, s.cfg.Consistency, s.insertStmt, rows); err != nil {
		return fmt.Errorf("execute stock batch of %d: %w", len(rows), err)
	}

	s.batch = s.batch[:0]
	return nil
}

func (s *ScyllaAdapter) Put(ctx context.Context, storeID, sku string, quantity int) error {
	s.mu.Lock()
	session, stmt := s.session, s.insertStmt
	s.mu.Unlock()

	if session == nil {
		return ErrNotOpen
	}

	if err := session.Exec(ctx, stmt, storeID, sku, quantity, s.now().UTC()); err != nil {
		return fmt.Errorf("write stock: %w", err)
	}
	return nil
}

func (s *ScyllaAdapter) Lookup(ctx context.Context, storeID, sku string) (*domain.StockLevel, error) {
	s.mu.Lock()
	session, stmt := s.session, s.selectStmt
	s.mu.Unlock()

	if session == nil {
		return nil, ErrNotOpen
	}

	level := domain.StockLevel{StoreID: storeID, SKU: sku}
	err := session.Scan(ctx, stmt, []interface{}{storeID, sku}, &level.Quantity, &level.LastUpdated)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query stock: %w", err)
	}
	return &level, nil
}

// Pending is the number of writes waiting in the batch.
func (s *ScyllaAdapter) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batch)
}

func (s *ScyllaAdapter) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil
	}

	err := s.flushLocked(ctx)
	if err != nil {
		s.logger.Error("dropping unflushed stock writes on close",
			zap.Int("pending", len(s.batch)), zap.Error(err))
	}

	s.session.Close()
	s.session = nil
	s.batch = nil
	return err
}
