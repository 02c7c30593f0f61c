package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/rl1809/stock-ingest/internal/core/domain"
	"github.com/rl1809/stock-ingest/internal/port"
)

var errStoreDown = errors.New("store unavailable")

// callLog records repository calls across both fakes in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeWide struct {
	log      *callLog
	openErr  error
	failSKU  string
	closeErr error

	mu     sync.Mutex
	rows   map[string]int
	closed bool
}

func (f *fakeWide) Open(ctx context.Context) error {
	f.log.add("wide.open")
	return f.openErr
}

func (f *fakeWide) Save(ctx context.Context, storeID, sku string, quantity int) error {
	f.log.add("wide.save %s %d", sku, quantity)
	if sku == f.failSKU {
		return errStoreDown
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[storeID+"/"+sku] = quantity
	return nil
}

func (f *fakeWide) Flush(ctx context.Context) error { return nil }

func (f *fakeWide) Put(ctx context.Context, storeID, sku string, quantity int) error {
	return f.Save(ctx, storeID, sku, quantity)
}

func (f *fakeWide) Close(ctx context.Context) error {
	f.log.add("wide.close")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return f.closeErr
}

type fakeRel struct {
	log     *callLog
	openErr error
	failSKU string
	logErr  error

	mu          sync.Mutex
	rows        map[string]int
	adjustments []domain.StockAdjustment
	closed      bool
	closeCause  error
}

func (f *fakeRel) Open(ctx context.Context) error {
	f.log.add("rel.open")
	return f.openErr
}

func (f *fakeRel) Upsert(ctx context.Context, storeID, sku string, quantity int) error {
	f.log.add("rel.upsert %s %d", sku, quantity)
	if sku == f.failSKU {
		return errStoreDown
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[storeID+"/"+sku] = quantity
	return nil
}

func (f *fakeRel) Commit(ctx context.Context) error { return nil }

func (f *fakeRel) LogAdjustment(ctx context.Context, storeID, sku string, quantityDelta int) error {
	f.log.add("rel.log %s %d", sku, quantityDelta)
	if f.logErr != nil {
		return f.logErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adjustments = append(f.adjustments, domain.StockAdjustment{
		ID:            int64(len(f.adjustments) + 1),
		StoreID:       storeID,
		SKU:           sku,
		QuantityDelta: quantityDelta,
		CreatedAt:     time.Now(),
	})
	return nil
}

func (f *fakeRel) Close(ctx context.Context, cause error) error {
	f.log.add("rel.close")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closeCause = cause
	return nil
}

// fakeFactory builds a new fake pair per call, configured from its fields.
// relLogErrs is consumed one entry per relational repository built.
type fakeFactory struct {
	log          *callLog
	wideOpenErr  error
	wideFailSKU  string
	wideCloseErr error
	relOpenErr   error
	relFailSKU   string
	relLogErrs   []error

	mu   sync.Mutex
	wide []*fakeWide
	rel  []*fakeRel
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{log: &callLog{}}
}

func (f *fakeFactory) NewWideColumnRepository() port.WideColumnRepository {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &fakeWide{
		log:      f.log,
		openErr:  f.wideOpenErr,
		failSKU:  f.wideFailSKU,
		closeErr: f.wideCloseErr,
		rows:     make(map[string]int),
	}
	f.wide = append(f.wide, w)
	return w
}

func (f *fakeFactory) NewRelationalRepository() port.RelationalRepository {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &fakeRel{
		log:     f.log,
		openErr: f.relOpenErr,
		failSKU: f.relFailSKU,
		rows:    make(map[string]int),
	}
	if len(f.relLogErrs) > 0 {
		r.logErr, f.relLogErrs = f.relLogErrs[0], f.relLogErrs[1:]
	}
	f.rel = append(f.rel, r)
	return r
}

func (f *fakeFactory) relational() []*fakeRel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeRel(nil), f.rel...)
}

// adjustments collects audit rows across every relational repository built.
func (f *fakeFactory) adjustments() []domain.StockAdjustment {
	var all []domain.StockAdjustment
	for _, r := range f.relational() {
		r.mu.Lock()
		all = append(all, r.adjustments...)
		r.mu.Unlock()
	}
	return all
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) GetStock(ctx context.Context, storeID, sku string) (*domain.StockLevel, error) {
	args := m.Called(ctx, storeID, sku)
	level, _ := args.Get(0).(*domain.StockLevel)
	return level, args.Error(1)
}

func (m *mockCache) SetStock(ctx context.Context, level domain.StockLevel, ttl time.Duration) error {
	args := m.Called(ctx, level, ttl)
	return args.Error(0)
}

func (m *mockCache) InvalidateStock(ctx context.Context, storeID, sku string) error {
	args := m.Called(ctx, storeID, sku)
	return args.Error(0)
}

func (m *mockCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *mockCache) ReleaseIdempotency(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

type fakePublisher struct {
	failAll bool

	mu      sync.Mutex
	records []domain.InventoryRecord
	report  domain.PublishReport
}

func (p *fakePublisher) Publish(ctx context.Context, record domain.InventoryRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAll {
		p.report.Failed++
		return
	}
	p.records = append(p.records, record)
	p.report.Sent++
}

func (p *fakePublisher) Flush(ctx context.Context) domain.PublishReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.report
}

type fakePublisherFactory struct {
	failAll bool

	mu         sync.Mutex
	publishers []*fakePublisher
}

func (f *fakePublisherFactory) NewPublisher() port.RecordPublisher {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &fakePublisher{failAll: f.failAll}
	f.publishers = append(f.publishers, p)
	return p
}

func (f *fakePublisherFactory) published() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.publishers {
		n += p.Flush(context.Background()).Sent
	}
	return n
}

func rec(storeID, sku string, quantity int) domain.InventoryRecord {
	return domain.InventoryRecord{
		StoreID:     storeID,
		SKU:         sku,
		Category:    "Fruits & Vegetables",
		Product:     "Apples",
		Quantity:    quantity,
		GeneratedAt: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}
