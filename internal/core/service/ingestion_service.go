package service

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ingest/internal/core/domain"
	"github.com/rl1809/stock-ingest/internal/port"
)

var (
	ErrQueueFull     = errors.New("ingestion queue full")
	ErrServiceClosed = errors.New("ingestion service closed")
	ErrEmptySnapshot = errors.New("snapshot has no records")
)

type Persister interface {
	Persist(ctx context.Context, records []domain.InventoryRecord) (*domain.CycleReport, error)
}

// IngestionService queues snapshots and runs one cycle per snapshot: persist
// into both stores, then publish the same records. The sinks fail
// independently, so a failed persistence still publishes.
type IngestionService struct {
	persister  Persister
	publishers port.PublisherFactory
	logger     *zap.Logger

	queue chan domain.Snapshot
	wg    sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	observe func(domain.CycleOutcome)
}

func NewIngestionService(persister Persister, publishers port.PublisherFactory, queueSize int, logger *zap.Logger) *IngestionService {
	return &IngestionService{
		persister:  persister,
		publishers: publishers,
		logger:     logger,
		queue:      make(chan domain.Snapshot, queueSize),
	}
}

// OnCycle registers a callback invoked after every queued cycle finishes.
func (s *IngestionService) OnCycle(fn func(domain.CycleOutcome)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observe = fn
}

// Submit queues a snapshot without blocking and returns its id.
func (s *IngestionService) Submit(snapshot domain.Snapshot) (string, error) {
	if len(snapshot.Records) == 0 {
		return "", ErrEmptySnapshot
	}
	if snapshot.ID == "" {
		snapshot.ID = uuid.NewString()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", ErrServiceClosed
	}

	select {
	case s.queue <- snapshot:
		return snapshot.ID, nil
	default:
		return "", ErrQueueFull
	}
}

// Start launches the workers. Each worker owns its cycle's repositories and
// publisher, so cycles never share a connection. Cancelling ctx interrupts
// the cycles in flight.
func (s *IngestionService) Start(ctx context.Context, workers int) {
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.workerLoop(ctx, i)
	}
}

func (s *IngestionService) workerLoop(ctx context.Context, id int) {
	defer s.wg.Done()
	logger := s.logger.With(zap.Int("worker_id", id))

	for snapshot := range s.queue {
		outcome := s.RunCycle(ctx, snapshot)

		if outcome.PersistErr != nil {
			logger.Error("snapshot cycle finished with errors",
				zap.String("snapshot_id", snapshot.ID), zap.Error(outcome.PersistErr))
		}

		s.mu.RLock()
		observe := s.observe
		s.mu.RUnlock()
		if observe != nil {
			observe(outcome)
		}
	}
}

// RunCycle persists and publishes one snapshot synchronously.
func (s *IngestionService) RunCycle(ctx context.Context, snapshot domain.Snapshot) domain.CycleOutcome {
	outcome := domain.CycleOutcome{SnapshotID: snapshot.ID}
	logger := s.logger.With(zap.String("snapshot_id", snapshot.ID))

	outcome.Report, outcome.PersistErr = s.persister.Persist(ctx, snapshot.Records)

	publisher := s.publishers.NewPublisher()
	for _, record := range snapshot.Records {
		publisher.Publish(ctx, record)
	}
	outcome.Publish = publisher.Flush(context.WithoutCancel(ctx))

	logger.Info("snapshot cycle done",
		zap.Int("records", len(snapshot.Records)),
		zap.Int("published", outcome.Publish.Sent),
		zap.Int("publish_failed", outcome.Publish.Failed),
	)
	return outcome
}

// Close stops accepting snapshots and waits for queued ones to finish.
func (s *IngestionService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
}
