package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/stock-ingest/internal/core/domain"
)

type SnapshotSubmitter interface {
	Submit(snapshot domain.Snapshot) (string, error)
}

// SnapshotDriver feeds generated snapshots into ingestion on a fixed
// schedule. Snapshot times start at the first tick and advance by exactly
// one interval per snapshot, whatever the wall clock says.
type SnapshotDriver struct {
	submitter SnapshotSubmitter
	generator *SnapshotGenerator
	count     int
	lines     int
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time
	ticks     func(time.Duration) (<-chan time.Time, func())
}

func NewSnapshotDriver(submitter SnapshotSubmitter, generator *SnapshotGenerator, count, lines int, interval time.Duration, logger *zap.Logger) *SnapshotDriver {
	return &SnapshotDriver{
		submitter: submitter,
		generator: generator,
		count:     count,
		lines:     lines,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
		ticks: func(d time.Duration) (<-chan time.Time, func()) {
			ticker := time.NewTicker(d)
			return ticker.C, ticker.Stop
		},
	}
}

// Run submits count snapshots interval apart and returns how many were
// accepted. A rejected snapshot is logged and skipped. Run stops early with
// ctx's error when ctx ends.
func (d *SnapshotDriver) Run(ctx context.Context) (int, error) {
	if d.count <= 0 {
		return 0, nil
	}

	ticks, stop := d.ticks(d.interval)
	defer stop()

	at := d.now()
	accepted := 0
	for i := 0; i < d.count; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return accepted, ctx.Err()
			case <-ticks:
			}
		}

		snapshot := d.generator.Generate(d.lines, at)
		id, err := d.submitter.Submit(snapshot)
		if err != nil {
			d.logger.Error("snapshot rejected",
				zap.Int("snapshot", i+1),
				zap.Int("total", d.count),
				zap.Time("snapshot_time", at),
				zap.Error(err),
			)
		} else {
			accepted++
			d.logger.Info("snapshot submitted",
				zap.String("snapshot_id", id),
				zap.Int("snapshot", i+1),
				zap.Int("total", d.count),
				zap.Int("records", len(snapshot.Records)),
			)
		}

		at = at.Add(d.interval)
	}
	return accepted, nil
}
