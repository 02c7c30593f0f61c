package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ingest/internal/adapter/storage"
	"github.com/rl1809/stock-ingest/internal/config"
	"github.com/rl1809/stock-ingest/internal/core/domain"
	"github.com/rl1809/stock-ingest/internal/core/service"
)

const (
	concurrentCycles = 8
	linesPerCycle    = 50
	raceStore        = "Store-001"
	raceSKU          = "FRU-APP-123"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	consistency, err := storage.ParseConsistency(cfg.ScyllaConsistency)
	if err != nil {
		log.Fatalf("invalid consistency: %v", err)
	}
	dialect, err := storage.DialectFor(cfg.RelationalDriver)
	if err != nil {
		log.Fatalf("invalid driver: %v", err)
	}

	db, err := storage.OpenSQL(ctx, dialect, cfg.RelationalDSN())
	if err != nil {
		log.Fatalf("failed to connect relational store: %v", err)
	}
	defer db.Close()

	logger := zap.NewNop()
	repos := storage.NewRepositoryFactory(storage.ScyllaConfig{
		Hosts:             cfg.ScyllaHosts,
		Keyspace:          cfg.ScyllaKeyspace,
		Datacenter:        cfg.ScyllaDatacenter,
		ReplicationFactor: cfg.ScyllaReplicationFactor,
		Consistency:       consistency,
		Timeout:           cfg.ScyllaTimeout,
		Username:          cfg.ScyllaUsername,
		Password:          cfg.ScyllaPassword,
	}, db, dialect, cfg.BatchSize, logger)

	coordinator := service.NewPersistenceCoordinator(repos, cfg.RecordDelay, logger)
	generator := service.NewSnapshotGenerator(uint64(time.Now().UnixNano()), nil)

	// Every cycle ends with a write of the same key; its quantity names the cycle.
	snapshots := make([]domain.Snapshot, concurrentCycles)
	for i := range snapshots {
		snapshots[i] = generator.Generate(linesPerCycle, time.Now())
		snapshots[i].Records = append(snapshots[i].Records, domain.InventoryRecord{
			StoreID:     raceStore,
			SKU:         raceSKU,
			Category:    "Fruits & Vegetables",
			Product:     "Apples",
			Quantity:    1000 + i,
			GeneratedAt: time.Now().Truncate(time.Second),
		})
	}

	auditReader := repos.NewSQLAdapter()
	auditBefore, auditErr := auditReader.AdjustmentCount(ctx)
	if auditErr != nil {
		log.Printf("adjustment count unavailable: %v", auditErr)
	}

	var wg sync.WaitGroup
	reports := make([]*domain.CycleReport, concurrentCycles)
	errs := make([]error, concurrentCycles)
	start := time.Now()

	for i := range snapshots {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reports[i], errs[i] = coordinator.Persist(ctx, snapshots[i].Records)
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	succeeded, failed := 0, 0
	for i, report := range reports {
		if errs[i] != nil {
			fmt.Printf("cycle %d error: %v\n", i, errs[i])
		}
		if report != nil {
			succeeded += report.Succeeded()
			failed += report.Failed()
		}
	}

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Concurrent Cycles: %d\n", concurrentCycles)
	fmt.Printf("Records / Cycle:   %d\n", linesPerCycle+1)
	fmt.Printf("Succeeded:         %d\n", succeeded)
	fmt.Printf("Failed:            %d\n", failed)
	fmt.Printf("Duration:          %v\n", elapsed)
	fmt.Println("==========================================")

	// Check the raced key
	wide := repos.NewScyllaAdapter()
	if err := wide.Open(ctx); err != nil {
		log.Fatalf("failed to open scylla: %v", err)
	}
	defer wide.Close(ctx)

	wideLevel, err := wide.Lookup(ctx, raceStore, raceSKU)
	if err != nil {
		log.Fatalf("scylla lookup failed: %v", err)
	}
	relLevel, err := auditReader.StockAnalytics(ctx, raceStore, raceSKU)
	if err != nil {
		log.Fatalf("stock_analytics lookup failed: %v", err)
	}

	if wideLevel == nil || relLevel == nil {
		fmt.Println("FAIL: raced key missing from a store")
		return
	}

	fmt.Printf("Scylla winner:     cycle %d\n", wideLevel.Quantity-1000)
	fmt.Printf("Relational winner: cycle %d\n", relLevel.Quantity-1000)
	if wideLevel.Quantity == relLevel.Quantity {
		fmt.Println("PASS: both stores agree on the last writer")
	} else {
		fmt.Println("DIVERGED: stores picked different last writers")
	}

	if auditErr != nil {
		return
	}
	auditAfter, err := auditReader.AdjustmentCount(ctx)
	if err != nil {
		log.Printf("adjustment count unavailable: %v", err)
		return
	}
	if auditAfter == auditBefore {
		fmt.Println("PASS: bulk ingestion left the adjustment log untouched")
	} else {
		fmt.Printf("FAIL: adjustment log grew from %d to %d\n", auditBefore, auditAfter)
	}
}
