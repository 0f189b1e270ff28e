package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"factory_events/internal/models"
	"factory_events/internal/repository"
	"factory_events/internal/service"
)

// Synthetic ingestion benchmark against a throwaway SQLite file: one warm-up
// run plus three timed runs of 1000 events. Reusing the same event ids across
// runs also exercises the dedup path under load.

const (
	warmupEvents = 100
	runEvents    = 1000
	timedRuns    = 3

	targetBatchDuration = time.Second
)

func main() {
	dir, err := os.MkdirTemp("", "factory-events-bench-*")
	if err != nil {
		fmt.Fprintln(os.Stderr, "create temp dir:", err)
		os.Exit(1)
	}
	defer os.RemoveAll(dir)

	db, err := repository.InitDB(filepath.Join(dir, "bench.db"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "init sqlite:", err)
		os.Exit(1)
	}
	defer db.Close()

	repos := repository.NewRepository(db)
	ingestor := service.NewIngestService(repos.Events, nil)
	ctx := context.Background()

	fmt.Println("=== Factory Event System Performance Benchmark ===")
	fmt.Println()

	fmt.Println("Warming up...")
	runBenchmark(ctx, ingestor, warmupEvents, false)

	fmt.Printf("\n=== Running Benchmark: %d Events ===\n", runEvents)
	for run := 1; run <= timedRuns; run++ {
		fmt.Printf("\nRun %d:\n", run)
		runBenchmark(ctx, ingestor, runEvents, true)
	}

	fmt.Println("\n=== Benchmark Complete ===")
}

func runBenchmark(ctx context.Context, ingestor service.Ingestor, eventCount int, printResults bool) {
	batch := generateEvents(eventCount)

	start := time.Now()
	res, err := ingestor.IngestBatch(ctx, batch)
	elapsed := time.Since(start)

	if err != nil {
		fmt.Fprintln(os.Stderr, "ingest failed:", err)
		os.Exit(1)
	}

	if printResults {
		verdict := "PASS"
		if elapsed >= targetBatchDuration {
			verdict = "FAIL"
		}
		fmt.Printf("  Events: %d\n", eventCount)
		fmt.Printf("  Duration: %d ms\n", elapsed.Milliseconds())
		fmt.Printf("  Throughput: %.1f events/sec\n", float64(eventCount)/elapsed.Seconds())
		fmt.Printf("  Accepted: %d  Deduped: %d  Updated: %d  Rejected: %d\n",
			res.Accepted, res.Deduped, res.Updated, res.Rejected)
		fmt.Printf("  Result: %s (Target: < %v)\n", verdict, targetBatchDuration)
	}
}

func generateEvents(count int) []models.RawEvent {
	events := make([]models.RawEvent, 0, count)
	baseTime := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < count; i++ {
		eventTime := baseTime.Add(time.Duration(i) * time.Second)
		duration := int64(1000 + i%5000)
		defects := i % 20

		events = append(events, models.RawEvent{
			EventID:     fmt.Sprintf("E-BENCH-%d", i),
			EventTime:   &eventTime,
			MachineID:   fmt.Sprintf("M-%d", i%10),
			DurationMs:  &duration,
			DefectCount: &defects,
			LineID:      fmt.Sprintf("L-%d", i%5),
			FactoryID:   "F-01",
		})
	}
	return events
}
