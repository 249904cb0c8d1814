package partition

import (
	"context"
	"os"
	"testing"

	"github.com/arkilian/abgen/internal/config"
)

func TestConcurrentWriter_BuildAll(t *testing.T) {
	tmpDir := t.TempDir()
	router, _ := NewRouter(config.StrategyGroup)
	batches := router.RouteRows(testRows())

	writer := NewConcurrentWriter(NewBuilder(tmpDir, RunID(42, 42, 3)), 2)
	infos, err := writer.BuildAll(context.Background(), batches)
	if err != nil {
		t.Fatalf("BuildAll failed: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 partitions, got %d", len(infos))
	}

	total := int64(0)
	for i, info := range infos {
		if info.PartitionKey != batches[i].Key {
			t.Errorf("result %d: expected key %s, got %s", i, batches[i].Key, info.PartitionKey)
		}
		if _, err := os.Stat(info.MetadataPath); err != nil {
			t.Errorf("missing sidecar for %s: %v", info.PartitionID, err)
		}
		total += info.RowCount
	}
	if total != 3 {
		t.Errorf("expected 3 rows across partitions, got %d", total)
	}
}

func TestConcurrentWriter_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	router, _ := NewRouter(config.StrategyDay)
	writer := NewConcurrentWriter(NewBuilder(t.TempDir(), "run"), 1)
	if _, err := writer.BuildAll(ctx, router.RouteRows(testRows())); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestRunID(t *testing.T) {
	a := RunID(42, 42, 1000)
	if a != RunID(42, 42, 1000) {
		t.Error("RunID should be deterministic")
	}
	if a == RunID(42, 43, 1000) || a == RunID(42, 42, 1001) {
		t.Error("RunID should depend on every input")
	}
	if len(a) != 36 {
		t.Errorf("expected UUID string, got %s", a)
	}
}
