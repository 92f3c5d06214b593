package pebblestore

import (
	"context"
	"errors"
	"testing"
	"time"
)

type testMetrics struct {
	read         int
	batchCommits int
	batchBytes   int
}

func (m *testMetrics) ObserveRead(d time.Duration, bytes int) { m.read += bytes }
func (m *testMetrics) ObserveBatchCommit(d time.Duration, bytes int) {
	m.batchCommits++
	m.batchBytes += bytes
}

func newTestDB(t *testing.T) (*DB, *testMetrics) {
	t.Helper()
	metrics := &testMetrics{}
	db, err := Open(Options{
		DataDir:       t.TempDir(),
		Fsync:         FsyncModeInterval,
		FsyncInterval: 2 * time.Millisecond,
		Metrics:       metrics,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, metrics
}

func TestSetGet(t *testing.T) {
	db, metrics := newTestDB(t)
	ctx := context.Background()

	if err := db.Set(ctx, []byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := db.Get([]byte("k1"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "v1" {
		t.Fatalf("got %q want %q", got, "v1")
	}
	if metrics.read == 0 {
		t.Fatalf("expected read metrics to record bytes")
	}
	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBatchCommitMetrics(t *testing.T) {
	db, metrics := newTestDB(t)

	b := db.NewBatch()
	if err := b.Set([]byte("a"), []byte("1"), nil); err != nil {
		t.Fatalf("batch set: %v", err)
	}
	if err := b.Set([]byte("b"), []byte("2"), nil); err != nil {
		t.Fatalf("batch set: %v", err)
	}
	if err := db.CommitBatch(context.Background(), b); err != nil {
		t.Fatalf("commit: %v", err)
	}
	b.Close()

	if metrics.batchCommits != 1 {
		t.Fatalf("want 1 batch commit, got %d", metrics.batchCommits)
	}
	if metrics.batchBytes <= 0 {
		t.Fatalf("expected positive batch bytes")
	}
}

func TestScanAndDeletePrefix(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()
	for _, k := range []string{"seg/a/m", "seg/a/x", "seg/b/m", "other"} {
		if err := db.Set(ctx, []byte(k), []byte(k)); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}

	var keys []string
	if err := db.ScanPrefix([]byte("seg/"), func(k, _ []byte) bool {
		keys = append(keys, string(k))
		return true
	}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(keys) != 3 || keys[0] != "seg/a/m" || keys[2] != "seg/b/m" {
		t.Fatalf("unexpected keys %v", keys)
	}

	if err := db.DeletePrefix(ctx, []byte("seg/a/")); err != nil {
		t.Fatalf("delete prefix: %v", err)
	}
	if _, err := db.Get([]byte("seg/a/m")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected seg/a/m removed, got %v", err)
	}
	if _, err := db.Get([]byte("seg/b/m")); err != nil {
		t.Fatalf("seg/b/m should survive: %v", err)
	}
	if err := db.CompactPrefix([]byte("seg/a/")); err != nil {
		t.Fatalf("compact: %v", err)
	}
	if _, err := db.Get([]byte("seg/b/m")); err != nil {
		t.Fatalf("seg/b/m should survive compaction: %v", err)
	}
}

func TestCommitHonorsCancelledContext(t *testing.T) {
	db, _ := newTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := db.Set(ctx, []byte("k"), []byte("v")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestParseFsyncMode(t *testing.T) {
	if m, err := ParseFsyncMode("interval"); err != nil || m != FsyncModeInterval {
		t.Fatalf("interval: %v %v", m, err)
	}
	if _, err := ParseFsyncMode("sometimes"); err == nil {
		t.Fatalf("expected error")
	}
}
