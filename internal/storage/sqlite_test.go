package storage_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/monero-ecosystem/monerohealth/internal/health"
	"github.com/monero-ecosystem/monerohealth/internal/storage"
)

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening in-memory DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func makeResult(status health.Status) health.CombinedResult {
	res := health.CombinedResult{
		Status: status,
		Host:   "127.0.0.1",
		LastBlock: health.LastBlockResult{
			Status:   health.StatusOK,
			Hash:     "abc123",
			BlockAge: health.BlockAge{Age: 30 * time.Second, Known: true},
			Host:     "127.0.0.1:18081",
		},
		Daemon: health.DaemonResult{
			Status: status,
			Host:   "127.0.0.1",
			RPC:    health.RPCResult{Status: status, Version: 16, Host: "127.0.0.1:18081"},
			P2P:    health.P2PResult{Status: health.StatusOK, Host: "127.0.0.1:18080"},
		},
	}
	if status != health.StatusOK {
		res.Daemon.RPC.Error = &health.ErrorInfo{Error: "connection refused", Message: "Cannot determine status."}
	}
	return res
}

func TestOpen_CreatesSchema(t *testing.T) {
	db := openTestDB(t)
	// If we can insert, schema is correct.
	if _, err := db.InsertRun(context.Background(), makeResult(health.StatusOK), time.Now()); err != nil {
		t.Fatalf("InsertRun after Open: %v", err)
	}
}

func TestInsertRun_And_Latest(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	checkedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	inserted, err := db.InsertRun(ctx, makeResult(health.StatusUnknown), checkedAt)
	if err != nil {
		t.Fatalf("InsertRun: %v", err)
	}
	if inserted.ID == 0 {
		t.Error("expected an id")
	}
	if len(inserted.RunID) != 36 {
		t.Errorf("expected a uuid run id, got %q", inserted.RunID)
	}

	got, err := db.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got == nil {
		t.Fatal("expected a run, got nil")
	}
	if got.RunID != inserted.RunID {
		t.Errorf("expected run id %q, got %q", inserted.RunID, got.RunID)
	}
	if got.Host != "127.0.0.1" {
		t.Errorf("expected host 127.0.0.1, got %q", got.Host)
	}
	if got.Status != health.StatusUnknown {
		t.Errorf("expected status UNKNOWN, got %q", got.Status)
	}
	if got.LastBlockStatus != health.StatusOK || got.RPCStatus != health.StatusUnknown || got.P2PStatus != health.StatusOK {
		t.Errorf("unexpected sub statuses %+v", got)
	}
	if got.BlockHash != "abc123" {
		t.Errorf("expected block hash abc123, got %q", got.BlockHash)
	}
	if !strings.Contains(got.Error, "monerod.rpc: Cannot determine status.") {
		t.Errorf("unexpected error column %q", got.Error)
	}
	if !got.CheckedAt.Equal(checkedAt) {
		t.Errorf("expected checked_at %v, got %v", checkedAt, got.CheckedAt)
	}
	if got.Result.Daemon.RPC.Version != 16 {
		t.Errorf("payload not decoded: %+v", got.Result.Daemon.RPC)
	}
	if got.Result.LastBlock.BlockAge != (health.BlockAge{Age: 30 * time.Second, Known: true}) {
		t.Errorf("unexpected decoded block age %v", got.Result.LastBlock.BlockAge)
	}
}

func TestInsertRun_SentinelHashStoredEmpty(t *testing.T) {
	db := openTestDB(t)
	res := makeResult(health.StatusUnknown)
	res.LastBlock.Hash = health.Sentinel

	run, err := db.InsertRun(context.Background(), res, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if run.BlockHash != "" {
		t.Errorf("expected empty hash, got %q", run.BlockHash)
	}
}

func TestLatest_ReturnsNilWhenEmpty(t *testing.T) {
	db := openTestDB(t)
	got, err := db.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for empty db, got %+v", got)
	}
}

func TestLatest_ReturnsMostRecent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.InsertRun(ctx, makeResult(health.StatusError), time.Now().Add(-2*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertRun(ctx, makeResult(health.StatusOK), time.Now().Add(-1*time.Minute)); err != nil {
		t.Fatal(err)
	}

	got, err := db.Latest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != health.StatusOK {
		t.Errorf("expected latest to be OK, got %q", got.Status)
	}
}

func TestHistory_Pagination(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 10; i++ {
		if _, err := db.InsertRun(ctx, makeResult(health.StatusOK), base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatal(err)
		}
	}

	runs, total, err := db.History(ctx, 5, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if total != 10 {
		t.Errorf("expected total 10, got %d", total)
	}
	if len(runs) != 5 {
		t.Errorf("expected 5 results, got %d", len(runs))
	}
	if !runs[0].CheckedAt.After(runs[4].CheckedAt) {
		t.Error("expected newest first")
	}

	// Second page
	runs2, total2, err := db.History(ctx, 5, 5)
	if err != nil {
		t.Fatal(err)
	}
	if total2 != 10 {
		t.Errorf("expected total 10 on page 2, got %d", total2)
	}
	if len(runs2) != 5 {
		t.Errorf("expected 5 results on page 2, got %d", len(runs2))
	}
	if !runs[4].CheckedAt.After(runs2[0].CheckedAt) {
		t.Error("page 2 should be older than page 1")
	}
}

func TestHistory_EmptyDB(t *testing.T) {
	db := openTestDB(t)
	runs, total, err := db.History(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if total != 0 {
		t.Errorf("expected total 0, got %d", total)
	}
	if len(runs) != 0 {
		t.Errorf("expected 0 results, got %d", len(runs))
	}
}

func TestUptimePercent_AllOK(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := db.InsertRun(ctx, makeResult(health.StatusOK), time.Now()); err != nil {
			t.Fatal(err)
		}
	}

	pct, err := db.UptimePercent(ctx, 10)
	if err != nil {
		t.Fatalf("UptimePercent: %v", err)
	}
	if pct != 100.0 {
		t.Errorf("expected 100%%, got %.2f", pct)
	}
}

func TestUptimePercent_HalfOK(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := db.InsertRun(ctx, makeResult(health.StatusOK), time.Now()); err != nil {
			t.Fatal(err)
		}
		if _, err := db.InsertRun(ctx, makeResult(health.StatusUnknown), time.Now()); err != nil {
			t.Fatal(err)
		}
	}

	pct, err := db.UptimePercent(ctx, 10)
	if err != nil {
		t.Fatalf("UptimePercent: %v", err)
	}
	if pct != 50.0 {
		t.Errorf("expected 50%%, got %.2f", pct)
	}
}

func TestUptimePercent_EmptyDB(t *testing.T) {
	db := openTestDB(t)
	pct, err := db.UptimePercent(context.Background(), 100)
	if err != nil {
		t.Fatalf("UptimePercent: %v", err)
	}
	if pct != 0.0 {
		t.Errorf("expected 0%%, got %.2f", pct)
	}
}

func TestPrune(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for _, age := range []time.Duration{3 * time.Hour, 2 * time.Hour, time.Minute} {
		if _, err := db.InsertRun(ctx, makeResult(health.StatusOK), now.Add(-age)); err != nil {
			t.Fatal(err)
		}
	}

	n, err := db.Prune(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 pruned runs, got %d", n)
	}
	_, total, err := db.History(ctx, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Errorf("expected 1 remaining run, got %d", total)
	}
}

func TestClose(t *testing.T) {
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestPing(t *testing.T) {
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping on open DB: %v", err)
	}
	db.Close()
	if err := db.Ping(context.Background()); err == nil {
		t.Error("expected Ping to fail after Close")
	}
}
