package sync

import (
	"context"
	"testing"
	"time"

	"github.com/partshub/runtime/internal/config"
)

func testSyncConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Sync.AS400DSN = "TESTDSN"
	cfg.Sync.FileMakerURL = "TESTFM"
	cfg.Sync.FlatFileDir = "/tmp/sync-fixtures"
	cfg.Sync.ScheduleCron = "0 0 * * * *"
	cfg.Sync.BatchSize = 500
	return cfg
}

func TestService_StartReadyStop(t *testing.T) {
	db, _ := newMockDB(t)
	store := newFakeJobStore()

	svc, err := NewService(testSyncConfig(), db, store, testLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if svc.Name() != "sync-engine" {
		t.Errorf("expected service name sync-engine, got %s", svc.Name())
	}

	if err := svc.Ready(context.Background()); err == nil {
		t.Fatal("expected not-ready before Start")
	}

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Ready(context.Background()); err != nil {
		t.Fatalf("expected ready after start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
