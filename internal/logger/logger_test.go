package logger

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestInit(t *testing.T) {
	logger := Init("test-service", slog.LevelInfo)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestCycleID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	// No cycle ID set
	if cid := CycleID(ctx); cid != "" {
		t.Errorf("expected empty cycle id, got %q", cid)
	}

	// Set and retrieve
	ctx = WithCycleID(ctx, "test-cycle-123")
	if cid := CycleID(ctx); cid != "test-cycle-123" {
		t.Errorf("expected 'test-cycle-123', got %q", cid)
	}
}

func TestGenerateCycleID(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC)
	cid := GenerateCycleID("BTCUSDT-ETHUSDT", ts)

	if cid == "" {
		t.Fatal("expected non-empty cycle id")
	}
	if !strings.HasPrefix(cid, "BTCUSDT-ETHUSDT-") {
		t.Errorf("expected cycle id to start with pair label, got %s", cid)
	}
	// Verify it contains the nano timestamp
	if !strings.Contains(cid, "123456789") {
		t.Errorf("expected cycle id to contain nanoseconds, got %s", cid)
	}
}

func TestLogWithCycle(t *testing.T) {
	ctx := context.Background()

	// No cycle ID
	attrs := LogWithCycle(ctx)
	if attrs != nil {
		t.Errorf("expected nil attrs when no cycle id, got %v", attrs)
	}

	// With cycle ID — returns [slog.Attr] which is a single element
	ctx = WithCycleID(ctx, "abc-123")
	attrs = LogWithCycle(ctx)
	if len(attrs) == 0 {
		t.Fatal("expected non-empty attrs with cycle id set")
	}
}
