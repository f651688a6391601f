package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"statarb-systemv1/internal/model"
)

func openTestStore(t *testing.T) (*Writer, *Reader) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ticks.db")
	w, err := New(WriterConfig{DBPath: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return w, r
}

// The replayer resumes from the newest stored timestamp: everything at or
// before it is already persisted, only strictly newer ticks come back.
func TestLastTimestamp_ResumePoint(t *testing.T) {
	w, r := openTestStore(t)
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	var ticks []model.Tick
	for i := 0; i < 5; i++ {
		ticks = append(ticks, model.Tick{
			Symbol: "BTCUSDT",
			TS:     base.Add(time.Duration(i) * time.Second),
			Price:  100 + float64(i),
			Qty:    1,
		})
	}
	if err := w.insertBatch(ticks); err != nil {
		t.Fatalf("insertBatch: %v", err)
	}

	last, err := w.LastTimestamp("BTCUSDT")
	if err != nil {
		t.Fatalf("LastTimestamp: %v", err)
	}
	if want := base.Add(4 * time.Second).UnixMilli(); last != want {
		t.Fatalf("last timestamp %d, want %d", last, want)
	}

	got, err := r.ReadTicksAfter("BTCUSDT", last)
	if err != nil {
		t.Fatalf("ReadTicksAfter: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected nothing past the resume point, got %d ticks", len(got))
	}

	newer := model.Tick{Symbol: "BTCUSDT", TS: base.Add(10 * time.Second), Price: 110, Qty: 2}
	if err := w.insertBatch([]model.Tick{newer}); err != nil {
		t.Fatalf("insertBatch: %v", err)
	}
	got, err = r.ReadTicksAfter("BTCUSDT", last)
	if err != nil {
		t.Fatalf("ReadTicksAfter: %v", err)
	}
	if len(got) != 1 || !got[0].TS.Equal(newer.TS) {
		t.Fatalf("expected only the newer tick, got %v", got)
	}
}

func TestLastTimestamp_EmptyStore(t *testing.T) {
	w, _ := openTestStore(t)
	ts, err := w.LastTimestamp("ETHUSDT")
	if err != nil {
		t.Fatalf("LastTimestamp: %v", err)
	}
	if ts != 0 {
		t.Fatalf("empty store: got %d, want 0", ts)
	}
}

func TestReadLatestTicks_AscendingWindow(t *testing.T) {
	w, r := openTestStore(t)
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	var ticks []model.Tick
	for i := 0; i < 10; i++ {
		ticks = append(ticks, model.Tick{
			Symbol: "ETHUSDT",
			TS:     base.Add(time.Duration(i) * time.Second),
			Price:  2000 + float64(i),
			Qty:    1,
		})
	}
	if err := w.insertBatch(ticks); err != nil {
		t.Fatalf("insertBatch: %v", err)
	}

	got, err := r.ReadLatestTicks("ETHUSDT", 4)
	if err != nil {
		t.Fatalf("ReadLatestTicks: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 ticks, got %d", len(got))
	}
	// Newest 4 rows, chronological order.
	if !got[0].TS.Equal(base.Add(6 * time.Second)) {
		t.Errorf("window starts at %v, want %v", got[0].TS, base.Add(6*time.Second))
	}
	for i := 1; i < len(got); i++ {
		if !got[i].TS.After(got[i-1].TS) {
			t.Fatalf("ticks out of order at %d", i)
		}
	}
}
