package pairs

import (
	"errors"
	"testing"
	"time"

	"statarb-systemv1/internal/model"
)

var frameBase = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func tick(sym string, offset time.Duration, price float64) model.Tick {
	return model.Tick{Symbol: sym, TS: frameBase.Add(offset), Price: price, Qty: 1}
}

func TestBuildPaired_AlignsOnNearestPreceding(t *testing.T) {
	b := NewFrameBuilder(FrameConfig{Tolerance: 2 * time.Second})

	a := []model.Tick{
		tick("A", 0, 100),
		tick("A", 2*time.Second, 101),
	}
	bs := []model.Tick{
		tick("B", 1*time.Second, 200),
		tick("B", 3*time.Second, 201),
	}

	series, err := b.BuildPaired(a, bs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Axis = {0s, 1s, 2s, 3s}. At 0s there is no B tick yet, so that point
	// is excluded. The rest join on the nearest preceding tick.
	if len(series) != 3 {
		t.Fatalf("expected 3 paired bars, got %d", len(series))
	}
	want := []struct {
		off    time.Duration
		pa, pb float64
	}{
		{1 * time.Second, 100, 200},
		{2 * time.Second, 101, 200},
		{3 * time.Second, 101, 201},
	}
	for i, w := range want {
		got := series[i]
		if !got.TS.Equal(frameBase.Add(w.off)) {
			t.Errorf("bar %d: ts=%v want offset %v", i, got.TS, w.off)
		}
		if got.PriceA != w.pa || got.PriceB != w.pb {
			t.Errorf("bar %d: got (%v,%v) want (%v,%v)", i, got.PriceA, got.PriceB, w.pa, w.pb)
		}
	}
}

func TestBuildPaired_ToleranceExcludesStaleJoin(t *testing.T) {
	b := NewFrameBuilder(FrameConfig{Tolerance: 1 * time.Second})

	a := []model.Tick{tick("A", 0, 100), tick("A", 10*time.Second, 101)}
	bs := []model.Tick{tick("B", 0, 200)}

	series, err := b.BuildPaired(a, bs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// At t=10s the only B tick is 10s old, beyond tolerance — excluded,
	// not forward-filled.
	if len(series) != 1 {
		t.Fatalf("expected 1 paired bar, got %d", len(series))
	}
	if !series[0].TS.Equal(frameBase) {
		t.Errorf("expected bar at base ts, got %v", series[0].TS)
	}
}

func TestBuildPaired_DropsMalformedTicks(t *testing.T) {
	b := NewFrameBuilder(FrameConfig{Tolerance: time.Second})
	dropped := 0
	b.OnMalformedTick = func() { dropped++ }

	a := []model.Tick{
		tick("A", 0, 100),
		tick("A", time.Second, -5), // non-positive price
		tick("A", 2*time.Second, 102),
	}
	bs := []model.Tick{
		tick("B", 0, 200),
		tick("B", 2*time.Second, 202),
	}

	series, err := b.BuildPaired(a, bs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dropped != 1 {
		t.Errorf("expected 1 dropped tick, got %d", dropped)
	}
	for _, bar := range series {
		if bar.PriceA <= 0 {
			t.Errorf("malformed price leaked into output: %+v", bar)
		}
	}
}

func TestBuildPaired_DropsOutOfOrderTicks(t *testing.T) {
	b := NewFrameBuilder(FrameConfig{Tolerance: time.Second})
	dropped := 0
	b.OnMalformedTick = func() { dropped++ }

	a := []model.Tick{
		tick("A", 2*time.Second, 100),
		tick("A", 0, 99), // behind the last accepted tick — dropped
		tick("A", 3*time.Second, 101),
	}
	bs := []model.Tick{
		tick("B", 2*time.Second, 200),
		tick("B", 3*time.Second, 201),
	}

	series, err := b.BuildPaired(a, bs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dropped != 1 {
		t.Errorf("expected 1 dropped tick, got %d", dropped)
	}
	if len(series) != 2 {
		t.Fatalf("expected 2 paired bars, got %d", len(series))
	}
}

func TestBuildPaired_DuplicateLastWriteWins(t *testing.T) {
	b := NewFrameBuilder(FrameConfig{Tolerance: time.Second})

	a := []model.Tick{
		tick("A", 0, 100),
		tick("A", 0, 105), // same timestamp, later arrival wins
	}
	bs := []model.Tick{tick("B", 0, 200)}

	series, err := b.BuildPaired(a, bs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(series) != 1 || series[0].PriceA != 105 {
		t.Fatalf("expected last-write-wins price 105, got %+v", series)
	}
}

func TestBuildPaired_DuplicateStrictMode(t *testing.T) {
	b := NewFrameBuilder(FrameConfig{Tolerance: time.Second, StrictDuplicates: true})

	a := []model.Tick{tick("A", 0, 100), tick("A", 0, 105)}
	bs := []model.Tick{tick("B", 0, 200)}

	_, err := b.BuildPaired(a, bs)
	if !errors.Is(err, ErrDuplicateTick) {
		t.Fatalf("expected ErrDuplicateTick, got %v", err)
	}
}
