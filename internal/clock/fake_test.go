package clock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFakeSleepAdvancesAndRecords(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fake := NewFake(start)
	if err := Sleep(context.Background(), fake, 500*time.Millisecond); err != nil {
		t.Fatalf("sleep: %v", err)
	}
	if err := Sleep(context.Background(), fake, 2*time.Second); err != nil {
		t.Fatalf("sleep: %v", err)
	}
	if got := fake.Now().Sub(start); got != 2500*time.Millisecond {
		t.Fatalf("fake time advanced %v, want 2.5s", got)
	}
	sleeps := fake.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 500*time.Millisecond || sleeps[1] != 2*time.Second {
		t.Fatalf("unexpected sleeps %v", sleeps)
	}
}

func TestSleepHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, NewFake(time.Now()), 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFakeTickerDeliversOnlyWhenTicked(t *testing.T) {
	fake := NewFake(time.Now())
	ticker := fake.NewTicker(time.Second)
	select {
	case <-ticker.C:
		t.Fatalf("tick before Tick()")
	default:
	}
	fake.Tick()
	select {
	case <-ticker.C:
	default:
		t.Fatalf("expected tick")
	}
	ticker.Stop()
	if fake.ActiveTickers() != 0 {
		t.Fatalf("ticker still registered after Stop")
	}
}
