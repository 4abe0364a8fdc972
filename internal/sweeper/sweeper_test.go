package sweeper

import (
	"testing"
	"time"

	"github.com/ecsf-gov/sage/internal/store"
)

func TestSweepNow(t *testing.T) {
	st := store.NewInMemoryStore(store.WithContextTTL(time.Hour))
	if err := st.UpdateContext("c1", map[string]any{"turnCount": 1}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	s := New(st, time.Hour, "")
	removed, err := s.SweepNow()
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("fresh context must survive, removed %d", removed)
	}

	time.Sleep(5 * time.Millisecond)
	s = New(st, time.Nanosecond, "")
	removed, err = s.SweepNow()
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("stale context should be removed, removed %d", removed)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := New(store.NewInMemoryStore(), 0, "not a schedule")
	if err := s.Start(); err == nil {
		t.Error("expected error for invalid schedule")
		s.Stop()
	}
}

func TestStartAndStop(t *testing.T) {
	s := New(store.NewInMemoryStore(), 0, "")
	if err := s.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	s.Stop()
}

func TestDefaults(t *testing.T) {
	s := New(store.NewInMemoryStore(), 0, "")
	if s.maxAge != store.DefaultContextTTL {
		t.Errorf("expected default TTL, got %v", s.maxAge)
	}
	if s.schedule != DefaultSchedule {
		t.Errorf("expected default schedule, got %q", s.schedule)
	}
}
