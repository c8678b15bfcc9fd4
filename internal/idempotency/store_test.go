package idempotency

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "idem.db"), time.Hour)
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBeginCompleteReplay(t *testing.T) {
	s := newTestStore(t)

	_, started, err := s.Begin("k1", "fp1")
	if err != nil || !started {
		t.Fatalf("expected first Begin to start, got started=%v err=%v", started, err)
	}
	if _, _, err := s.Begin("k1", "fp1"); !errors.Is(err, ErrInProgress) {
		t.Fatalf("expected ErrInProgress while pending, got %v", err)
	}

	if err := s.Complete("k1", 200, "application/json", []byte(`{"orderId":"order_1"}`)); err != nil {
		t.Fatal(err)
	}

	rec, started, err := s.Begin("k1", "fp1")
	if err != nil {
		t.Fatal(err)
	}
	if started {
		t.Fatal("expected replay, not a new start")
	}
	if rec.Status != 200 || string(rec.Body) != `{"orderId":"order_1"}` {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestBeginFingerprintMismatch(t *testing.T) {
	s := newTestStore(t)
	if _, _, err := s.Begin("k1", "fp1"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Begin("k1", "fp2"); !errors.Is(err, ErrFingerprintMismatch) {
		t.Fatalf("expected ErrFingerprintMismatch, got %v", err)
	}
}

func TestReleaseAllowsRetry(t *testing.T) {
	s := newTestStore(t)
	if _, _, err := s.Begin("k1", "fp1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Release("k1"); err != nil {
		t.Fatal(err)
	}
	if _, started, err := s.Begin("k1", "fp1"); err != nil || !started {
		t.Fatalf("expected restart after release, got started=%v err=%v", started, err)
	}
}

func TestExpiryAndPurge(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	s.now = func() time.Time { return now }

	if _, _, err := s.Begin("done", "fp"); err != nil {
		t.Fatal(err)
	}
	if err := s.Complete("done", 201, "application/json", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Begin("stuck", "fp"); err != nil {
		t.Fatal(err)
	}

	// stale pending claims free up after a minute
	s.now = func() time.Time { return now.Add(2 * time.Minute) }
	if _, started, err := s.Begin("stuck", "fp"); err != nil || !started {
		t.Fatalf("expected stale pending key to restart, got started=%v err=%v", started, err)
	}

	s.now = func() time.Time { return now.Add(2 * time.Hour) }
	n, err := s.Purge()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 purged, got %d", n)
	}
}
