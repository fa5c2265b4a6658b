package session

import (
	"sync"
	"testing"
	"time"

	"insight/internal/dataset"
)

func testDataset() *dataset.Dataset {
	return &dataset.Dataset{
		Columns: []string{"a"},
		Rows:    []dataset.Row{{"a": dataset.Number(1)}},
	}
}

func TestStorePutGet(t *testing.T) {
	t.Parallel()

	s := NewStore(time.Minute)
	defer s.Close()

	cls := dataset.Classification{Numeric: []string{"a"}}
	id := s.Put("data.csv", testDataset(), cls)
	if id == "" {
		t.Fatalf("Put returned empty id")
	}

	sess, ok := s.Get(id)
	if !ok {
		t.Fatalf("Get(%q) not found", id)
	}
	if sess.ID != id || sess.Filename != "data.csv" {
		t.Fatalf("session=%+v", sess)
	}
	if sess.Data.RowCount() != 1 {
		t.Fatalf("session data rows=%d, want 1", sess.Data.RowCount())
	}
	if len(sess.Class.Numeric) != 1 {
		t.Fatalf("session class=%+v", sess.Class)
	}

	// Distinct ids per Put.
	if other := s.Put("other.csv", testDataset(), cls); other == id {
		t.Fatalf("Put reused id %q", id)
	}
	if s.Len() != 2 {
		t.Fatalf("Len=%d, want 2", s.Len())
	}
}

func TestStoreGetUnknown(t *testing.T) {
	t.Parallel()

	s := NewStore(time.Minute)
	defer s.Close()

	if _, ok := s.Get("nope"); ok {
		t.Fatalf("Get(unknown) ok")
	}
}

// TestStoreExpiry drives the clock seam forward past the TTL and
// verifies lazy expiry in Get and removal by sweep.
func TestStoreExpiry(t *testing.T) {
	t.Parallel()

	s := NewStore(10 * time.Minute)
	defer s.Close()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	id := s.Put("data.csv", testDataset(), dataset.Classification{})
	if _, ok := s.Get(id); !ok {
		t.Fatalf("fresh session not found")
	}

	s.now = func() time.Time { return base.Add(11 * time.Minute) }
	if _, ok := s.Get(id); ok {
		t.Fatalf("expired session still returned")
	}
	// Lazy expiry removed the entry.
	if s.Len() != 0 {
		t.Fatalf("Len=%d after lazy expiry, want 0", s.Len())
	}
}

func TestStoreSweep(t *testing.T) {
	t.Parallel()

	s := NewStore(10 * time.Minute)
	defer s.Close()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	s.Put("a.csv", testDataset(), dataset.Classification{})
	s.Put("b.csv", testDataset(), dataset.Classification{})

	s.now = func() time.Time { return base.Add(time.Hour) }
	s.sweep()
	if s.Len() != 0 {
		t.Fatalf("Len=%d after sweep, want 0", s.Len())
	}
}

func TestStoreDelete(t *testing.T) {
	t.Parallel()

	s := NewStore(time.Minute)
	defer s.Close()

	id := s.Put("data.csv", testDataset(), dataset.Classification{})
	s.Delete(id)
	if _, ok := s.Get(id); ok {
		t.Fatalf("deleted session still returned")
	}
	// Unknown id is a no-op.
	s.Delete("nope")
}

func TestStoreDefaultTTL(t *testing.T) {
	t.Parallel()

	s := NewStore(0)
	defer s.Close()
	if s.ttl != DefaultTTL {
		t.Fatalf("ttl=%v, want %v", s.ttl, DefaultTTL)
	}
}

// TestStoreConcurrentAccess exercises the store under parallel puts and
// gets; the race detector verifies locking.
func TestStoreConcurrentAccess(t *testing.T) {
	t.Parallel()

	s := NewStore(time.Minute)
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := s.Put("x.csv", testDataset(), dataset.Classification{})
				if _, ok := s.Get(id); !ok {
					t.Errorf("Get(%q) not found", id)
				}
				s.Delete(id)
			}
		}()
	}
	wg.Wait()

	if s.Len() != 0 {
		t.Fatalf("Len=%d, want 0", s.Len())
	}

	// Double Close is safe.
	s.Close()
	s.Close()
}
