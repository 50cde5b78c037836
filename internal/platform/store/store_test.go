package store

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// runContract exercises the behavior every Store implementation must share.
func runContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if err := s.Get(ctx, "missing/path", &doc{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing path, got %v", err)
	}

	if err := s.Put(ctx, "patients/p1/status", doc{Name: "normal", Count: 1}); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	var got doc
	if err := s.Get(ctx, "patients/p1/status", &got); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Name != "normal" || got.Count != 1 {
		t.Fatalf("unexpected doc: %+v", got)
	}

	// Overwrite.
	if err := s.Put(ctx, "patients/p1/status", doc{Name: "warning", Count: 2}); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	if err := s.Get(ctx, "patients/p1/status", &got); err != nil {
		t.Fatalf("get after overwrite failed: %v", err)
	}
	if got.Name != "warning" {
		t.Fatalf("overwrite not visible: %+v", got)
	}

	// Ordered prefix scan.
	for _, p := range []string{
		"vitals/p1/1700000000003",
		"vitals/p1/1700000000001",
		"vitals/p1/1700000000002",
		"vitals/p2/1700000000001",
	} {
		if err := s.Put(ctx, p, doc{Name: p}); err != nil {
			t.Fatalf("put %s failed: %v", p, err)
		}
	}

	entries, err := s.List(ctx, "vitals/p1/", ListOptions{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, want := range []string{
		"vitals/p1/1700000000001",
		"vitals/p1/1700000000002",
		"vitals/p1/1700000000003",
	} {
		if entries[i].Path != want {
			t.Fatalf("entry %d: expected path %s, got %s", i, want, entries[i].Path)
		}
	}

	// Descending with limit.
	entries, err = s.List(ctx, "vitals/p1/", ListOptions{Limit: 2, Descending: true})
	if err != nil {
		t.Fatalf("descending list failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Path != "vitals/p1/1700000000003" {
		t.Fatalf("expected newest first, got %s", entries[0].Path)
	}

	// Empty prefix scan.
	entries, err = s.List(ctx, "vitals/p9/", ListOptions{})
	if err != nil {
		t.Fatalf("empty list failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}

	// Delete, then delete again.
	if err := s.Delete(ctx, "patients/p1/status"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := s.Get(ctx, "patients/p1/status", &got); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, "patients/p1/status"); err != nil {
		t.Fatalf("double delete should not fail: %v", err)
	}
}

func TestMemoryStoreContract(t *testing.T) {
	runContract(t, NewMemoryStore())
}

func TestRedisStoreContract(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("connect to miniredis: %v", err)
	}
	defer s.Close()
	runContract(t, s)
}

func TestMemoryStoreListSnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.Put(ctx, "events/p1/e1", doc{Name: "checkin"}); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	entries, err := s.List(ctx, "events/p1/", ListOptions{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	// Mutating the snapshot must not affect the stored document.
	entries[0].Value[0] = 'X'
	var got doc
	if err := s.Get(ctx, "events/p1/e1", &got); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Name != "checkin" {
		t.Fatalf("stored document corrupted: %+v", got)
	}
}
