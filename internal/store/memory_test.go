package store

import (
	"context"
	"testing"
)

func TestMemoryPutAndGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.Put(ctx, "a", []byte("1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, err := m.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(v) != "1" {
		t.Fatalf("expected %q, got %q", "1", v)
	}
}

func TestMemoryGetMissingReturnsErrNotFound(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if _, err := m.Get(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryPutIfAbsentRejectsExistingKey(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.PutIfAbsent(ctx, "a", []byte("1")); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := m.PutIfAbsent(ctx, "a", []byte("2")); err != ErrConflict {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestMemoryListPrefixReturnsSortedMatches(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Put(ctx, "tenant/1/a", []byte("x"))
	m.Put(ctx, "tenant/1/b", []byte("y"))
	m.Put(ctx, "tenant/2/a", []byte("z"))

	entries, err := m.ListPrefix(ctx, "tenant/1/", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Key != "tenant/1/a" || entries[1].Key != "tenant/1/b" {
		t.Fatalf("expected sorted keys, got %+v", entries)
	}
}

func TestMemoryListPrefixRespectsLimit(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Put(ctx, "a", []byte("1"))
	m.Put(ctx, "b", []byte("2"))
	m.Put(ctx, "c", []byte("3"))

	entries, err := m.ListPrefix(ctx, "", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries under limit, got %d", len(entries))
	}
}

func TestMemoryDeleteRemovesKey(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Put(ctx, "a", []byte("1"))
	if err := m.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.Get(ctx, "a"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
