package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"bilancio/internal/kv"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository_GetSet(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	if _, err := repo.Get(ctx, "alice", "budget-2024-01"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := repo.Set(ctx, "alice", "budget-2024-01", []byte(`{"sources":[]}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := repo.Set(ctx, "alice", "budget-2024-01", []byte(`{"sources":[{"name":"income","amount":"10"}]}`)); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}

	got, err := repo.Get(ctx, "alice", "budget-2024-01")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `{"sources":[{"name":"income","amount":"10"}]}` {
		t.Fatalf("unexpected blob: %s", got)
	}

	b, err := repo.queries.GetBlob(ctx, "alice", "budget-2024-01")
	if err != nil || b.Version != 2 {
		t.Fatalf("expected version 2 after overwrite, got %d (%v)", b.Version, err)
	}

	if err := repo.Set(ctx, " ", "k", []byte(`{}`)); err == nil {
		t.Fatalf("expected error for blank user")
	}
}

func TestSQLiteRepository_ListByPrefix(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	fixtures := []struct{ user, key, blob string }{
		{"alice", "budget-2024-01", `1`},
		{"alice", "budget-2024-02", `2`},
		{"alice", "budget_x-2024-01", `3`},
		{"alice", "pension-2024-01", `4`},
		{"bob", "budget-2024-01", `5`},
	}
	for _, f := range fixtures {
		if err := repo.Set(ctx, f.user, f.key, []byte(f.blob)); err != nil {
			t.Fatalf("Set %s/%s: %v", f.user, f.key, err)
		}
	}

	got, err := repo.ListByPrefix(ctx, "alice", "budget-")
	if err != nil {
		t.Fatalf("ListByPrefix: %v", err)
	}
	if len(got) != 2 || string(got["budget-2024-01"]) != "1" || string(got["budget-2024-02"]) != "2" {
		t.Fatalf("unexpected list: %v", got)
	}

	// '_' must not act as a wildcard.
	got, _ = repo.ListByPrefix(ctx, "alice", "budget_")
	if len(got) != 1 {
		t.Fatalf("expected literal prefix match, got %v", got)
	}

	users, err := repo.Users(ctx)
	if err != nil || len(users) != 2 || users[0] != "alice" || users[1] != "bob" {
		t.Fatalf("unexpected users: %v %v", users, err)
	}
}

func TestSQLiteRepository_MigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "again.db")
	for i := 0; i < 2; i++ {
		repo, err := NewSQLiteRepository(path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		repo.Close()
	}
}

func TestSQLiteRepository_SetIfVersion(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	const key = "budget-2024-03"

	v1, err := repo.SetIfVersion(ctx, "alice", key, []byte(`{"sources":[]}`), 0)
	if err != nil || v1 != 1 {
		t.Fatalf("create: version %d, err %v", v1, err)
	}
	if _, err := repo.SetIfVersion(ctx, "alice", key, []byte(`{}`), 0); !errors.Is(err, kv.ErrConflict) {
		t.Fatalf("expected ErrConflict on second create, got %v", err)
	}

	v2, err := repo.SetIfVersion(ctx, "alice", key, []byte(`{"items":{}}`), v1)
	if err != nil || v2 != 2 {
		t.Fatalf("update: version %d, err %v", v2, err)
	}
	if _, err := repo.SetIfVersion(ctx, "alice", key, []byte(`{}`), v1); !errors.Is(err, kv.ErrConflict) {
		t.Fatalf("expected ErrConflict on stale update, got %v", err)
	}

	if err := repo.Set(ctx, "alice", key, []byte(`{"sources":null}`)); err != nil {
		t.Fatal(err)
	}
	blob, version, err := repo.GetVersioned(ctx, "alice", key)
	if err != nil || version != 3 || string(blob) != `{"sources":null}` {
		t.Fatalf("GetVersioned = %s %d %v", blob, version, err)
	}
}
