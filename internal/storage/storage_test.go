package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/eugenenazirov/coffee-shop/internal/drinks"
)

func newSQLiteStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	store, err := OpenSQLite(context.Background(), SQLiteConfig{
		Path:        filepath.Join(t.TempDir(), "nested", "database.db"),
		WALMode:     true,
		BusyTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("OpenSQLite returned error: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return store
}

func backends(t *testing.T) map[string]func(t *testing.T) Storage {
	t.Helper()

	return map[string]func(t *testing.T) Storage{
		"memory": func(*testing.T) Storage { return NewMemoryStorage() },
		"sqlite": func(t *testing.T) Storage { return newSQLiteStorage(t) },
	}
}

func mocha() drinks.Drink {
	return drinks.Drink{
		Title: "mocha",
		Recipe: drinks.Recipe{
			{Name: "chocolate", Color: "brown", Parts: 1},
			{Name: "espresso", Color: "black", Parts: 2},
		},
	}
}

func TestStorageCRUD(t *testing.T) {
	t.Parallel()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store := open(t)

			created, err := store.Create(ctx, mocha())
			if err != nil {
				t.Fatalf("Create returned error: %v", err)
			}
			if created.ID == 0 {
				t.Fatalf("expected id to be assigned")
			}

			got, err := store.Get(ctx, created.ID)
			if err != nil {
				t.Fatalf("Get returned error: %v", err)
			}
			if got.Title != "mocha" || len(got.Recipe) != 2 || got.Recipe[1].Parts != 2 {
				t.Fatalf("unexpected drink %+v", got)
			}

			got.Title = "  iced mocha "
			got.Recipe = got.Recipe[:1]
			updated, err := store.Update(ctx, got)
			if err != nil {
				t.Fatalf("Update returned error: %v", err)
			}
			if updated.Title != "iced mocha" || len(updated.Recipe) != 1 {
				t.Fatalf("unexpected updated drink %+v", updated)
			}

			list, err := store.List(ctx)
			if err != nil {
				t.Fatalf("List returned error: %v", err)
			}
			if len(list) != 1 || list[0].Title != "iced mocha" {
				t.Fatalf("unexpected list %+v", list)
			}

			if err := store.Delete(ctx, created.ID); err != nil {
				t.Fatalf("Delete returned error: %v", err)
			}
			if _, err := store.Get(ctx, created.ID); !errors.Is(err, drinks.ErrNotFound) {
				t.Fatalf("expected ErrNotFound after delete, got %v", err)
			}
		})
	}
}

func TestStorageErrors(t *testing.T) {
	t.Parallel()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store := open(t)

			if _, err := store.Create(ctx, drinks.Drink{Title: "empty"}); !errors.Is(err, drinks.ErrInvalidDrink) {
				t.Fatalf("expected ErrInvalidDrink, got %v", err)
			}

			first, err := store.Create(ctx, mocha())
			if err != nil {
				t.Fatalf("Create returned error: %v", err)
			}
			if _, err := store.Create(ctx, mocha()); !errors.Is(err, drinks.ErrDuplicateTitle) {
				t.Fatalf("expected ErrDuplicateTitle, got %v", err)
			}

			other := mocha()
			other.Title = "flat white"
			second, err := store.Create(ctx, other)
			if err != nil {
				t.Fatalf("Create returned error: %v", err)
			}
			second.Title = first.Title
			if _, err := store.Update(ctx, second); !errors.Is(err, drinks.ErrDuplicateTitle) {
				t.Fatalf("expected ErrDuplicateTitle on rename, got %v", err)
			}

			missing := mocha()
			missing.ID = 999
			if _, err := store.Update(ctx, missing); !errors.Is(err, drinks.ErrNotFound) {
				t.Fatalf("expected ErrNotFound on update, got %v", err)
			}
			if err := store.Delete(ctx, 999); !errors.Is(err, drinks.ErrNotFound) {
				t.Fatalf("expected ErrNotFound on delete, got %v", err)
			}
		})
	}
}

func TestStorageReset(t *testing.T) {
	t.Parallel()

	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			store := open(t)

			for i := 0; i < 3; i++ {
				d := mocha()
				d.Title = fmt.Sprintf("mocha %d", i)
				if _, err := store.Create(ctx, d); err != nil {
					t.Fatalf("Create returned error: %v", err)
				}
			}

			if err := store.Reset(ctx); err != nil {
				t.Fatalf("Reset returned error: %v", err)
			}

			list, err := store.List(ctx)
			if err != nil {
				t.Fatalf("List returned error: %v", err)
			}
			if len(list) != 1 {
				t.Fatalf("expected only the sample drink, got %+v", list)
			}
			if list[0].ID != 1 || list[0].Title != "water" || list[0].Recipe[0].Color != "blue" {
				t.Fatalf("unexpected sample drink %+v", list[0])
			}

			next, err := store.Create(ctx, mocha())
			if err != nil {
				t.Fatalf("Create returned error: %v", err)
			}
			if next.ID != 2 {
				t.Fatalf("expected id allocation to restart, got %d", next.ID)
			}
		})
	}
}

func TestMemoryStorageReturnsDefensiveCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStorage()
	created, err := store.Create(ctx, mocha())
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	created.Recipe[0].Color = "pink"
	got, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Recipe[0].Color != "brown" {
		t.Fatalf("expected stored recipe to be isolated, got %+v", got.Recipe)
	}
}

func TestMemoryStorageConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(2)

		go func(offset int) {
			defer wg.Done()
			d := mocha()
			d.Title = fmt.Sprintf("mocha %d", offset)
			if _, err := store.Create(ctx, d); err != nil {
				t.Errorf("Create failed: %v", err)
			}
		}(i)

		go func() {
			defer wg.Done()
			if _, err := store.List(ctx); err != nil {
				t.Errorf("List failed: %v", err)
			}
		}()
	}

	wg.Wait()

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 32 {
		t.Fatalf("expected 32 drinks, got %d", len(list))
	}
}

func TestSQLiteHealthCheck(t *testing.T) {
	t.Parallel()

	store := newSQLiteStorage(t)
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
	if filepath.Base(store.Path()) != "database.db" {
		t.Fatalf("unexpected path %s", store.Path())
	}
}

func TestOpenSQLiteRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := OpenSQLite(context.Background(), SQLiteConfig{}); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
