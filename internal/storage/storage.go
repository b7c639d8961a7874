package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/eugenenazirov/coffee-shop/internal/drinks"
)

// Storage persists the drinks menu.
type Storage interface {
	List(ctx context.Context) ([]drinks.Drink, error)
	Get(ctx context.Context, id int64) (drinks.Drink, error)
	Create(ctx context.Context, drink drinks.Drink) (drinks.Drink, error)
	Update(ctx context.Context, drink drinks.Drink) (drinks.Drink, error)
	Delete(ctx context.Context, id int64) error
	// Reset removes every drink and seeds the sample drink.
	Reset(ctx context.Context) error
	Close() error
}

// MemoryStorage keeps drinks in-memory and guards access with a RWMutex.
type MemoryStorage struct {
	mu     sync.RWMutex
	drinks map[int64]drinks.Drink
	nextID int64
}

// NewMemoryStorage returns an empty store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		drinks: make(map[int64]drinks.Drink),
		nextID: 1,
	}
}

// List returns defensive copies of all drinks ordered by id.
func (s *MemoryStorage) List(_ context.Context) ([]drinks.Drink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]drinks.Drink, 0, len(s.drinks))
	for _, d := range s.drinks {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get returns the drink with the given id.
func (s *MemoryStorage) Get(_ context.Context, id int64) (drinks.Drink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.drinks[id]
	if !ok {
		return drinks.Drink{}, drinks.ErrNotFound
	}
	return d.Clone(), nil
}

// Create validates and stores drink under a fresh id.
func (s *MemoryStorage) Create(_ context.Context, drink drinks.Drink) (drinks.Drink, error) {
	if err := drink.Validate(); err != nil {
		return drinks.Drink{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.titleTakenLocked(drink.Title, 0) {
		return drinks.Drink{}, drinks.ErrDuplicateTitle
	}

	stored := drink.Clone()
	stored.Title = strings.TrimSpace(stored.Title)
	stored.ID = s.nextID
	s.nextID++
	s.drinks[stored.ID] = stored
	return stored.Clone(), nil
}

// Update replaces the title and recipe of an existing drink.
func (s *MemoryStorage) Update(_ context.Context, drink drinks.Drink) (drinks.Drink, error) {
	if err := drink.Validate(); err != nil {
		return drinks.Drink{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.drinks[drink.ID]; !ok {
		return drinks.Drink{}, drinks.ErrNotFound
	}
	if s.titleTakenLocked(drink.Title, drink.ID) {
		return drinks.Drink{}, drinks.ErrDuplicateTitle
	}

	stored := drink.Clone()
	stored.Title = strings.TrimSpace(stored.Title)
	s.drinks[stored.ID] = stored
	return stored.Clone(), nil
}

// Delete removes the drink with the given id.
func (s *MemoryStorage) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.drinks[id]; !ok {
		return drinks.ErrNotFound
	}
	delete(s.drinks, id)
	return nil
}

// Reset drops all drinks and seeds drinks.Sample with id 1.
func (s *MemoryStorage) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sample := drinks.Sample()
	sample.ID = 1
	s.drinks = map[int64]drinks.Drink{sample.ID: sample}
	s.nextID = 2
	return nil
}

// Close is a no-op.
func (s *MemoryStorage) Close() error {
	return nil
}

func (s *MemoryStorage) titleTakenLocked(title string, exceptID int64) bool {
	title = strings.TrimSpace(title)
	for id, d := range s.drinks {
		if id != exceptID && strings.TrimSpace(d.Title) == title {
			return true
		}
	}
	return false
}
