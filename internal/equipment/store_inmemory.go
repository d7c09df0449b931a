package equipment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is an in-memory implementation of Store for development and testing.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record // name -> record
	byID    map[string]string  // id -> name
	now     func() time.Time
}

// NewInMemoryStore creates a new in-memory equipment store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]*Record),
		byID:    make(map[string]string),
		now:     time.Now,
	}
}

// Get retrieves a record by device name.
func (s *InMemoryStore) Get(ctx context.Context, name string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[name]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

// GetByID retrieves a record by its ID.
func (s *InMemoryStore) GetByID(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.records[name].Clone(), nil
}

// List retrieves records matching the filter, ordered by name.
func (s *InMemoryStore) List(ctx context.Context, filter *ListFilter) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		if filter.Matches(r) {
			result = append(result, r.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Upsert creates or replaces the record for name with the result of fn.
// The write lock is held across fn, so calls for the same name never interleave.
func (s *InMemoryStore) Upsert(ctx context.Context, name string, fn MergeFunc) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	existing := s.records[name]
	next, err := fn(existing.Clone())
	if err != nil {
		return nil, err
	}

	stored := next.Clone()
	stored.Name = name
	if existing != nil {
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.ID = uuid.New().String()
		stored.CreatedAt = s.now()
	}

	s.records[name] = stored
	s.byID[stored.ID] = name
	return stored.Clone(), nil
}

// SetEstimation stores the performance score of a record.
func (s *InMemoryStore) SetEstimation(ctx context.Context, name string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[name]
	if !ok {
		return ErrNotFound
	}
	r.Estimation = &score
	return nil
}

// Touch marks a known device online as of at.
func (s *InMemoryStore) Touch(ctx context.Context, name string, at time.Time) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[name]
	if !ok {
		return nil, ErrNotFound
	}
	r.Online = true
	r.LastUpdated = at
	return r.Clone(), nil
}

// MarkOffline flips every online record last updated before cutoff.
func (s *InMemoryStore) MarkOffline(ctx context.Context, cutoff time.Time) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var flipped []*Record
	for _, r := range s.records {
		if r.Online && r.LastUpdated.Before(cutoff) {
			r.Online = false
			flipped = append(flipped, r.Clone())
		}
	}
	sort.Slice(flipped, func(i, j int) bool { return flipped[i].Name < flipped[j].Name })
	return flipped, nil
}

// Update applies an operator edit to the record with the given ID.
func (s *InMemoryStore) Update(ctx context.Context, id string, patch *RecordPatch) (*Record, error) {
	if patch.Empty() {
		return nil, ErrInvalidPatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}

	updated := s.records[name].Clone()
	if err := applyPatch(updated, patch); err != nil {
		return nil, err
	}
	s.records[name] = updated
	return updated.Clone(), nil
}

// Delete removes a record by ID.
func (s *InMemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byID, id)
	delete(s.records, name)
	return nil
}

// Len returns the number of records in the store (for testing).
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
