package bot

import (
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/common/errors"
	v1 "github.com/whatsapp110x-ctrl/Host-Elite-sub000/pkg/api/v1"
)

// Store provides in-memory bot record storage.
// All methods are safe for concurrent use; returned records are copies.
type Store struct {
	records map[string]*Record
	byName  map[string]string // name -> id
	mu      sync.RWMutex
}

// NewStore creates a new in-memory bot store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]*Record),
		byName:  make(map[string]string),
	}
}

// Create registers a new record. Names are unique within the running system.
func (s *Store) Create(rec *Record) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[rec.Name]; exists {
		return nil, apperrors.Conflict("bot name '" + rec.Name + "' is already in use")
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = v1.BotStatusStopped
	}

	s.records[rec.ID] = rec
	s.byName[rec.Name] = rec.ID
	return rec.Clone(), nil
}

// Get retrieves a record by ID.
func (s *Store) Get(id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, apperrors.NotFound("bot", id)
	}
	return rec.Clone(), nil
}

// GetByName retrieves a record by its unique name.
func (s *Store) GetByName(name string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[name]
	if !ok {
		return nil, apperrors.NotFound("bot", name)
	}
	return s.records[id].Clone(), nil
}

// List returns all records.
func (s *Store) List() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		result = append(result, rec.Clone())
	}
	return result
}

// Update applies fn to the stored record under the store lock.
// The whole mutation is atomic: fn either succeeds and the record reflects
// the new state, or fn's error is returned and the record is unchanged.
func (s *Store) Update(id string, fn func(*Record) error) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, apperrors.NotFound("bot", id)
	}

	// Mutate a copy first so a failing fn leaves the stored record untouched.
	next := rec.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()

	s.records[id] = next
	return next.Clone(), nil
}

// SetStatus transitions a record's status, validating the transition centrally.
func (s *Store) SetStatus(id string, to v1.BotStatus) (*Record, error) {
	return s.Update(id, func(rec *Record) error {
		if rec.Status == to {
			return nil
		}
		if !CanTransition(rec.Status, to) {
			return apperrors.Conflict("invalid status transition " + string(rec.Status) + " -> " + string(to))
		}
		rec.Status = to
		return nil
	})
}

// Delete removes a record by ID.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return apperrors.NotFound("bot", id)
	}
	delete(s.byName, rec.Name)
	delete(s.records, id)
	return nil
}

// Count returns the number of registered records.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
