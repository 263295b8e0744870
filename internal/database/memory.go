package database

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"identity-reconciliation/internal/models"
)

// MemoryStore keeps contacts in process. It honours the same contract as
// ContactStore and is what service and handler tests run against.
type MemoryStore struct {
	txMu sync.Mutex

	mu       sync.RWMutex
	contacts map[int64]models.Contact
	nextID   int64
	clock    Clock
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock sets the clock used for created_at/updated_at.
func WithMemoryClock(clock Clock) MemoryOption {
	return func(s *MemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewMemoryStore returns an empty store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		contacts: make(map[int64]models.Contact),
		nextID:   1,
		clock:    defaultClock,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// RunInTx runs units of work one at a time. If fn fails every write it made
// is discarded.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(*MemoryStore) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := maps.Clone(s.contacts)
	nextID := s.nextID
	s.mu.RUnlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.contacts = snapshot
		s.nextID = nextID
		s.mu.Unlock()
		return err
	}
	return nil
}

// FindMany returns live contacts matching any set filter field, oldest first.
func (s *MemoryStore) FindMany(_ context.Context, filter models.ContactFilter) ([]models.Contact, error) {
	if filter.IsEmpty() {
		return nil, ErrEmptyFilter
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Contact
	for _, c := range s.contacts {
		if c.DeletedAt == nil && matches(c, filter) {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, compareContacts)
	return out, nil
}

// FindUnique returns one live contact or ErrNotFound.
func (s *MemoryStore) FindUnique(_ context.Context, id int64) (models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contacts[id]
	if !ok || c.DeletedAt != nil {
		return models.Contact{}, fmt.Errorf("contact %d: %w", id, ErrNotFound)
	}
	return c, nil
}

// Create stores a contact under the next id.
func (s *MemoryStore) Create(_ context.Context, fields models.NewContact) (models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fields.LinkedID != nil {
		if _, ok := s.contacts[*fields.LinkedID]; !ok {
			return models.Contact{}, fmt.Errorf("create contact: linked id %d: %w", *fields.LinkedID, ErrConstraint)
		}
	}

	now := s.clock()
	c := models.Contact{
		ID:             s.nextID,
		Email:          cloneString(fields.Email),
		PhoneNumber:    cloneString(fields.PhoneNumber),
		LinkedID:       cloneInt64(fields.LinkedID),
		LinkPrecedence: fields.LinkPrecedence,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.contacts[c.ID] = c
	s.nextID++
	return c, nil
}

// Update applies link changes and refreshes updated_at.
func (s *MemoryStore) Update(_ context.Context, id int64, fields models.ContactUpdate) (models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[id]
	if !ok || c.DeletedAt != nil {
		return models.Contact{}, fmt.Errorf("contact %d: %w", id, ErrNotFound)
	}
	if fields.LinkedID != nil {
		if _, ok := s.contacts[*fields.LinkedID]; !ok {
			return models.Contact{}, fmt.Errorf("update contact %d: linked id %d: %w", id, *fields.LinkedID, ErrConstraint)
		}
		c.LinkedID = cloneInt64(fields.LinkedID)
	}
	if fields.LinkPrecedence != nil {
		c.LinkPrecedence = *fields.LinkPrecedence
	}
	c.UpdatedAt = s.clock()
	s.contacts[id] = c
	return c, nil
}

// Put stores a contact as-is, bypassing id assignment. Tests use it to seed
// states the resolver would never produce on its own.
func (s *MemoryStore) Put(c models.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.contacts[c.ID] = c
	if c.ID >= s.nextID {
		s.nextID = c.ID + 1
	}
}

// Len returns the number of stored contacts.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contacts)
}

func matches(c models.Contact, f models.ContactFilter) bool {
	switch {
	case f.ID != nil && c.ID == *f.ID:
		return true
	case f.LinkedID != nil && c.LinkedID != nil && *c.LinkedID == *f.LinkedID:
		return true
	case f.Email != nil && c.Email != nil && *c.Email == *f.Email:
		return true
	case f.PhoneNumber != nil && c.PhoneNumber != nil && *c.PhoneNumber == *f.PhoneNumber:
		return true
	}
	return false
}

func compareContacts(a, b models.Contact) int {
	if a.Before(b) {
		return -1
	}
	if b.Before(a) {
		return 1
	}
	return 0
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
