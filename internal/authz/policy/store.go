package policy

import (
	"context"
	"sync"
)

// Store provides access to the policy set. Implementations must return
// policies for the given domain plus all globally scoped policies.
type Store interface {
	// ListPolicies returns the policies visible to a domain.
	ListPolicies(ctx context.Context, domainID string) ([]*Policy, error)
}

// MemoryStore is an in-memory implementation of the Store interface.
type MemoryStore struct {
	mu       sync.RWMutex
	policies map[string]*Policy
}

// NewMemoryStore creates a new in-memory policy store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		policies: make(map[string]*Policy),
	}
}

// Put adds or replaces a policy.
func (s *MemoryStore) Put(p *Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.ID] = p
}

// Remove deletes a policy by id.
func (s *MemoryStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.policies[id]; !ok {
		return ErrPolicyNotFound
	}
	delete(s.policies, id)
	return nil
}

// Get returns a policy by id.
func (s *MemoryStore) Get(id string) (*Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.policies[id]
	if !ok {
		return nil, ErrPolicyNotFound
	}
	return p, nil
}

// ListPolicies returns the policies visible to a domain: its own plus
// all globally scoped policies.
func (s *MemoryStore) ListPolicies(ctx context.Context, domainID string) ([]*Policy, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Policy, 0, len(s.policies))
	for _, p := range s.policies {
		if p.DomainScope == "" || domainID == "" || p.DomainScope == domainID {
			out = append(out, p)
		}
	}
	return out, nil
}

// Count returns the number of stored policies.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.policies)
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
