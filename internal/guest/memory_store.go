package guest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"keepsake/api/internal/util"
)

// MemoryStore is the fallback when Redis is not configured, and the test
// double. Identities never expire here.
type MemoryStore struct {
	mu         sync.Mutex
	identities map[string]Identity
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{identities: make(map[string]Identity)}
}

func (s *MemoryStore) Issue(context.Context) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity := Identity{
		ID:       util.NewID("guest"),
		IssuedAt: time.Now(),
	}
	s.identities[identity.ID] = identity
	return identity, nil
}

func (s *MemoryStore) Lookup(_ context.Context, id string) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return Identity{}, fmt.Errorf("guest identity not found or expired")
	}
	return identity, nil
}
