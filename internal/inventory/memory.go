package inventory

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps quantities in memory. Transactions are serialized by a
// single lock and writes are buffered until fn succeeds.
type MemoryStore struct {
	mu         sync.Mutex
	quantities map[string]int
}

// NewMemoryStore creates a MemoryStore seeded with quantities
func NewMemoryStore(seed map[string]int) *MemoryStore {
	q := make(map[string]int, len(seed))
	for id, n := range seed {
		q[id] = n
	}
	return &MemoryStore{quantities: q}
}

// Put creates or replaces a product's quantity
func (s *MemoryStore) Put(productID string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quantities[productID] = quantity
}

// Delete removes a product
func (s *MemoryStore) Delete(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.quantities, productID)
}

// Get returns a product's quantity
func (s *MemoryStore) Get(productID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	qty, ok := s.quantities[productID]
	return qty, ok
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{store: s, writes: map[string]int{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for id, qty := range tx.writes {
		s.quantities[id] = qty
	}
	return nil
}

type memoryTx struct {
	store  *MemoryStore
	writes map[string]int
}

func (t *memoryTx) Quantity(_ context.Context, productID string) (int, error) {
	if qty, ok := t.writes[productID]; ok {
		return qty, nil
	}
	qty, ok := t.store.quantities[productID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	return qty, nil
}

func (t *memoryTx) SetQuantity(_ context.Context, productID string, quantity int) error {
	if _, ok := t.store.quantities[productID]; !ok {
		return fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if quantity < 0 {
		return fmt.Errorf("negative quantity %d for %s", quantity, productID)
	}
	t.writes[productID] = quantity
	return nil
}
