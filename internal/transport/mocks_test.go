package transport

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront/internal/domain"
	"storefront/internal/inventory"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

// productStore is an in-memory ProductRepository whose quantities live in
// the same MemoryStore the adjuster writes to
type productStore struct {
	mu       sync.Mutex
	products map[string]*domain.Product
	stock    *inventory.MemoryStore
}

func newProductStore(products ...*domain.Product) *productStore {
	s := &productStore{products: map[string]*domain.Product{}, stock: inventory.NewMemoryStore(nil)}
	for _, p := range products {
		cp := *p
		s.products[p.ID] = &cp
		s.stock.Put(p.ID, p.WholesaleInfo.Quantity)
	}
	return s
}

func (s *productStore) Create(_ context.Context, p *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ID]; ok {
		return repository.ErrProductExists
	}
	cp := *p
	s.products[p.ID] = &cp
	s.stock.Put(p.ID, p.WholesaleInfo.Quantity)
	return nil
}

func (s *productStore) Update(_ context.Context, p *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ID]; !ok {
		return repository.ErrProductNotFound
	}
	cp := *p
	s.products[p.ID] = &cp
	return nil
}

func (s *productStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return repository.ErrProductNotFound
	}
	delete(s.products, id)
	s.stock.Delete(id)
	return nil
}

func (s *productStore) FindByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	cp := *p
	cp.WholesaleInfo.Quantity, _ = s.stock.Get(id)
	return &cp, nil
}

func (s *productStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.products[id]
	return ok, nil
}

func (s *productStore) List(_ context.Context) ([]*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Product, 0, len(s.products))
	for id, p := range s.products {
		cp := *p
		cp.WholesaleInfo.Quantity, _ = s.stock.Get(id)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *productStore) SetArchived(_ context.Context, id string, archived bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return repository.ErrProductNotFound
	}
	p.IsArchived = archived
	p.UpdatedAt = at
	return nil
}

type orderStore struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*domain.Order
}

func (s *orderStore) Create(_ context.Context, o *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	s.orders[o.ID] = &cp
	return nil
}

func (s *orderStore) FindByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *orderStore) List(_ context.Context, status domain.OrderStatus) ([]*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Order
	for _, o := range s.orders {
		if status == "" || o.Status == status {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *orderStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to domain.OrderStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	if o.Status != from {
		return repository.ErrOrderStatusChanged
	}
	o.Status = to
	o.UpdatedAt = at
	return nil
}

func (s *orderStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[id]; !ok {
		return repository.ErrOrderNotFound
	}
	delete(s.orders, id)
	return nil
}

type saleStore struct {
	mu    sync.Mutex
	sales map[uuid.UUID]*domain.Sale
}

func (s *saleStore) Create(_ context.Context, sale *domain.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales[sale.ID] = sale
	return nil
}

func (s *saleStore) FindByID(_ context.Context, id uuid.UUID) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sale, ok := s.sales[id]
	if !ok {
		return nil, repository.ErrSaleNotFound
	}
	return sale, nil
}

func (s *saleStore) List(_ context.Context, from, to time.Time) ([]*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Sale
	for _, sale := range s.sales {
		if !sale.CreatedAt.Before(from) && sale.CreatedAt.Before(to) {
			out = append(out, sale)
		}
	}
	return out, nil
}

func (s *saleStore) Delete(_ context.Context, id uuid.UUID) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sale, ok := s.sales[id]
	if !ok {
		return nil, repository.ErrSaleNotFound
	}
	delete(s.sales, id)
	return sale, nil
}
