// Package client keeps the per-client state of the storefront: the customer
// cart and the cashier terminal of every browser tab or till, each backed by
// its own slice of the key-value store.
package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"storefront/internal/cart"
	"storefront/internal/cashier"
	"storefront/internal/domain"
	"storefront/internal/kv"
	"storefront/internal/repository"
	"storefront/internal/reservation"

	"go.uber.org/zap"
)

// ProductSource lists the catalog as stored
type ProductSource interface {
	List(ctx context.Context) ([]*domain.Product, error)
}

// Client is the state held for one client id
type Client struct {
	ID    string
	Store kv.Store
	Cart  *cart.Manager
	Till  *cashier.Terminal

	lastSeen time.Time
}

// Wait blocks until the client's pending stock writes have completed
func (c *Client) Wait() {
	c.Cart.Wait()
	c.Till.Wait()
}

// Registry creates clients on first use and keeps their product mirrors
// fresh
type Registry struct {
	dispatcher reservation.Dispatcher
	sales      repository.SaleRepository
	products   ProductSource
	backing    kv.Store
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.Mutex
	clients map[string]*Client
}

// NewRegistry creates an empty Registry
func NewRegistry(
	dispatcher reservation.Dispatcher,
	sales repository.SaleRepository,
	products ProductSource,
	backing kv.Store,
	logger *zap.Logger,
) *Registry {
	return &Registry{
		dispatcher: dispatcher,
		sales:      sales,
		products:   products,
		backing:    backing,
		logger:     logger.Named("clients"),
		now:        time.Now,
		clients:    map[string]*Client{},
	}
}

// Get returns the client for id, creating it and loading the catalog on
// first use
func (r *Registry) Get(ctx context.Context, id string) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[id]; ok {
		c.lastSeen = r.now()
		return c, nil
	}

	store := kv.Namespace(r.backing, id)
	c := &Client{
		ID:       id,
		Store:    store,
		Cart:     cart.NewManager(ctx, r.dispatcher, store, r.logger.With(zap.String("client_id", id))),
		Till:     cashier.NewTerminal(r.dispatcher, r.sales, store, r.logger.With(zap.String("client_id", id))),
		lastSeen: r.now(),
	}

	if _, err := c.Cart.LoadProducts(ctx, r.products); err != nil {
		return nil, err
	}
	if _, err := c.Till.LoadProducts(ctx, r.products); err != nil {
		return nil, err
	}

	r.clients[id] = c
	r.logger.Debug("Client created", zap.String("client_id", id))
	return c, nil
}

// Store returns the key-value store of a client without creating its carts
func (r *Registry) Store(id string) kv.Store {
	return kv.Namespace(r.backing, id)
}

// Len returns the number of clients held in memory
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (r *Registry) snapshot() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Reload refreshes every client's product mirror from the store. Lines of
// deleted products are dropped from the carts.
func (r *Registry) Reload(ctx context.Context) error {
	var errs []error
	for _, c := range r.snapshot() {
		removed, err := c.Cart.LoadProducts(ctx, r.products)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		tillRemoved, err := c.Till.LoadProducts(ctx, r.products)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if n := len(removed) + len(tillRemoved); n > 0 {
			r.logger.Info("Dropped lines of deleted products",
				zap.String("client_id", c.ID),
				zap.Int("lines", n),
			)
		}
	}
	return errors.Join(errs...)
}

// Evict drops clients unused for longer than idle. A till holding lines is
// kept because those lines are not persisted.
func (r *Registry) Evict(idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-idle)
	evicted := 0
	for id, c := range r.clients {
		if c.lastSeen.After(cutoff) || len(c.Till.Lines()) > 0 {
			continue
		}
		c.Wait()
		delete(r.clients, id)
		evicted++
	}
	return evicted
}

// Run reloads products every interval and evicts idle clients until ctx is
// done
func (r *Registry) Run(ctx context.Context, interval, idle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.Reload(ctx); err != nil {
				r.logger.Error("Product reload failed", zap.Error(err))
			}
			if n := r.Evict(idle); n > 0 {
				r.logger.Debug("Evicted idle clients", zap.Int("count", n))
			}
		}
	}
}

// Wait blocks until every client's pending stock writes have completed
func (r *Registry) Wait() {
	for _, c := range r.snapshot() {
		c.Wait()
	}
}
