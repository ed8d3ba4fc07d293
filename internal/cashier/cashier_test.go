package cashier

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"storefront/internal/domain"
	"storefront/internal/inventory"
	"storefront/internal/kv"
	"storefront/internal/repository"
	"storefront/internal/reservation"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockSaleRepository is an in-memory SaleRepository
type mockSaleRepository struct {
	mu    sync.Mutex
	sales map[uuid.UUID]*domain.Sale
	fail  error
}

func newMockSaleRepository() *mockSaleRepository {
	return &mockSaleRepository{sales: make(map[uuid.UUID]*domain.Sale)}
}

func (m *mockSaleRepository) Create(_ context.Context, sale *domain.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sales[sale.ID] = sale
	return nil
}

func (m *mockSaleRepository) FindByID(_ context.Context, id uuid.UUID) (*domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sale, ok := m.sales[id]
	if !ok {
		return nil, repository.ErrSaleNotFound
	}
	return sale, nil
}

func (m *mockSaleRepository) List(_ context.Context, from, to time.Time) ([]*domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Sale
	for _, s := range m.sales {
		if !s.CreatedAt.Before(from) && s.CreatedAt.Before(to) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockSaleRepository) Delete(_ context.Context, id uuid.UUID) (*domain.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sale, ok := m.sales[id]
	if !ok {
		return nil, repository.ErrSaleNotFound
	}
	delete(m.sales, id)
	return sale, nil
}

type staticSource []*domain.Product

func (s staticSource) List(context.Context) ([]*domain.Product, error) {
	return s, nil
}

type env struct {
	stock    *inventory.MemoryStore
	executor *reservation.Executor
	sales    *mockSaleRepository
	store    kv.Store
	terminal *Terminal
}

func newEnv(t *testing.T, products ...*domain.Product) *env {
	t.Helper()

	seed := map[string]int{}
	for _, p := range products {
		seed[p.ID] = p.WholesaleInfo.Quantity
	}
	stock := inventory.NewMemoryStore(seed)
	executor := reservation.NewExecutor(inventory.NewAdjuster(stock, zap.NewNop()), 2, zap.NewNop())
	t.Cleanup(executor.Close)

	sales := newMockSaleRepository()
	store := kv.NewMemory()
	terminal := NewTerminal(executor, sales, store, zap.NewNop())
	_, err := terminal.LoadProducts(context.Background(), staticSource(products))
	require.NoError(t, err)

	return &env{stock: stock, executor: executor, sales: sales, store: store, terminal: terminal}
}

func simple(id string, qty int, price, cost int64) *domain.Product {
	return &domain.Product{
		ID:            id,
		Name:          "Item " + id,
		Price:         decimal.NewFromInt(price),
		WholesaleInfo: domain.WholesaleInfo{Quantity: qty, Cost: decimal.NewFromInt(cost)},
	}
}

func quantity(t *testing.T, s *inventory.MemoryStore, id string) int {
	t.Helper()
	q, ok := s.Get(id)
	require.True(t, ok)
	return q
}

func TestCompleteSaleRecordsWithoutAdjustingStock(t *testing.T) {
	e := newEnv(t, simple("a", 10, 50, 30))
	ctx := context.Background()

	_, err := e.terminal.AddWithOptions(ctx, "a", 3, domain.Selection{})
	require.NoError(t, err)
	e.terminal.Wait()
	assert.Equal(t, 7, quantity(t, e.stock, "a"))

	sale, err := e.terminal.CompleteSale(ctx)
	require.NoError(t, err)
	e.terminal.Wait()

	assert.True(t, decimal.NewFromInt(150).Equal(sale.Total))
	assert.Equal(t, 7, quantity(t, e.stock, "a"), "completing a sale must not deduct again")
	assert.Empty(t, e.terminal.Lines())

	stored, err := e.sales.FindByID(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Items[0].Quantity)
}

func TestCompleteSaleRejectsEmptyCart(t *testing.T) {
	e := newEnv(t, simple("a", 10, 50, 30))

	_, err := e.terminal.CompleteSale(context.Background())
	assert.ErrorIs(t, err, domain.ErrEmptySale)
}

func TestAddProductRequiresOptions(t *testing.T) {
	p := simple("shirt", 5, 100, 40)
	p.Sizes = []domain.Size{{ID: "m", Label: "M", Price: decimal.NewFromInt(100)}}
	e := newEnv(t, p)
	ctx := context.Background()

	_, err := e.terminal.AddProduct(ctx, "shirt")
	assert.ErrorIs(t, err, ErrOptionsRequired)

	_, err = e.terminal.AddWithOptions(ctx, "shirt", 1, domain.Selection{})
	assert.ErrorIs(t, err, ErrOptionsRequired)

	line, err := e.terminal.AddWithOptions(ctx, "shirt", 2, domain.Selection{SizeID: "m"})
	require.NoError(t, err)
	assert.Equal(t, "m", line.SizeID())
}

func TestFailedSaleIsBackedUpAndSynced(t *testing.T) {
	e := newEnv(t, simple("a", 10, 20, 5))
	ctx := context.Background()

	_, err := e.terminal.AddProduct(ctx, "a")
	require.NoError(t, err)

	e.sales.fail = errors.New("connection refused")
	sale, err := e.terminal.CompleteSale(ctx)
	require.ErrorIs(t, err, ErrSaleBackedUp)
	require.NotNil(t, sale)
	assert.Empty(t, e.terminal.Lines())

	backups, err := e.terminal.Backups(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, sale.ID, backups[0].ID)

	synced, err := e.terminal.SyncBackups(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, synced)

	e.sales.fail = nil
	synced, err = e.terminal.SyncBackups(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, synced)

	backups, err = e.terminal.Backups(ctx)
	require.NoError(t, err)
	assert.Empty(t, backups)

	_, err = e.sales.FindByID(ctx, sale.ID)
	assert.NoError(t, err)
}

func TestDeleteSaleRestoresStock(t *testing.T) {
	e := newEnv(t, simple("a", 10, 10, 4), simple("b", 10, 20, 8))
	ctx := context.Background()

	_, err := e.terminal.AddWithOptions(ctx, "a", 2, domain.Selection{})
	require.NoError(t, err)
	e.terminal.Wait()
	_, err = e.terminal.AddWithOptions(ctx, "b", 5, domain.Selection{})
	require.NoError(t, err)
	e.terminal.Wait()

	sale, err := e.terminal.CompleteSale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, quantity(t, e.stock, "a"))
	assert.Equal(t, 5, quantity(t, e.stock, "b"))

	svc := NewSaleService(e.sales, e.executor, zap.NewNop())
	require.NoError(t, svc.DeleteSale(ctx, sale.ID))

	assert.Equal(t, 10, quantity(t, e.stock, "a"))
	assert.Equal(t, 10, quantity(t, e.stock, "b"))

	_, err = svc.Get(ctx, sale.ID)
	assert.ErrorIs(t, err, repository.ErrSaleNotFound)
}

// Feature: cashier, Property 7: Sale deletion restores exactly the sold quantities
func TestProperty_DeleteSaleRestoresSoldQuantities(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("deleting a sale adds back each item's quantity", prop.ForAll(
		func(qa, qb, stock int) bool {
			ctx := context.Background()
			store := inventory.NewMemoryStore(map[string]int{"a": stock, "b": stock})
			executor := reservation.NewExecutor(inventory.NewAdjuster(store, zap.NewNop()), 1, zap.NewNop())
			defer executor.Close()

			sales := newMockSaleRepository()
			sale := &domain.Sale{
				ID: uuid.New(),
				Items: []domain.SaleItem{
					{ProductID: "a", ProductName: "A", Quantity: qa, UnitPrice: decimal.NewFromInt(1)},
					{ProductID: "b", ProductName: "B", Quantity: qb, UnitPrice: decimal.NewFromInt(1)},
				},
				CreatedAt: time.Now(),
			}
			if err := sales.Create(ctx, sale); err != nil {
				return false
			}

			svc := NewSaleService(sales, executor, zap.NewNop())
			if err := svc.DeleteSale(ctx, sale.ID); err != nil {
				return false
			}

			a, _ := store.Get("a")
			b, _ := store.Get("b")
			_, err := sales.FindByID(ctx, sale.ID)
			return a == stock+qa && b == stock+qb && errors.Is(err, repository.ErrSaleNotFound)
		},
		gen.IntRange(1, 50),
		gen.IntRange(1, 50),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}

func TestDeleteSaleKeepsRecordWhenRestoreFails(t *testing.T) {
	e := newEnv(t, simple("a", 10, 10, 4))
	ctx := context.Background()

	sale := &domain.Sale{
		ID:        uuid.New(),
		Items:     []domain.SaleItem{{ProductID: "gone", ProductName: "Gone", Quantity: 1}},
		CreatedAt: time.Now(),
	}
	require.NoError(t, e.sales.Create(ctx, sale))

	svc := NewSaleService(e.sales, e.executor, zap.NewNop())
	err := svc.DeleteSale(ctx, sale.ID)
	assert.ErrorIs(t, err, inventory.ErrProductNotFound)

	_, err = e.sales.FindByID(ctx, sale.ID)
	assert.NoError(t, err)
}

func TestSummary(t *testing.T) {
	sales := newMockSaleRepository()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	in := &domain.Sale{
		ID: uuid.New(),
		Items: []domain.SaleItem{
			{ProductID: "a", Quantity: 2, UnitPrice: decimal.NewFromInt(50), UnitCost: decimal.NewFromInt(30)},
			{ProductID: "b", Quantity: 1, UnitPrice: decimal.NewFromInt(20), UnitCost: decimal.NewFromInt(5)},
		},
		Total:     decimal.NewFromInt(120),
		CreatedAt: now,
	}
	out := &domain.Sale{ID: uuid.New(), Total: decimal.NewFromInt(999), CreatedAt: now.AddDate(0, -1, 0)}
	require.NoError(t, sales.Create(ctx, in))
	require.NoError(t, sales.Create(ctx, out))

	svc := NewSaleService(sales, nil, zap.NewNop())
	sum, err := svc.Summary(ctx, now.Add(-24*time.Hour), now.Add(24*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Count)
	assert.Equal(t, 3, sum.Units)
	assert.True(t, decimal.NewFromInt(120).Equal(sum.Revenue))
	assert.True(t, decimal.NewFromInt(65).Equal(sum.Cost))
	assert.True(t, decimal.NewFromInt(55).Equal(sum.Profit))
}

func TestConcurrentDeletesRestoreOnce(t *testing.T) {
	e := newEnv(t, simple("a", 8, 10, 4))
	ctx := context.Background()

	sale := &domain.Sale{
		ID:        uuid.New(),
		Items:     []domain.SaleItem{{ProductID: "a", ProductName: "A", Quantity: 2}},
		CreatedAt: time.Now(),
	}
	require.NoError(t, e.sales.Create(ctx, sale))
	svc := NewSaleService(e.sales, e.executor, zap.NewNop())

	const callers = 8
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make(chan error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs <- svc.DeleteSale(ctx, sale.ID)
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, repository.ErrSaleNotFound)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 10, quantity(t, e.stock, "a"))
}
