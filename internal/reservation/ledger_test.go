package reservation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"storefront/internal/domain"
	"storefront/internal/inventory"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	store    *inventory.MemoryStore
	executor *Executor
	ledger   *Ledger
}

func newFixture(t *testing.T, channel Channel, products ...*domain.Product) *fixture {
	t.Helper()

	seed := map[string]int{}
	for _, p := range products {
		seed[p.ID] = p.WholesaleInfo.Quantity
	}
	store := inventory.NewMemoryStore(seed)
	executor := NewExecutor(inventory.NewAdjuster(store, zap.NewNop()), 2, zap.NewNop())
	t.Cleanup(executor.Close)

	ledger := NewLedger(channel, executor, zap.NewNop())
	ledger.Load(products)

	return &fixture{store: store, executor: executor, ledger: ledger}
}

func product(id string, qty int, price int64) *domain.Product {
	return &domain.Product{
		ID:            id,
		Name:          "Product " + id,
		Price:         decimal.NewFromInt(price),
		WholesaleInfo: domain.WholesaleInfo{Quantity: qty, Cost: decimal.NewFromInt(price / 2)},
	}
}

func withSizes(p *domain.Product) *domain.Product {
	p.Sizes = []domain.Size{
		{ID: "s", Label: "Small", Price: decimal.NewFromInt(80)},
		{ID: "l", Label: "Large", Price: decimal.NewFromInt(150)},
	}
	p.Addons = []domain.Addon{
		{ID: "x", Label: "Extra", PriceDelta: decimal.NewFromInt(20)},
		{ID: "y", Label: "Wrap", PriceDelta: decimal.NewFromInt(30)},
	}
	return p
}

// Feature: reservation, Property 2: Conservation under round-trip
func TestProperty_AddThenRemoveRestoresQuantity(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("add n then remove restores the stored and mirrored quantity", prop.ForAll(
		func(available int, n int) bool {
			if n > available {
				n = available
			}
			if n < 1 {
				return true
			}

			f := newFixture(t, ChannelOnline, product("p", available, 10))
			ctx := context.Background()

			line, err := f.ledger.Add(ctx, "p", n, domain.Selection{})
			if err != nil {
				t.Logf("FAIL: add failed: %v", err)
				return false
			}
			f.ledger.Wait()

			if err := f.ledger.Remove(ctx, line.Key); err != nil {
				t.Logf("FAIL: remove failed: %v", err)
				return false
			}
			f.ledger.Wait()

			stored, _ := f.store.Get("p")
			mirrored, _ := f.ledger.Product("p")
			if stored != available || mirrored.Available() != available {
				t.Logf("FAIL: expected %d, stored %d, mirrored %d", available, stored, mirrored.Available())
				return false
			}
			return true
		},
		gen.IntRange(1, 100),
		gen.IntRange(1, 100),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: reservation, Property 3: Composite identity distinctness
func TestCompositeIdentity(t *testing.T) {
	f := newFixture(t, ChannelOnline, withSizes(product("p", 20, 100)))
	ctx := context.Background()

	small, err := f.ledger.Add(ctx, "p", 1, domain.Selection{SizeID: "s"})
	require.NoError(t, err)
	f.ledger.Wait()
	large, err := f.ledger.Add(ctx, "p", 2, domain.Selection{SizeID: "l"})
	require.NoError(t, err)
	f.ledger.Wait()

	assert.NotEqual(t, small.Key, large.Key)
	require.Len(t, f.ledger.Lines(), 2)

	_, err = f.ledger.Add(ctx, "p", 1, domain.Selection{SizeID: "l", AddonIDs: []string{"y", "x"}})
	require.NoError(t, err)
	f.ledger.Wait()
	merged, err := f.ledger.Add(ctx, "p", 3, domain.Selection{SizeID: "l", AddonIDs: []string{"x", "y"}})
	require.NoError(t, err)
	f.ledger.Wait()

	lines := f.ledger.Lines()
	require.Len(t, lines, 3)
	assert.Equal(t, 4, merged.Quantity)
	assert.True(t, merged.TotalPrice.Equal(decimal.NewFromInt(800)), merged.TotalPrice.String())
	assert.Equal(t, 1, lines[0].Quantity)
	assert.Equal(t, 2, lines[1].Quantity)
	assert.True(t, lines[1].TotalPrice.Equal(decimal.NewFromInt(300)))

	stored, _ := f.store.Get("p")
	assert.Equal(t, 20-1-2-4, stored)
}

func TestAddRejectsInsufficientStock(t *testing.T) {
	f := newFixture(t, ChannelOnline, product("p", 3, 10))

	_, err := f.ledger.Add(context.Background(), "p", 4, domain.Selection{})

	var stockErr *domain.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 3, stockErr.Available)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Empty(t, f.ledger.Lines())
}

func TestMergeChecksRemainingStock(t *testing.T) {
	f := newFixture(t, ChannelOnline, product("p", 5, 10))
	ctx := context.Background()

	_, err := f.ledger.Add(ctx, "p", 3, domain.Selection{})
	require.NoError(t, err)
	f.ledger.Wait()

	_, err = f.ledger.Add(ctx, "p", 3, domain.Selection{})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	_, err = f.ledger.Add(ctx, "p", 2, domain.Selection{})
	require.NoError(t, err)
	f.ledger.Wait()

	stored, _ := f.store.Get("p")
	assert.Equal(t, 0, stored)
}

func TestSetQuantityAdjustsInBothDirections(t *testing.T) {
	f := newFixture(t, ChannelOnline, product("p", 10, 10))
	ctx := context.Background()

	line, err := f.ledger.Add(ctx, "p", 2, domain.Selection{})
	require.NoError(t, err)
	f.ledger.Wait()

	updated, err := f.ledger.SetQuantity(ctx, line.Key, 6)
	require.NoError(t, err)
	f.ledger.Wait()
	assert.Equal(t, 6, updated.Quantity)
	assert.True(t, updated.TotalPrice.Equal(decimal.NewFromInt(60)))
	stored, _ := f.store.Get("p")
	assert.Equal(t, 4, stored)

	_, err = f.ledger.SetQuantity(ctx, line.Key, 11)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	_, err = f.ledger.SetQuantity(ctx, line.Key, 1)
	require.NoError(t, err)
	f.ledger.Wait()
	stored, _ = f.store.Get("p")
	assert.Equal(t, 9, stored)

	removed, err := f.ledger.SetQuantity(ctx, line.Key, 0)
	require.NoError(t, err)
	f.ledger.Wait()
	assert.Nil(t, removed)
	assert.Empty(t, f.ledger.Lines())
	stored, _ = f.store.Get("p")
	assert.Equal(t, 10, stored)
}

func TestClearRestoresEveryLine(t *testing.T) {
	f := newFixture(t, ChannelCashier, product("a", 5, 10), product("b", 5, 10))
	ctx := context.Background()

	_, err := f.ledger.Add(ctx, "a", 2, domain.Selection{})
	require.NoError(t, err)
	_, err = f.ledger.Add(ctx, "b", 4, domain.Selection{})
	require.NoError(t, err)
	f.ledger.Wait()

	require.NoError(t, f.ledger.Clear(ctx))
	f.ledger.Wait()

	a, _ := f.store.Get("a")
	b, _ := f.store.Get("b")
	assert.Equal(t, 5, a)
	assert.Equal(t, 5, b)
	assert.Empty(t, f.ledger.Lines())
	assert.True(t, f.ledger.Total().IsZero())
}

// Feature: reservation, Property 8: Cart cleanup
func TestLoadDropsLinesForDeletedProducts(t *testing.T) {
	a, b := product("a", 5, 10), product("b", 5, 10)
	f := newFixture(t, ChannelOnline, a, b)
	ctx := context.Background()

	_, err := f.ledger.Add(ctx, "a", 1, domain.Selection{})
	require.NoError(t, err)
	_, err = f.ledger.Add(ctx, "b", 2, domain.Selection{})
	require.NoError(t, err)
	f.ledger.Wait()

	removed := f.ledger.Load([]*domain.Product{product("b", 3, 10)})

	require.Len(t, removed, 1)
	assert.Equal(t, "a", removed[0].ProductID)
	lines := f.ledger.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "b", lines[0].ProductID)
	assert.Equal(t, 2, lines[0].Quantity)
}

type blockingDispatcher struct {
	release chan struct{}
}

func (d *blockingDispatcher) Submit(_ context.Context, _ Command, done func(error)) {
	go func() {
		<-d.release
		done(nil)
	}()
}

func TestInFlightProductIsRefused(t *testing.T) {
	dispatcher := &blockingDispatcher{release: make(chan struct{})}
	ledger := NewLedger(ChannelOnline, dispatcher, zap.NewNop())
	ledger.Load([]*domain.Product{product("a", 5, 10), product("b", 5, 10)})
	ctx := context.Background()

	_, err := ledger.Add(ctx, "a", 1, domain.Selection{})
	require.NoError(t, err)
	assert.True(t, ledger.Busy("a"))

	_, err = ledger.Add(ctx, "a", 1, domain.Selection{})
	assert.ErrorIs(t, err, ErrInFlight)

	_, err = ledger.Add(ctx, "b", 1, domain.Selection{})
	assert.NoError(t, err)

	close(dispatcher.release)
	ledger.Wait()
	assert.False(t, ledger.Busy("a"))

	line, err := ledger.Add(ctx, "a", 1, domain.Selection{})
	require.NoError(t, err)
	assert.Equal(t, 2, line.Quantity)
	ledger.Wait()
}

func TestArchivedProductCannotBeAdded(t *testing.T) {
	p := product("a", 5, 10)
	p.IsArchived = true
	f := newFixture(t, ChannelCashier, p, product("b", 1, 10))

	_, err := f.ledger.Add(context.Background(), "a", 1, domain.Selection{})
	assert.ErrorIs(t, err, ErrProductUnavailable)

	sellable := f.ledger.Sellable()
	require.Len(t, sellable, 1)
	assert.Equal(t, "b", sellable[0].ID)
}

func TestLinePriceDoesNotFollowCatalog(t *testing.T) {
	f := newFixture(t, ChannelOnline, product("p", 5, 10))
	ctx := context.Background()

	line, err := f.ledger.Add(ctx, "p", 1, domain.Selection{})
	require.NoError(t, err)
	f.ledger.Wait()

	repriced := product("p", 4, 99)
	f.ledger.Load([]*domain.Product{repriced})

	current, ok := f.ledger.Line(line.Key)
	require.True(t, ok)
	assert.True(t, current.UnitFinalPrice.Equal(decimal.NewFromInt(10)))
}

func TestExecutorReportsClosed(t *testing.T) {
	executor := NewExecutor(inventory.NewAdjuster(inventory.NewMemoryStore(nil), zap.NewNop()), 1, zap.NewNop())
	executor.Close()

	result := make(chan error, 1)
	executor.Submit(context.Background(), deduct("p", 1), func(err error) { result <- err })

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrExecutorClosed)
	case <-time.After(time.Second):
		t.Fatal("done was not called")
	}
}

func TestSettleKeepsLinesWhenRecordFails(t *testing.T) {
	f := newFixture(t, ChannelOnline, product("p", 5, 10))
	ctx := context.Background()

	_, err := f.ledger.Add(ctx, "p", 2, domain.Selection{})
	require.NoError(t, err)
	f.ledger.Wait()

	boom := errors.New("boom")
	err = f.ledger.Settle(func([]domain.CartLine) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Len(t, f.ledger.Lines(), 1)

	var recorded []domain.CartLine
	require.NoError(t, f.ledger.Settle(func(lines []domain.CartLine) error {
		recorded = lines
		return nil
	}))
	assert.Len(t, recorded, 1)
	assert.Empty(t, f.ledger.Lines())

	stored, _ := f.store.Get("p")
	assert.Equal(t, 3, stored)
}

func TestObserversRunUnlockedAndSeeTheLatestLines(t *testing.T) {
	products := make([]*domain.Product, 8)
	for i := range products {
		products[i] = product(fmt.Sprintf("p%d", i), 5, 10)
	}

	var (
		mu   sync.Mutex
		last []domain.CartLine
	)
	var ledger *Ledger
	ledger = NewLedger(ChannelOnline, &blockingDispatcher{release: closedChan()}, zap.NewNop(),
		WithObserver(func(lines []domain.CartLine) {
			// reading back from the observer would deadlock if it ran under the ledger lock
			_ = ledger.Lines()
			mu.Lock()
			last = lines
			mu.Unlock()
		}),
	)
	ledger.Load(products)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, p := range products {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := ledger.Add(ctx, id, 1, domain.Selection{})
			assert.NoError(t, err)
		}(p.ID)
	}
	wg.Wait()
	ledger.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, last, len(products))
	assert.ElementsMatch(t, ledger.Lines(), last)
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
