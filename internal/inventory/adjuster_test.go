package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"storefront/internal/domain"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func updates(pairs ...any) []domain.QuantityUpdate {
	var out []domain.QuantityUpdate
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, domain.QuantityUpdate{ProductID: pairs[i].(string), Amount: pairs[i+1].(int)})
	}
	return out
}

// Feature: inventory, Property 1: No negative stock
func TestProperty_NoNegativeStock(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("any sequence of deduct and restore leaves quantity >= 0", prop.ForAll(
		func(start int, deltas []int) bool {
			store := NewMemoryStore(map[string]int{"p": start})
			adjuster := NewAdjuster(store, zap.NewNop())
			ctx := context.Background()

			for _, d := range deltas {
				var err error
				switch {
				case d < 0:
					err = adjuster.Deduct(ctx, updates("p", -d))
				case d > 0:
					err = adjuster.Restore(ctx, updates("p", d))
				}
				if err != nil {
					t.Logf("FAIL: adjustment failed: %v", err)
					return false
				}

				qty, _ := store.Get("p")
				if qty < 0 {
					t.Logf("FAIL: quantity went negative: %d", qty)
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 50),
		gen.SliceOf(gen.IntRange(-30, 30)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: inventory, Property 6: Concurrent deduct serialization
func TestConcurrentDeductsAreSerialized(t *testing.T) {
	for i := 0; i < 100; i++ {
		store := NewMemoryStore(map[string]int{"p": 10})
		adjuster := NewAdjuster(store, zap.NewNop())

		var wg sync.WaitGroup
		for _, amount := range []int{3, 4} {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				assert.NoError(t, adjuster.Deduct(context.Background(), updates("p", n)))
			}(amount)
		}
		wg.Wait()

		qty, _ := store.Get("p")
		require.Equal(t, 3, qty)
	}
}

func TestDeductClampsAtZero(t *testing.T) {
	store := NewMemoryStore(map[string]int{"p": 2})
	adjuster := NewAdjuster(store, zap.NewNop())

	require.NoError(t, adjuster.Deduct(context.Background(), updates("p", 5)))

	qty, _ := store.Get("p")
	assert.Equal(t, 0, qty)
}

func TestMissingProductAbortsWholeBatch(t *testing.T) {
	store := NewMemoryStore(map[string]int{"a": 5, "c": 5})
	adjuster := NewAdjuster(store, zap.NewNop())

	err := adjuster.Deduct(context.Background(), updates("a", 1, "b", 1, "c", 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProductNotFound))

	a, _ := store.Get("a")
	c, _ := store.Get("c")
	assert.Equal(t, 5, a)
	assert.Equal(t, 5, c)
}

func TestRestoreHasNoUpperBound(t *testing.T) {
	store := NewMemoryStore(map[string]int{"p": 1})
	adjuster := NewAdjuster(store, zap.NewNop())

	require.NoError(t, adjuster.Restore(context.Background(), updates("p", 1000)))

	qty, _ := store.Get("p")
	assert.Equal(t, 1001, qty)
}

func TestDuplicateProductsInBatchAreSummed(t *testing.T) {
	store := NewMemoryStore(map[string]int{"p": 10})
	adjuster := NewAdjuster(store, zap.NewNop())

	require.NoError(t, adjuster.Deduct(context.Background(), updates("p", 2, "p", 3)))

	qty, _ := store.Get("p")
	assert.Equal(t, 5, qty)
}

func TestInvalidAmountIsRejected(t *testing.T) {
	store := NewMemoryStore(map[string]int{"p": 10})
	adjuster := NewAdjuster(store, zap.NewNop())

	err := adjuster.Deduct(context.Background(), updates("p", 0))
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}
