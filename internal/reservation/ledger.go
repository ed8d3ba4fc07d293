package reservation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront/internal/domain"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrInFlight = errors.New("product is already being processed")

// Dispatcher runs Commands asynchronously
type Dispatcher interface {
	Submit(ctx context.Context, cmd Command, done func(error))
}

// Ledger is a cart for one channel. Local state changes first; the durable
// stock write is dispatched afterwards. While a product's write is in flight
// further changes touching that product are refused with ErrInFlight.
type Ledger struct {
	channel    Channel
	dispatcher Dispatcher
	logger     *zap.Logger
	now        func() time.Time
	observers  []func([]domain.CartLine)

	mu       sync.Mutex
	state    *State
	inflight map[string]struct{}
	pending  sync.WaitGroup
	version  uint64

	notifyMu sync.Mutex
	notified uint64
}

// Option configures a Ledger
type Option func(*Ledger)

// WithClock sets the time source used for pricing
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithObserver registers fn to receive the lines after every change. fn runs
// after the ledger is unlocked; calls are serialized and a snapshot older than
// one already delivered is dropped.
func WithObserver(fn func([]domain.CartLine)) Option {
	return func(l *Ledger) { l.observers = append(l.observers, fn) }
}

// NewLedger creates an empty Ledger
func NewLedger(channel Channel, dispatcher Dispatcher, logger *zap.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		channel:    channel,
		dispatcher: dispatcher,
		logger:     logger.Named("ledger").With(zap.String("channel", string(channel))),
		now:        time.Now,
		state:      NewState(),
		inflight:   map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Channel returns the ledger's channel
func (l *Ledger) Channel() Channel {
	return l.channel
}

// Add reserves quantity units of a product selection
func (l *Ledger) Add(ctx context.Context, productID string, quantity int, sel domain.Selection) (domain.CartLine, error) {
	var line domain.CartLine
	err := l.mutate(ctx,
		func(*State) ([]string, error) { return []string{productID}, nil },
		func(s *State) (Command, error) {
			var (
				cmd Command
				err error
			)
			line, cmd, err = s.Add(productID, quantity, sel, l.now())
			return cmd, err
		},
	)
	return line, err
}

// SetQuantity changes a line's quantity; zero or less removes it. The
// returned line is nil when the line was removed.
func (l *Ledger) SetQuantity(ctx context.Context, key domain.LineKey, quantity int) (*domain.CartLine, error) {
	var line *domain.CartLine
	err := l.mutate(ctx, l.lineProduct(key), func(s *State) (Command, error) {
		var (
			cmd Command
			err error
		)
		line, cmd, err = s.SetQuantity(key, quantity)
		return cmd, err
	})
	return line, err
}

// Remove deletes a line and releases its stock
func (l *Ledger) Remove(ctx context.Context, key domain.LineKey) error {
	return l.mutate(ctx, l.lineProduct(key), func(s *State) (Command, error) {
		return s.Remove(key)
	})
}

// Clear empties the cart and releases all reserved stock
func (l *Ledger) Clear(ctx context.Context) error {
	return l.mutate(ctx,
		func(s *State) ([]string, error) {
			var ids []string
			for _, line := range s.lines {
				ids = append(ids, line.ProductID)
			}
			return ids, nil
		},
		func(s *State) (Command, error) { return s.Clear(), nil },
	)
}

// Detach empties the cart without releasing stock and returns the lines
func (l *Ledger) Detach() []domain.CartLine {
	l.mu.Lock()
	lines := l.state.Detach()
	flush := l.snapshotLocked()
	l.mu.Unlock()

	flush()
	return lines
}

// Settle passes the current lines to record and empties the cart without
// releasing stock if record succeeds. The ledger stays locked while record
// runs so no line can be added or removed in between.
func (l *Ledger) Settle(record func([]domain.CartLine) error) error {
	l.mu.Lock()
	if err := record(l.state.Lines()); err != nil {
		l.mu.Unlock()
		return err
	}
	l.state.Detach()
	flush := l.snapshotLocked()
	l.mu.Unlock()

	flush()
	return nil
}

// Load replaces the product mirror with store truth and drops lines whose
// product was deleted.
func (l *Ledger) Load(products []*domain.Product) []domain.CartLine {
	l.mu.Lock()
	removed := l.state.Load(products)
	for _, line := range removed {
		l.logger.Info("Removed cart line for deleted product",
			zap.String("product_id", line.ProductID),
			zap.Int("quantity", line.Quantity),
		)
	}
	if len(removed) == 0 {
		l.mu.Unlock()
		return removed
	}
	flush := l.snapshotLocked()
	l.mu.Unlock()

	flush()
	return removed
}

// SetLines installs persisted lines whose stock is already reserved
func (l *Ledger) SetLines(lines []domain.CartLine) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.SetLines(lines)
}

// Lines returns the current lines
func (l *Ledger) Lines() []domain.CartLine {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Lines()
}

// Line returns the line with the given key
func (l *Ledger) Line(key domain.LineKey) (domain.CartLine, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Line(key)
}

// FindLine returns the first line for a product and size
func (l *Ledger) FindLine(productID, sizeID string) (domain.CartLine, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.FindLine(productID, sizeID)
}

// Total returns the sum of all line totals
func (l *Ledger) Total() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Total()
}

// Product returns the locally mirrored product
func (l *Ledger) Product(id string) (domain.Product, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Product(id)
}

// Sellable returns mirrored products that are not archived
func (l *Ledger) Sellable() []domain.Product {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []domain.Product
	for _, p := range l.state.Products() {
		if !p.IsArchived {
			out = append(out, p)
		}
	}
	return out
}

// Busy reports whether a stock write for the product is in flight
func (l *Ledger) Busy(productID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.inflight[productID]
	return ok
}

// Wait blocks until all dispatched writes have completed
func (l *Ledger) Wait() {
	l.pending.Wait()
}

func (l *Ledger) lineProduct(key domain.LineKey) func(*State) ([]string, error) {
	return func(s *State) ([]string, error) {
		line, ok := s.Line(key)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrLineNotFound, key)
		}
		return []string{line.ProductID}, nil
	}
}

func (l *Ledger) mutate(ctx context.Context, guard func(*State) ([]string, error), apply func(*State) (Command, error)) error {
	l.mu.Lock()

	ids, err := guard(l.state)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	for _, id := range ids {
		if _, busy := l.inflight[id]; busy {
			l.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrInFlight, id)
		}
	}

	cmd, err := apply(l.state)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	flush := l.snapshotLocked()

	if cmd.Empty() {
		l.mu.Unlock()
		flush()
		return nil
	}

	cmd.Channel = l.channel
	held := cmd.ProductIDs()
	for _, id := range held {
		l.inflight[id] = struct{}{}
	}
	l.pending.Add(1)
	l.mu.Unlock()
	flush()

	l.dispatcher.Submit(ctx, cmd, func(err error) {
		if err != nil {
			l.logger.Error("Reservation write failed, local state stands until reload",
				zap.String("kind", string(cmd.Kind)),
				zap.Strings("product_ids", held),
				zap.Error(err),
			)
		}

		l.mu.Lock()
		for _, id := range held {
			delete(l.inflight, id)
		}
		l.mu.Unlock()
		l.pending.Done()
	})

	return nil
}

// snapshotLocked captures the lines for the observers. The returned func
// delivers them and must be called once l.mu is released.
func (l *Ledger) snapshotLocked() func() {
	if len(l.observers) == 0 {
		return func() {}
	}
	l.version++
	version, lines := l.version, l.state.Lines()
	return func() { l.notify(version, lines) }
}

func (l *Ledger) notify(version uint64, lines []domain.CartLine) {
	l.notifyMu.Lock()
	defer l.notifyMu.Unlock()

	if version <= l.notified {
		return
	}
	l.notified = version
	for _, fn := range l.observers {
		fn(lines)
	}
}
