package orders

import (
	"context"
	"errors"
	"log/slog"
	"math"
)

// Stock columns are INTEGER.
const maxStock = math.MaxInt32

// Ledger owns every stock mutation.
type Ledger struct {
	Store Store
	Log   *slog.Logger
}

type StockLevel struct {
	ItemID string
	Stock  int
}

// Reserve decrements stock for one item if at least qty is available.
// A missing item is reported as insufficient stock with nothing available.
func (l *Ledger) Reserve(ctx context.Context, itemID string, qty int) (int, error) {
	if qty <= 0 {
		return 0, invalid("quantity for item %s must be positive", itemID)
	}
	if qty > maxStock {
		return 0, invalid("quantity for item %s exceeds %d", itemID, maxStock)
	}
	left, err := l.Store.DecrementStock(ctx, itemID, qty)
	if err == nil {
		return left, nil
	}
	var short *InsufficientStockError
	switch {
	case errors.As(err, &short):
		return 0, short
	case errors.Is(err, ErrNotFound):
		return 0, &InsufficientStockError{ItemID: itemID, Requested: qty, Available: 0}
	}
	return 0, infra("reserve stock", err)
}

// Adjust sets stock unconditionally. Last writer wins.
func (l *Ledger) Adjust(ctx context.Context, itemID string, qty int) (CatalogItem, error) {
	if qty < 0 || qty > maxStock {
		return CatalogItem{}, invalid("stock must be between 0 and %d", maxStock)
	}
	it, err := l.Store.SetStock(ctx, itemID, qty)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return CatalogItem{}, ErrNotFound
		}
		return CatalogItem{}, infra("adjust stock", err)
	}
	return it, nil
}

// ReserveAll reserves a batch as one unit: on the first failure every
// reservation already taken is credited back, newest first, and the
// failure is returned.
func (l *Ledger) ReserveAll(ctx context.Context, rs []Reservation) ([]StockLevel, error) {
	rs, err := mergeReservations(rs)
	if err != nil {
		return nil, err
	}
	done := make([]Reservation, 0, len(rs))
	levels := make([]StockLevel, 0, len(rs))
	for _, r := range rs {
		left, err := l.Reserve(ctx, r.ItemID, r.Qty)
		if err != nil {
			l.rollback(ctx, done)
			return nil, err
		}
		done = append(done, r)
		levels = append(levels, StockLevel{ItemID: r.ItemID, Stock: left})
	}
	return levels, nil
}

// ReleaseAll credits the quantities back. It keeps going after a failure
// and returns the first error.
func (l *Ledger) ReleaseAll(ctx context.Context, rs []Reservation) ([]StockLevel, error) {
	rs, err := mergeReservations(rs)
	if err != nil {
		return nil, err
	}
	levels := make([]StockLevel, 0, len(rs))
	var first error
	for _, r := range rs {
		left, err := l.Store.IncrementStock(ctx, r.ItemID, r.Qty)
		if err != nil {
			l.Log.ErrorContext(ctx, "release stock failed", "item_id", r.ItemID, "qty", r.Qty, "err", err)
			if first == nil {
				first = infra("release stock", err)
			}
			continue
		}
		levels = append(levels, StockLevel{ItemID: r.ItemID, Stock: left})
	}
	return levels, first
}

func (l *Ledger) rollback(ctx context.Context, done []Reservation) {
	// Compensation must not be cut short by the caller going away.
	ctx = context.WithoutCancel(ctx)
	for i := len(done) - 1; i >= 0; i-- {
		r := done[i]
		if _, err := l.Store.IncrementStock(ctx, r.ItemID, r.Qty); err != nil {
			l.Log.ErrorContext(ctx, "CRITICAL: stock compensation failed", "item_id", r.ItemID, "qty", r.Qty, "err", err)
		}
	}
}

// mergeReservations sums quantities per item, keeping first-seen order.
// Each quantity must be positive and every sum must stay within maxStock.
func mergeReservations(rs []Reservation) ([]Reservation, error) {
	idx := make(map[string]int, len(rs))
	out := make([]Reservation, 0, len(rs))
	for _, r := range rs {
		if r.Qty <= 0 {
			return nil, invalid("quantity for item %s must be positive", r.ItemID)
		}
		i, ok := idx[r.ItemID]
		if !ok {
			i = len(out)
			idx[r.ItemID] = i
			out = append(out, Reservation{ItemID: r.ItemID})
		}
		if r.Qty > maxStock-out[i].Qty {
			return nil, invalid("quantity for item %s exceeds %d", r.ItemID, maxStock)
		}
		out[i].Qty += r.Qty
	}
	return out, nil
}
