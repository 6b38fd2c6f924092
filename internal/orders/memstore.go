package orders

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is a process-local Store. Each item carries its own lock so
// reservations on different items never serialize.
type MemStore struct {
	mu     sync.RWMutex
	items  map[string]*itemCell
	orders map[string]Order
	codes  map[string]struct{}
}

type itemCell struct {
	mu   sync.Mutex
	item CatalogItem
}

func NewMemStore() *MemStore {
	return &MemStore{
		items:  make(map[string]*itemCell),
		orders: make(map[string]Order),
		codes:  make(map[string]struct{}),
	}
}

func (m *MemStore) cell(id string) (*itemCell, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.items[id]
	return c, ok
}

func (m *MemStore) GetItems(_ context.Context, ids []string) (map[string]CatalogItem, error) {
	out := make(map[string]CatalogItem, len(ids))
	for _, id := range ids {
		c, ok := m.cell(id)
		if !ok {
			continue
		}
		c.mu.Lock()
		out[id] = c.item
		c.mu.Unlock()
	}
	return out, nil
}

func (m *MemStore) ListItems(_ context.Context, shopID string) ([]CatalogItem, error) {
	m.mu.RLock()
	cells := make([]*itemCell, 0, len(m.items))
	for _, c := range m.items {
		cells = append(cells, c)
	}
	m.mu.RUnlock()

	var out []CatalogItem
	for _, c := range cells {
		c.mu.Lock()
		it := c.item
		c.mu.Unlock()
		if it.ShopID == shopID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemStore) PutItem(_ context.Context, it CatalogItem) error {
	if it.Stock < 0 {
		return invalid("stock must be non-negative")
	}
	now := time.Now()
	if it.CreatedAt.IsZero() {
		it.CreatedAt = now
	}
	it.UpdatedAt = now

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.items[it.ID]; ok {
		c.mu.Lock()
		c.item = it
		c.mu.Unlock()
		return nil
	}
	m.items[it.ID] = &itemCell{item: it}
	return nil
}

func (m *MemStore) DecrementStock(_ context.Context, itemID string, qty int) (int, error) {
	c, ok := m.cell(itemID)
	if !ok {
		return 0, ErrNotFound
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.item.Stock < qty {
		return 0, &InsufficientStockError{ItemID: itemID, ItemName: c.item.Name, Requested: qty, Available: c.item.Stock}
	}
	c.item.Stock -= qty
	c.item.UpdatedAt = time.Now()
	return c.item.Stock, nil
}

func (m *MemStore) IncrementStock(_ context.Context, itemID string, qty int) (int, error) {
	c, ok := m.cell(itemID)
	if !ok {
		return 0, ErrNotFound
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.item.Stock += qty
	c.item.UpdatedAt = time.Now()
	return c.item.Stock, nil
}

func (m *MemStore) SetStock(_ context.Context, itemID string, qty int) (CatalogItem, error) {
	c, ok := m.cell(itemID)
	if !ok {
		return CatalogItem{}, ErrNotFound
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.item.Stock = qty
	c.item.UpdatedAt = time.Now()
	return c.item, nil
}

func (m *MemStore) InsertOrder(_ context.Context, o Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.codes[o.Code]; ok {
		return ErrDuplicateCode
	}
	m.codes[o.Code] = struct{}{}
	m.orders[o.ID] = cloneOrder(o)
	return nil
}

func (m *MemStore) GetOrder(_ context.Context, id string) (Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *MemStore) CompareAndSetStatus(_ context.Context, id string, from, to Status) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	if o.Status != from {
		return cloneOrder(o), ErrStatusConflict
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	m.orders[id] = o
	return cloneOrder(o), nil
}

func (m *MemStore) ListOrders(_ context.Context, f OrderFilter) ([]Order, error) {
	want := make(map[Status]bool, len(f.Statuses))
	for _, s := range f.Statuses {
		want[s] = true
	}

	m.mu.RLock()
	var out []Order
	for _, o := range m.orders {
		if f.ShopID != "" && o.ShopID != f.ShopID {
			continue
		}
		if f.CustomerID != "" && o.CustomerID != f.CustomerID {
			continue
		}
		if len(want) > 0 && !want[o.Status] {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if f.NewestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
