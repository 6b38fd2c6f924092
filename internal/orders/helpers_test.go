package orders

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type published struct {
	channel string
	ev      Envelope
}

type recorder struct {
	mu  sync.Mutex
	got []published
}

func (r *recorder) Publish(_ context.Context, channel string, ev Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, published{channel: channel, ev: ev})
}

// events returns the event types published to channel, in order.
func (r *recorder) events(channel string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, p := range r.got {
		if p.channel == channel {
			out = append(out, p.ev.EventType)
		}
	}
	return out
}

func (r *recorder) of(channel, eventType string) []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Envelope
	for _, p := range r.got {
		if p.channel == channel && p.ev.EventType == eventType {
			out = append(out, p.ev)
		}
	}
	return out
}

var (
	alice   = Actor{UserID: "alice", Role: RoleCustomer}
	bob     = Actor{UserID: "bob", Role: RoleCustomer}
	vendorA = Actor{UserID: "vera", Role: RoleVendor, ShopID: "shop-a"}
	vendorB = Actor{UserID: "vic", Role: RoleVendor, ShopID: "shop-b"}
	ops     = Actor{UserID: "olga", Role: RoleOperator}
)

func quietLog() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fixture struct {
	svc   *Service
	store Store
	rec   *recorder
}

type fixtureFunc func(t *testing.T, items ...CatalogItem) *fixture

func newFixture(t *testing.T, items ...CatalogItem) *fixture {
	t.Helper()
	return newFixtureOn(t, NewMemStore(), items...)
}

func newFixtureOn(t *testing.T, store Store, items ...CatalogItem) *fixture {
	t.Helper()
	for _, it := range items {
		require.NoError(t, store.PutItem(context.Background(), it))
	}
	rec := &recorder{}
	svc := NewService(store, rec, Policy{}, quietLog(), "test")

	// Strictly increasing clock so FIFO ordering is deterministic.
	var mu sync.Mutex
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	return &fixture{svc: svc, store: store, rec: rec}
}

func item(id, shop string, stock, price int) CatalogItem {
	return CatalogItem{ID: id, ShopID: shop, Name: "item " + id, PriceCents: price, Available: true, Stock: stock}
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	items, err := f.store.GetItems(context.Background(), []string{id})
	require.NoError(t, err)
	it, ok := items[id]
	require.True(t, ok, "item %s missing", id)
	return it.Stock
}

func (f *fixture) submit(t *testing.T, who Actor, shop string, lines ...CartLine) Order {
	t.Helper()
	o, err := f.svc.Submit(context.Background(), who, SubmitRequest{ShopID: shop, Lines: lines})
	require.NoError(t, err)
	return o
}

func line(id string, qty int) CartLine { return CartLine{ItemID: id, Qty: qty} }
