package orders

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit_CreatesPaidOrderWithSnapshot(t *testing.T) {
	f := newFixture(t, item("a", "shop-a", 5, 250), item("b", "shop-a", 2, 100))

	o := f.submit(t, alice, "shop-a", line("a", 2), line("b", 1))

	assert.NotEmpty(t, o.ID)
	assert.Len(t, o.Code, 8)
	assert.Equal(t, "alice", o.CustomerID)
	assert.Equal(t, "shop-a", o.ShopID)
	assert.Equal(t, StatusReceived, o.Status)
	assert.Equal(t, PaymentPaid, o.PaymentStatus)
	assert.Equal(t, 600, o.TotalCents)
	assert.Equal(t, []LineItem{
		{ItemID: "a", Name: "item a", Qty: 2, PriceCents: 250},
		{ItemID: "b", Name: "item b", Qty: 1, PriceCents: 100},
	}, o.Items)

	assert.Equal(t, 3, f.stock(t, "a"))
	assert.Equal(t, 1, f.stock(t, "b"))

	stored, err := f.store.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o, stored)
}

func TestSubmit_SnapshotIsDecoupledFromCatalog(t *testing.T) {
	f := newFixture(t, item("a", "shop-a", 5, 250))
	o := f.submit(t, alice, "shop-a", line("a", 1))

	renamed := item("a", "shop-a", 4, 999)
	renamed.Name = "renamed"
	require.NoError(t, f.store.PutItem(context.Background(), renamed))

	got, err := f.svc.Get(context.Background(), alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "item a", got.Items[0].Name)
	assert.Equal(t, 250, got.Items[0].PriceCents)
	assert.Equal(t, 250, got.TotalCents)
}

func TestSubmit_UsesCatalogPriceNotCartPrice(t *testing.T) {
	f := newFixture(t, item("a", "shop-a", 5, 300))

	o := f.submit(t, alice, "shop-a", CartLine{ItemID: "a", Qty: 1, PriceCents: 1})
	assert.Equal(t, 300, o.TotalCents)
}

func TestSubmit_RollsBackWholeCartOnShortfall(t *testing.T) { testSubmitRollsBackWholeCart(t, newFixture) }

func testSubmitRollsBackWholeCart(t *testing.T, mk fixtureFunc) {
	f := mk(t, item("a", "shop-a", 1, 100), item("b", "shop-a", 5, 100))

	_, err := f.svc.Submit(context.Background(), alice, SubmitRequest{
		ShopID: "shop-a",
		Lines:  []CartLine{line("a", 1), line("b", 100)},
	})

	var ise *InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "b", ise.ItemID)
	assert.Equal(t, "item b", ise.ItemName)
	assert.Equal(t, 5, ise.Available)

	assert.Equal(t, 1, f.stock(t, "a"), "reservation of a must be rolled back")
	assert.Equal(t, 5, f.stock(t, "b"))
	assert.Empty(t, f.rec.events(ShopChannel("shop-a")))

	list, err := f.store.ListOrders(context.Background(), OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSubmit_RejectsBeforeTouchingLedger(t *testing.T) {
	cases := []struct {
		name string
		req  SubmitRequest
	}{
		{"empty cart", SubmitRequest{ShopID: "shop-a"}},
		{"missing shop", SubmitRequest{Lines: []CartLine{line("a", 1)}}},
		{"zero quantity", SubmitRequest{ShopID: "shop-a", Lines: []CartLine{line("a", 1), line("b", 0)}}},
		{"negative quantity", SubmitRequest{ShopID: "shop-a", Lines: []CartLine{line("a", -2)}}},
		{"mixed shops", SubmitRequest{ShopID: "shop-a", Lines: []CartLine{
			{ItemID: "a", ShopID: "shop-a", Qty: 1},
			{ItemID: "x", ShopID: "shop-b", Qty: 1},
		}}},
		{"item from another shop", SubmitRequest{ShopID: "shop-a", Lines: []CartLine{line("a", 1), line("x", 1)}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, item("a", "shop-a", 3, 100), item("b", "shop-a", 3, 100), item("x", "shop-b", 3, 100))

			_, err := f.svc.Submit(context.Background(), alice, tc.req)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)

			assert.Equal(t, 3, f.stock(t, "a"))
			assert.Equal(t, 3, f.stock(t, "b"))
			assert.Equal(t, 3, f.stock(t, "x"))
		})
	}
}

func TestSubmit_UnknownOrUnavailableItem(t *testing.T) {
	off := item("off", "shop-a", 9, 100)
	off.Available = false
	f := newFixture(t, item("a", "shop-a", 3, 100), off)

	for _, id := range []string{"ghost", "off"} {
		_, err := f.svc.Submit(context.Background(), alice, SubmitRequest{
			ShopID: "shop-a", Lines: []CartLine{line("a", 1), line(id, 1)},
		})
		var ise *InsufficientStockError
		require.ErrorAs(t, err, &ise, id)
		assert.Equal(t, id, ise.ItemID)
		assert.Equal(t, 0, ise.Available)
	}
	assert.Equal(t, 3, f.stock(t, "a"))
	assert.Equal(t, 9, f.stock(t, "off"))
}

func TestSubmit_OnlyCustomersMaySubmit(t *testing.T) {
	f := newFixture(t, item("a", "shop-a", 3, 100))

	for _, who := range []Actor{vendorA, ops, {Role: RoleCustomer}} {
		_, err := f.svc.Submit(context.Background(), who, SubmitRequest{ShopID: "shop-a", Lines: []CartLine{line("a", 1)}})
		assert.ErrorIs(t, err, ErrForbidden)
	}
	assert.Equal(t, 3, f.stock(t, "a"))
}

func TestSubmit_ConcurrentCartsForLastUnits(t *testing.T) { testConcurrentCartsForLastUnits(t, newFixture) }

func testConcurrentCartsForLastUnits(t *testing.T, mk fixtureFunc) {
	f := mk(t, item("a", "shop-a", 3, 100))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, who := range []Actor{alice, bob} {
		wg.Add(1)
		go func(i int, who Actor) {
			defer wg.Done()
			_, errs[i] = f.svc.Submit(context.Background(), who, SubmitRequest{ShopID: "shop-a", Lines: []CartLine{line("a", 2)}})
		}(i, who)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		var ise *InsufficientStockError
		require.ErrorAs(t, err, &ise)
		assert.Contains(t, []int{1, 3}, ise.Available)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, f.stock(t, "a"))
}

func TestSubmit_AnnouncesToOwningShopOnly(t *testing.T) {
	f := newFixture(t, item("a", "shop-a", 3, 100))

	o := f.submit(t, alice, "shop-a", line("a", 1))

	created := f.rec.of(ShopChannel("shop-a"), EventOrderCreated)
	require.Len(t, created, 1)
	var p OrderCreatedPayload
	require.NoError(t, json.Unmarshal(created[0].Payload, &p))
	assert.Equal(t, o.ID, p.Order.ID)
	assert.Equal(t, o.ID, created[0].CorrelationID)

	assert.Empty(t, f.rec.events(ShopChannel("shop-b")))
	assert.Empty(t, f.rec.of(CustomerChannel("alice"), EventOrderCreated))
}

func TestSubmit_PublishesStockOutWhenSoldOut(t *testing.T) {
	f := newFixture(t, item("a", "shop-a", 2, 100), item("b", "shop-a", 5, 100))

	f.submit(t, alice, "shop-a", line("a", 2), line("b", 1))

	updated := f.rec.of(ShopChannel("shop-a"), EventStockUpdated)
	assert.Len(t, updated, 2)
	out := f.rec.of(ShopChannel("shop-a"), EventStockOut)
	require.Len(t, out, 1)
	var p StockPayload
	require.NoError(t, json.Unmarshal(out[0].Payload, &p))
	assert.Equal(t, StockPayload{ItemID: "a", ShopID: "shop-a", Stock: 0}, p)
}

type failingInsert struct {
	Store
	dupes int // return ErrDuplicateCode this many times first
	err   error
	calls int
}

func (s *failingInsert) InsertOrder(ctx context.Context, o Order) error {
	s.calls++
	if s.calls <= s.dupes {
		return ErrDuplicateCode
	}
	if s.err != nil {
		return s.err
	}
	return s.Store.InsertOrder(ctx, o)
}

func TestSubmit_ReleasesStockWhenOrderCannotBeStored(t *testing.T) {
	f := newFixture(t, item("a", "shop-a", 3, 100), item("b", "shop-a", 3, 100))
	store := &failingInsert{Store: f.store, err: errors.New("connection reset")}
	svc := NewService(store, f.rec, Policy{}, quietLog(), "test")

	_, err := svc.Submit(context.Background(), alice, SubmitRequest{ShopID: "shop-a", Lines: []CartLine{line("a", 2), line("b", 1)}})

	var ie *InfrastructureError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, 3, f.stock(t, "a"))
	assert.Equal(t, 3, f.stock(t, "b"))
	assert.Empty(t, f.rec.of(ShopChannel("shop-a"), EventOrderCreated))
}

func TestSubmit_RegeneratesCodeOnCollision(t *testing.T) {
	f := newFixture(t, item("a", "shop-a", 3, 100))
	store := &failingInsert{Store: f.store, dupes: 2}
	svc := NewService(store, f.rec, Policy{}, quietLog(), "test")

	o, err := svc.Submit(context.Background(), alice, SubmitRequest{ShopID: "shop-a", Lines: []CartLine{line("a", 1)}})
	require.NoError(t, err)
	assert.Equal(t, 3, store.calls)
	assert.Len(t, o.Code, 8)
}

func TestSubmit_GivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newFixture(t, item("a", "shop-a", 3, 100))
	store := &failingInsert{Store: f.store, dupes: maxCodeAttempts}
	svc := NewService(store, f.rec, Policy{}, quietLog(), "test")

	_, err := svc.Submit(context.Background(), alice, SubmitRequest{ShopID: "shop-a", Lines: []CartLine{line("a", 1)}})
	assert.ErrorIs(t, err, ErrDuplicateCode)
	assert.Equal(t, 3, f.stock(t, "a"))
}

func TestAdjustStock_Ownership(t *testing.T) {
	f := newFixture(t, item("a", "shop-a", 3, 100))
	ctx := context.Background()

	_, err := f.svc.AdjustStock(ctx, vendorB, "a", 10)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.AdjustStock(ctx, alice, "a", 10)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.AdjustStock(ctx, vendorA, "ghost", 10)
	assert.ErrorIs(t, err, ErrNotFound)

	it, err := f.svc.AdjustStock(ctx, vendorA, "a", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, it.Stock)
	assert.Len(t, f.rec.of(ShopChannel("shop-a"), EventStockOut), 1)

	_, err = f.svc.AdjustStock(ctx, ops, "a", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, f.stock(t, "a"))
}

func TestSubmit_RejectsOversizedQuantities(t *testing.T) {
	cases := []struct {
		name  string
		lines []CartLine
	}{
		{"single huge line", []CartLine{line("a", math.MaxInt)}},
		{"repeated lines wrap around", []CartLine{line("a", math.MaxInt), line("a", math.MaxInt), line("a", 3)}},
		{"one line over the cap", []CartLine{line("a", maxItemQty+1)}},
		{"merged lines over the cap", []CartLine{line("a", maxItemQty), line("b", 1), line("a", 1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, item("a", "shop-a", 1, 100), item("b", "shop-a", 5, 100))

			_, err := f.svc.Submit(context.Background(), alice, SubmitRequest{ShopID: "shop-a", Lines: tc.lines})
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)

			assert.Equal(t, 1, f.stock(t, "a"))
			assert.Equal(t, 5, f.stock(t, "b"))
			list, err := f.store.ListOrders(context.Background(), OrderFilter{})
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestSubmit_AcceptsQuantityAtTheCap(t *testing.T) {
	f := newFixture(t, item("a", "shop-a", maxItemQty, 100))

	o := f.submit(t, alice, "shop-a", line("a", maxItemQty-1), line("a", 1))
	assert.Equal(t, maxItemQty*100, o.TotalCents)
	assert.Equal(t, 0, f.stock(t, "a"))
}

func TestSubmit_RejectsTotalOverflow(t *testing.T) {
	f := newFixture(t, item("a", "shop-a", 10, math.MaxInt32/2), item("b", "shop-a", 10, math.MaxInt))

	for _, lines := range [][]CartLine{
		{line("a", 3)},
		{line("a", 2), line("a", 1)},
		{line("b", 2)},
	} {
		_, err := f.svc.Submit(context.Background(), alice, SubmitRequest{ShopID: "shop-a", Lines: lines})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
	}
	assert.Equal(t, 10, f.stock(t, "a"))
	assert.Equal(t, 10, f.stock(t, "b"))
}
