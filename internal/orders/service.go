package orders

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
)

// Notifier delivers an event to the subscribers of a channel. It is
// fire-and-forget: implementations log their own failures.
type Notifier interface {
	Publish(ctx context.Context, channel string, ev Envelope)
}

type Service struct {
	Store    Store
	Ledger   *Ledger
	Notifier Notifier
	Policy   Policy
	Log      *slog.Logger
	Producer string           // event producer name
	Now      func() time.Time // nil means time.Now
}

func NewService(store Store, n Notifier, policy Policy, log *slog.Logger, producer string) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		Store:    store,
		Ledger:   &Ledger{Store: store, Log: log},
		Notifier: n,
		Policy:   policy,
		Log:      log,
		Producer: producer,
	}
}

const (
	maxCodeAttempts = 3

	// Per item per order, after repeated lines are merged.
	maxItemQty = 999
	// total_cents is an INTEGER column.
	maxTotalCents = math.MaxInt32
)

// Submit turns a cart into a paid order. Either the order is created and
// every line's stock is decremented, or nothing changes.
func (s *Service) Submit(ctx context.Context, actor Actor, req SubmitRequest) (Order, error) {
	if actor.Role != RoleCustomer || actor.UserID == "" {
		return Order{}, ErrForbidden
	}
	if err := validateCart(req); err != nil {
		return Order{}, err
	}

	ids := make([]string, 0, len(req.Lines))
	for _, l := range req.Lines {
		ids = append(ids, l.ItemID)
	}
	catalog, err := s.Store.GetItems(ctx, ids)
	if err != nil {
		return Order{}, infra("load items", err)
	}

	lines := make([]LineItem, 0, len(req.Lines))
	total := 0
	for _, l := range req.Lines {
		it, ok := catalog[l.ItemID]
		if !ok || !it.Available {
			return Order{}, &InsufficientStockError{ItemID: l.ItemID, ItemName: it.Name, Requested: l.Qty, Available: 0}
		}
		if it.ShopID != req.ShopID {
			return Order{}, invalid("item %s does not belong to shop %s", l.ItemID, req.ShopID)
		}
		if l.PriceCents != 0 && l.PriceCents != it.PriceCents {
			s.Log.DebugContext(ctx, "cart price is stale", "item_id", it.ID, "cart_price", l.PriceCents, "price", it.PriceCents)
		}
		lines = append(lines, LineItem{ItemID: it.ID, Name: it.Name, Qty: l.Qty, PriceCents: it.PriceCents})
		if it.PriceCents > (maxTotalCents-total)/l.Qty {
			return Order{}, invalid("order total exceeds %d cents", maxTotalCents)
		}
		total += it.PriceCents * l.Qty
	}

	rs := make([]Reservation, 0, len(lines))
	for _, l := range lines {
		rs = append(rs, Reservation{ItemID: l.ItemID, Qty: l.Qty})
	}
	levels, err := s.Ledger.ReserveAll(ctx, rs)
	if err != nil {
		var short *InsufficientStockError
		if errors.As(err, &short) && short.ItemName == "" {
			short.ItemName = catalog[short.ItemID].Name
		}
		return Order{}, err
	}

	now := s.now()
	o := Order{
		ID:            uuid.NewString(),
		CustomerID:    actor.UserID,
		ShopID:        req.ShopID,
		Items:         lines,
		TotalCents:    total,
		PaymentStatus: PaymentPaid, // payment is a pass-through
		Status:        StatusReceived,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.insert(ctx, &o); err != nil {
		if _, rerr := s.Ledger.ReleaseAll(context.WithoutCancel(ctx), rs); rerr != nil {
			s.Log.ErrorContext(ctx, "CRITICAL: release after failed insert", "order_id", o.ID, "err", rerr)
		}
		return Order{}, infra("insert order", err)
	}

	s.Log.InfoContext(ctx, "order submitted", "order_id", o.ID, "code", o.Code, "shop_id", o.ShopID, "total_cents", o.TotalCents)
	s.publish(ctx, EventOrderCreated, o.ID, OrderCreatedPayload{Order: o}, ShopChannel(o.ShopID))
	s.publishStock(ctx, o.ShopID, levels)
	return o, nil
}

func (s *Service) insert(ctx context.Context, o *Order) error {
	var err error
	for i := 0; i < maxCodeAttempts; i++ {
		o.Code = NewOrderCode()
		if err = s.Store.InsertOrder(ctx, *o); !errors.Is(err, ErrDuplicateCode) {
			return err
		}
	}
	return err
}

func validateCart(req SubmitRequest) error {
	if req.ShopID == "" {
		return invalid("shop_id is required")
	}
	if len(req.Lines) == 0 {
		return invalid("cart is empty")
	}
	perItem := make(map[string]int, len(req.Lines))
	for _, l := range req.Lines {
		if l.ItemID == "" {
			return invalid("item_id is required")
		}
		if l.Qty <= 0 {
			return invalid("quantity for item %s must be positive", l.ItemID)
		}
		if l.Qty > maxItemQty || perItem[l.ItemID] > maxItemQty-l.Qty {
			return invalid("quantity for item %s exceeds %d", l.ItemID, maxItemQty)
		}
		perItem[l.ItemID] += l.Qty
		if l.ShopID != "" && l.ShopID != req.ShopID {
			return invalid("cart mixes shops %s and %s", req.ShopID, l.ShopID)
		}
	}
	return nil
}

// Transition advances an order to the immediate successor of its status.
func (s *Service) Transition(ctx context.Context, actor Actor, orderID string, to Status) (Order, error) {
	if !to.Valid() {
		return Order{}, invalid("unknown status %q", to)
	}
	o, err := s.authorizedOrder(ctx, actor, orderID)
	if err != nil {
		return Order{}, err
	}
	if !CanTransition(o.Status, to) {
		return Order{}, &IllegalTransitionError{From: o.Status, To: to}
	}
	return s.setStatus(ctx, o, to)
}

// Cancel moves a received order to cancelled and credits its stock back.
func (s *Service) Cancel(ctx context.Context, actor Actor, orderID string) (Order, error) {
	o, err := s.authorizedOrder(ctx, actor, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.Status != StatusReceived {
		return Order{}, &IllegalTransitionError{From: o.Status, To: StatusCancelled}
	}
	updated, err := s.setStatus(ctx, o, StatusCancelled)
	if err != nil {
		return Order{}, err
	}
	levels, err := s.Ledger.ReleaseAll(context.WithoutCancel(ctx), o.reservations())
	if err != nil {
		s.Log.ErrorContext(ctx, "restock after cancel incomplete", "order_id", o.ID, "err", err)
	}
	s.publishStock(ctx, o.ShopID, levels)
	return updated, nil
}

func (s *Service) authorizedOrder(ctx context.Context, actor Actor, orderID string) (Order, error) {
	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Order{}, ErrNotFound
		}
		return Order{}, infra("get order", err)
	}
	if !s.Policy.canTransition(actor, o) {
		return Order{}, ErrForbidden
	}
	return o, nil
}

func (s *Service) setStatus(ctx context.Context, o Order, to Status) (Order, error) {
	updated, err := s.Store.CompareAndSetStatus(ctx, o.ID, o.Status, to)
	switch {
	case errors.Is(err, ErrStatusConflict):
		// Someone else moved it first.
		return Order{}, &IllegalTransitionError{From: updated.Status, To: to}
	case errors.Is(err, ErrNotFound):
		return Order{}, ErrNotFound
	case err != nil:
		return Order{}, infra("update status", err)
	}

	s.Log.InfoContext(ctx, "order status changed", "order_id", o.ID, "from", o.Status, "to", to)
	s.publish(ctx, EventOrderStatusChanged, o.ID, StatusChangedPayload{
		OrderID:        updated.ID,
		Code:           updated.Code,
		ShopID:         updated.ShopID,
		CustomerID:     updated.CustomerID,
		PreviousStatus: o.Status,
		Status:         updated.Status,
		PaymentStatus:  updated.PaymentStatus,
	}, CustomerChannel(updated.CustomerID), ShopChannel(updated.ShopID))
	return updated, nil
}

// AdjustStock is the vendor restock path.
func (s *Service) AdjustStock(ctx context.Context, actor Actor, itemID string, qty int) (CatalogItem, error) {
	items, err := s.Store.GetItems(ctx, []string{itemID})
	if err != nil {
		return CatalogItem{}, infra("load item", err)
	}
	it, ok := items[itemID]
	if !ok {
		return CatalogItem{}, ErrNotFound
	}
	if !actor.ownsShop(it.ShopID) && actor.Role != RoleOperator {
		return CatalogItem{}, ErrForbidden
	}
	it, err = s.Ledger.Adjust(ctx, itemID, qty)
	if err != nil {
		return CatalogItem{}, err
	}
	s.Log.InfoContext(ctx, "stock adjusted", "item_id", it.ID, "stock", it.Stock, "by", actor.UserID)
	s.publishStock(ctx, it.ShopID, []StockLevel{{ItemID: it.ID, Stock: it.Stock}})
	return it, nil
}

func (s *Service) publish(ctx context.Context, eventType, correlationID string, payload any, channels ...string) {
	if s.Notifier == nil {
		return
	}
	ev, err := newEnvelope(s.Producer, eventType, correlationID, payload, s.now())
	if err != nil {
		s.Log.ErrorContext(ctx, "encode event", "event_type", eventType, "err", err)
		return
	}
	for _, ch := range channels {
		s.Notifier.Publish(ctx, ch, ev)
	}
}

func (s *Service) publishStock(ctx context.Context, shopID string, levels []StockLevel) {
	for _, l := range levels {
		p := StockPayload{ItemID: l.ItemID, ShopID: shopID, Stock: l.Stock}
		s.publish(ctx, EventStockUpdated, l.ItemID, p, ShopChannel(shopID))
		if l.Stock == 0 {
			s.publish(ctx, EventStockOut, l.ItemID, p, ShopChannel(shopID))
		}
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
