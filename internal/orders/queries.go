package orders

import (
	"context"
	"errors"
)

// Get returns an order to the customer who placed it, the owning vendor,
// or an operator.
func (s *Service) Get(ctx context.Context, actor Actor, orderID string) (Order, error) {
	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Order{}, ErrNotFound
		}
		return Order{}, infra("get order", err)
	}
	if !CanView(actor, o) {
		return Order{}, ErrForbidden
	}
	return o, nil
}

// ActiveForShop lists open orders oldest first, the order a kitchen works them.
func (s *Service) ActiveForShop(ctx context.Context, actor Actor, shopID string) ([]Order, error) {
	if !actor.ownsShop(shopID) && actor.Role != RoleOperator {
		return nil, ErrForbidden
	}
	return s.list(ctx, OrderFilter{ShopID: shopID, Statuses: ActiveStatuses})
}

func (s *Service) HistoryForShop(ctx context.Context, actor Actor, shopID string) ([]Order, error) {
	if !actor.ownsShop(shopID) && actor.Role != RoleOperator {
		return nil, ErrForbidden
	}
	return s.list(ctx, OrderFilter{ShopID: shopID, Statuses: HistoryStatuses, NewestFirst: true})
}

func (s *Service) ForCustomer(ctx context.Context, actor Actor) ([]Order, error) {
	if actor.Role != RoleCustomer || actor.UserID == "" {
		return nil, ErrForbidden
	}
	return s.list(ctx, OrderFilter{CustomerID: actor.UserID, NewestFirst: true})
}

func (s *Service) AllActive(ctx context.Context, actor Actor) ([]Order, error) {
	if actor.Role != RoleOperator {
		return nil, ErrForbidden
	}
	return s.list(ctx, OrderFilter{Statuses: ActiveStatuses})
}

// Items is the menu with live stock. Readable by anyone.
func (s *Service) Items(ctx context.Context, shopID string) ([]CatalogItem, error) {
	items, err := s.Store.ListItems(ctx, shopID)
	if err != nil {
		return nil, infra("list items", err)
	}
	return items, nil
}

func (s *Service) list(ctx context.Context, f OrderFilter) ([]Order, error) {
	out, err := s.Store.ListOrders(ctx, f)
	if err != nil {
		return nil, infra("list orders", err)
	}
	return out, nil
}
