package orders

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Store is the persistence collaborator. Implementations must make
// DecrementStock a single conditional write and CompareAndSetStatus a
// compare-and-set on the current status.
type Store interface {
	GetItems(ctx context.Context, ids []string) (map[string]CatalogItem, error)
	ListItems(ctx context.Context, shopID string) ([]CatalogItem, error)
	PutItem(ctx context.Context, it CatalogItem) error

	// DecrementStock returns the remaining stock, ErrNotFound, or
	// *InsufficientStockError without mutating anything.
	DecrementStock(ctx context.Context, itemID string, qty int) (int, error)
	IncrementStock(ctx context.Context, itemID string, qty int) (int, error)
	SetStock(ctx context.Context, itemID string, qty int) (CatalogItem, error)

	// InsertOrder returns ErrDuplicateCode if the code is taken.
	InsertOrder(ctx context.Context, o Order) error
	GetOrder(ctx context.Context, id string) (Order, error)
	// CompareAndSetStatus returns ErrStatusConflict together with the
	// current order when its status is no longer from.
	CompareAndSetStatus(ctx context.Context, id string, from, to Status) (Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]Order, error)
}

const orderCodeLen = 8

// NewOrderCode returns a short human-readable code, e.g. "3FA8C21B".
func NewOrderCode() string {
	s := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(s[:orderCodeLen])
}
