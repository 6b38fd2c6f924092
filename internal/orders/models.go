package orders

import "time"

// CatalogItem is a menu entry owned by exactly one shop. Stock is only
// changed through the ledger.
type CatalogItem struct {
	ID         string    `json:"id"`
	ShopID     string    `json:"shop_id"`
	Name       string    `json:"name"`
	PriceCents int       `json:"price_cents"`
	Available  bool      `json:"available"`
	Stock      int       `json:"stock"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Order struct {
	ID            string        `json:"id"`
	Code          string        `json:"code"`
	CustomerID    string        `json:"customer_id"`
	ShopID        string        `json:"shop_id"`
	Items         []LineItem    `json:"items"`
	TotalCents    int           `json:"total_cents"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Status        Status        `json:"order_status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// LineItem is the snapshot stored with an order. It does not follow later
// catalog edits.
type LineItem struct {
	ItemID     string `json:"item_id"`
	Name       string `json:"name"`
	Qty        int    `json:"qty"`
	PriceCents int    `json:"price_cents"`
}

// CartLine is what the client submits. PriceCents is the price the client
// saw when adding the item; the order is priced from the catalog.
type CartLine struct {
	ItemID     string `json:"item_id"`
	ShopID     string `json:"shop_id,omitempty"`
	Qty        int    `json:"qty"`
	PriceCents int    `json:"price_cents,omitempty"`
}

type SubmitRequest struct {
	ShopID string     `json:"shop_id"`
	Lines  []CartLine `json:"items"`
}

type Reservation struct {
	ItemID string
	Qty    int
}

type OrderFilter struct {
	ShopID      string
	CustomerID  string
	Statuses    []Status
	NewestFirst bool
}

func (o Order) reservations() []Reservation {
	out := make([]Reservation, 0, len(o.Items))
	for _, it := range o.Items {
		out = append(out, Reservation{ItemID: it.ItemID, Qty: it.Qty})
	}
	return out
}

func cloneOrder(o Order) Order {
	o.Items = append([]LineItem(nil), o.Items...)
	return o
}
