package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventStockUpdated       = "stock.updated"
	EventStockOut           = "stock.out"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order or item id
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	Order Order `json:"order"`
}

type StatusChangedPayload struct {
	OrderID        string        `json:"order_id"`
	Code           string        `json:"code"`
	ShopID         string        `json:"shop_id"`
	CustomerID     string        `json:"customer_id"`
	PreviousStatus Status        `json:"previous_status"`
	Status         Status        `json:"status"`
	PaymentStatus  PaymentStatus `json:"payment_status"`
}

type StockPayload struct {
	ItemID string `json:"item_id"`
	ShopID string `json:"shop_id"`
	Stock  int    `json:"stock"`
}

func newEnvelope(producer, eventType, correlationID string, payload any, now time.Time) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    now.UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}
