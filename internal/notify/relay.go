package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkax "github.com/ariefcatur/go-foodcourt-orders/internal/kafka"
	"github.com/ariefcatur/go-foodcourt-orders/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
)

type Deduper interface {
	FirstSeen(ctx context.Context, eventID, channel string) (bool, error)
}

// Relay feeds events from the Kafka stream into the local Router.
type Relay struct {
	Router *Router
	Dedup  Deduper // optional
	Log    *slog.Logger
}

// Handle is a kafka.Handler. Malformed messages are logged and skipped so
// they do not block the partition.
func (r *Relay) Handle(ctx context.Context, m kafkago.Message) error {
	channel, ok := kafkax.HeaderValue(m, orders.HeaderChannel)
	if !ok || channel == "" {
		r.Log.WarnContext(ctx, "event without channel header", "offset", m.Offset)
		return nil
	}
	var ev orders.Envelope
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		r.Log.WarnContext(ctx, "undecodable event", "offset", m.Offset, "err", err)
		return nil
	}

	if r.Dedup != nil {
		first, err := r.Dedup.FirstSeen(ctx, ev.EventID, channel)
		if err != nil {
			r.Log.WarnContext(ctx, "dedup check failed", "event_id", ev.EventID, "err", err)
		}
		if !first {
			return nil
		}
	}

	b, err := json.Marshal(Frame{Channel: channel, Event: ev})
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	r.Router.Deliver(ctx, channel, b)
	return nil
}
