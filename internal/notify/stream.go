package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	kafkax "github.com/ariefcatur/go-foodcourt-orders/internal/kafka"
	"github.com/ariefcatur/go-foodcourt-orders/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
)

// Stream forwards events to Kafka, keyed by channel, for the gateway relay
// and other downstream consumers.
type Stream struct {
	Producer *kafkax.Producer
	Log      *slog.Logger
}

func (s *Stream) Publish(ctx context.Context, channel string, ev orders.Envelope) {
	b, err := json.Marshal(ev)
	if err != nil {
		s.Log.ErrorContext(ctx, "encode event", "event_id", ev.EventID, "err", err)
		return
	}
	ok := s.Producer.Publish(orders.PartitionKey(channel), b,
		kafkago.Header{Key: orders.HeaderChannel, Value: []byte(channel)},
		kafkago.Header{Key: orders.HeaderEventType, Value: []byte(ev.EventType)},
		kafkago.Header{Key: orders.HeaderEventVersion, Value: []byte(strconv.Itoa(ev.EventVersion))},
	)
	if !ok {
		s.Log.WarnContext(ctx, "event stream full, event dropped", "channel", channel, "event_id", ev.EventID)
	}
}
