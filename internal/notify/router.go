package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/ariefcatur/go-foodcourt-orders/internal/orders"
)

// Frame is what a subscriber receives.
type Frame struct {
	Channel string          `json:"channel"`
	Event   orders.Envelope `json:"event"`
}

// Router fans an event out to the current members of a channel. Delivery
// is at most once per connected subscriber; nobody connected means nobody
// gets it.
type Router struct {
	Registry *Registry
	Log      *slog.Logger

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

func NewRouter(reg *Registry, log *slog.Logger) *Router {
	return &Router{Registry: reg, Log: log}
}

func (r *Router) Publish(ctx context.Context, channel string, ev orders.Envelope) {
	b, err := json.Marshal(Frame{Channel: channel, Event: ev})
	if err != nil {
		r.Log.ErrorContext(ctx, "encode frame", "channel", channel, "event_id", ev.EventID, "err", err)
		return
	}
	r.Deliver(ctx, channel, b)
}

// Deliver sends an encoded frame and returns how many subscribers accepted it.
func (r *Router) Deliver(ctx context.Context, channel string, frame []byte) int {
	n := 0
	for _, s := range r.Registry.Subscribers(channel) {
		if s.Send(frame) {
			n++
			continue
		}
		r.dropped.Add(1)
		r.Log.WarnContext(ctx, "subscriber too slow, frame dropped", "channel", channel, "conn_id", s.ID())
	}
	r.delivered.Add(uint64(n))
	if n == 0 {
		r.Log.DebugContext(ctx, "no subscribers", "channel", channel)
	}
	return n
}

type Stats struct {
	Connections int    `json:"connections"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
}

func (r *Router) Stats() Stats {
	return Stats{
		Connections: r.Registry.Len(),
		Delivered:   r.delivered.Load(),
		Dropped:     r.dropped.Load(),
	}
}

// Fanout publishes to every notifier in turn.
type Fanout []orders.Notifier

func (f Fanout) Publish(ctx context.Context, channel string, ev orders.Envelope) {
	for _, n := range f {
		n.Publish(ctx, channel, ev)
	}
}
