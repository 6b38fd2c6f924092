package redisx

import "time"

const (
	// Cached order view: order:{order_id} -> order JSON
	KeyOrder = "order:%s"

	// Dedup of relayed events: dedup:{service}:{event_id}:{channel}
	KeyDedup = "dedup:%s:%s:%s"
)

var (
	TTLOrderCache = 5 * time.Minute
	TTLDedup      = 24 * time.Hour
)
