package orders

// Kafka headers carried by every order event.
const (
	HeaderChannel      = "x-channel"
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
)

// Partition key = channel, so every event for one subscriber channel keeps its order.
func PartitionKey(channel string) []byte { return []byte(channel) }
