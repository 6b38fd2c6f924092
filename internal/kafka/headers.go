package kafka

import "github.com/segmentio/kafka-go"

// HeaderValue returns the first header named key.
func HeaderValue(m kafka.Message, key string) (string, bool) {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value), true
		}
	}
	return "", false
}
