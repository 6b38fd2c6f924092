package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	HTTPAddr     string
	PostgresDSN  string // empty: in-memory store
	PGMaxConns   int
	RedisAddr    string // empty: no cache, no dedup
	KafkaBrokers []string
	KafkaTopic   string
	ServiceName  string
	LogLevel     string

	OperatorCanTransition bool
	WSSendBuffer          int

	NotifierGroup   string
	NotifierWorkers int
}

func Load() Config {
	return Config{
		HTTPAddr:              getenv("HTTP_ADDR", ":8081"),
		PostgresDSN:           os.Getenv("POSTGRES_DSN"),
		PGMaxConns:            getint("PG_MAX_CONNS", 8),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		KafkaBrokers:          splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:            getenv("KAFKA_TOPIC", "foodcourt.order.events"),
		ServiceName:           getenv("SERVICE_NAME", "foodcourt-api"),
		LogLevel:              getenv("LOG_LEVEL", "info"),
		OperatorCanTransition: getbool("OPERATOR_CAN_TRANSITION", false),
		WSSendBuffer:          getint("WS_SEND_BUFFER", 64),
		NotifierGroup:         getenv("NOTIFIER_GROUP", "foodcourt-notifier"),
		// One worker keeps per-channel order; raise only if ordering does not matter.
		NotifierWorkers: getint("NOTIFIER_WORKERS", 1),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	i, err := strconv.Atoi(os.Getenv(k))
	if err != nil || i <= 0 {
		return def
	}
	return i
}

func getbool(k string, def bool) bool {
	b, err := strconv.ParseBool(os.Getenv(k))
	if err != nil {
		return def
	}
	return b
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
