package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-foodcourt-orders/internal/config"
	"github.com/ariefcatur/go-foodcourt-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-foodcourt-orders/internal/kafka"
	"github.com/ariefcatur/go-foodcourt-orders/internal/logx"
	"github.com/ariefcatur/go-foodcourt-orders/internal/notify"
	"github.com/ariefcatur/go-foodcourt-orders/internal/redisx"
	"github.com/joho/godotenv"
)

// notifier is a standalone push gateway: it serves websocket subscribers
// and feeds them from the order event stream the API publishes.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	name := cfg.ServiceName + "-notifier"
	log := logx.New(cfg.LogLevel, name)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if len(cfg.KafkaBrokers) == 0 {
		log.Error("KAFKA_BROKERS is required")
		os.Exit(1)
	}

	registry := notify.NewRegistry()
	router := notify.NewRouter(registry, log)
	relay := &notify.Relay{Router: router, Log: log}
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		relay.Dedup = &redisx.Dedup{Redis: rdb, Service: name}
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, cfg.KafkaTopic, cfg.NotifierWorkers, log)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		log.Info("relay consumer started", "group", cfg.NotifierGroup, "topic", cfg.KafkaTopic, "workers", cfg.NotifierWorkers)
		if err := cons.Start(ctx, relay.Handle); err != nil {
			log.Error("consumer exit", "err", err)
			cancel()
		}
	}()

	gw := notify.NewGateway(registry, log, cfg.WSSendBuffer)
	r := httpx.NewRouter(log)
	httpx.RegisterGateway(r, gw, router)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("gateway listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen", "err", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down notifier")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	cancel()
	// Start returns once in-flight handlers finish and the reader is closed.
	select {
	case <-consumerDone:
	case <-ctx2.Done():
		log.Warn("consumer did not stop before the shutdown deadline")
	}
}
