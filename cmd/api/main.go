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
	"github.com/ariefcatur/go-foodcourt-orders/internal/orders"
	"github.com/ariefcatur/go-foodcourt-orders/internal/postgres"
	"github.com/ariefcatur/go-foodcourt-orders/internal/redisx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logx.New(cfg.LogLevel, cfg.ServiceName)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store
	var store orders.Store
	if cfg.PostgresDSN != "" {
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, int32(cfg.PGMaxConns))
		if err != nil {
			log.Error("db connect", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Error("db migrate", "err", err)
			os.Exit(1)
		}
		store = &orders.Repo{DB: db}
	} else {
		log.Warn("POSTGRES_DSN not set, using in-memory store")
		store = orders.NewMemStore()
	}

	// Notifications: local websocket subscribers, plus the Kafka stream when configured
	registry := notify.NewRegistry()
	router := notify.NewRouter(registry, log)
	notifiers := notify.Fanout{router}

	var prod *kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, 1024, log)
		prod.Start(ctx)
		notifiers = append(notifiers, &notify.Stream{Producer: prod, Log: log})
	}

	svc := orders.NewService(store, notifiers, orders.Policy{OperatorCanTransition: cfg.OperatorCanTransition}, log, cfg.ServiceName)

	oh := &httpx.OrdersHandler{
		Service: svc,
		Gateway: notify.NewGateway(registry, log, cfg.WSSendBuffer),
		Router:  router,
		Log:     log,
	}
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		oh.Cache = &redisx.OrderCache{Redis: rdb, Log: log}
	}

	r := httpx.NewRouter(log)
	oh.Register(r)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("HTTP listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	if prod != nil {
		prod.Close() // flush queued events
		prod.WaitClosed()
	}
	cancel()
}
