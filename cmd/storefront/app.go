package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/craftline/storefront/internal/api/storefront_api"
	"github.com/craftline/storefront/internal/broker/messages"
	"github.com/craftline/storefront/internal/services/cart"
	"github.com/craftline/storefront/internal/services/orders"
)

type storefrontOpts struct {
	httpAddr    string
	swaggerPath string

	cartClearedTopic  string
	orderUpdatedTopic string
	consumerGroup     string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

type storefrontDeps struct {
	api    *storefront_api.StorefrontAPI
	carts  *cart.Service
	orders *orders.Service

	cartClearedConsumer  kafkaConsumer
	orderUpdatedConsumer kafkaConsumer
}

func runStorefront(ctx context.Context, opts storefrontOpts, deps storefrontDeps) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, opts.swaggerPath)
	})
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger.json"),
	))

	r.Route("/api/v1", deps.api.Routes)

	if deps.cartClearedConsumer != nil {
		go func() {
			slog.Info("kafka consumer started", "topic", opts.cartClearedTopic, "group", opts.consumerGroup)
			_ = deps.cartClearedConsumer.Consume(ctx, func(_key, value []byte) error {
				var m messages.CartCleared
				if err := json.Unmarshal(value, &m); err != nil {
					return err
				}
				return deps.carts.Invalidate(ctx, m.UserID)
			})
		}()
	}
	if deps.orderUpdatedConsumer != nil {
		go func() {
			slog.Info("kafka consumer started", "topic", opts.orderUpdatedTopic, "group", opts.consumerGroup)
			_ = deps.orderUpdatedConsumer.Consume(ctx, func(_key, value []byte) error {
				var m messages.OrderUpdated
				if err := json.Unmarshal(value, &m); err != nil {
					return err
				}
				return deps.orders.ApplyKafkaUpdate(ctx, m)
			})
		}()
	}

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	return srv.Serve(lis)
}
