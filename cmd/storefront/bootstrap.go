package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/craftline/storefront/config"
	"github.com/craftline/storefront/internal/api/storefront_api"
	"github.com/craftline/storefront/internal/broker/kafka"
	"github.com/craftline/storefront/internal/cache/rediscache"
	"github.com/craftline/storefront/internal/integrations/shopapi"
	"github.com/craftline/storefront/internal/integrations/shopapi/fake"
	"github.com/craftline/storefront/internal/integrations/shopapi/httpv1"
	"github.com/craftline/storefront/internal/services/cart"
	"github.com/craftline/storefront/internal/services/checkout"
	"github.com/craftline/storefront/internal/services/orders"
	"github.com/craftline/storefront/internal/services/session"
	"github.com/craftline/storefront/internal/storage/pgcheckout"
)

type storefrontApp struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   storefrontOpts
	deps   storefrontDeps

	consumers []*kafka.Consumer
	closeDB   func()
}

func mustBootstrapStorefront() *storefrontApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.Storefront.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.Storefront.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "storefront"
	}
	cartClearedTopic := cfg.Kafka.CartClearedTopicName
	if cartClearedTopic == "" {
		cartClearedTopic = "cart.cleared"
	}
	orderUpdatedTopic := cfg.Kafka.OrderUpdatedTopicName
	if orderUpdatedTopic == "" {
		orderUpdatedTopic = "order.updated"
	}

	sessionTTL := time.Duration(cfg.Storefront.SessionTTLSeconds) * time.Second
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	cartTTL := time.Duration(cfg.Storefront.CartViewTTLSeconds) * time.Second
	if cartTTL <= 0 {
		cartTTL = time.Minute
	}
	orderTTL := time.Duration(cfg.Storefront.OrderViewTTLSeconds) * time.Second
	if orderTTL <= 0 {
		orderTTL = 20 * time.Second
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)

	api := newShopAPIClient(cfg)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)
	cartClearedConsumer := kafka.NewConsumer(brokers, cartClearedTopic, consumerGroup)
	orderUpdatedConsumer := kafka.NewConsumer(brokers, orderUpdatedTopic, consumerGroup)

	sessions := session.New(api, rc, sessionTTL)
	carts := cart.New(api, rc, cartTTL)
	co := checkout.New(api, st, producer, carts, cartClearedTopic, nil)
	ord := orders.New(api, st, rc, orderTTL)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &storefrontApp{
		ctx:    ctx,
		cancel: cancel,
		opts: storefrontOpts{
			httpAddr:          httpAddr,
			swaggerPath:       swaggerPath,
			cartClearedTopic:  cartClearedTopic,
			orderUpdatedTopic: orderUpdatedTopic,
			consumerGroup:     consumerGroup,
		},
		deps: storefrontDeps{
			api:                  storefront_api.New(sessions, carts, co, ord),
			carts:                carts,
			orders:               ord,
			cartClearedConsumer:  cartClearedConsumer,
			orderUpdatedConsumer: orderUpdatedConsumer,
		},
		consumers: []*kafka.Consumer{cartClearedConsumer, orderUpdatedConsumer},
		closeDB:   st.Close,
	}
}

// newShopAPIClient выбирает реализацию бэкенда магазина. "fake" поднимает
// in-memory бэкенд для демо без внешнего магазина.
func newShopAPIClient(cfg *config.Config) shopapi.Client {
	if cfg.Storefront.ShopAPIMode == "fake" || cfg.Storefront.ShopAPIBaseURL == "" {
		return fake.New()
	}
	return httpv1.New(cfg.Storefront.ShopAPIBaseURL)
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgcheckout.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgcheckout.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *storefrontApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	for _, c := range a.consumers {
		_ = c.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *storefrontApp) Run() error {
	return runStorefront(a.ctx, a.opts, a.deps)
}
