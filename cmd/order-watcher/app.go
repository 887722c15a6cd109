package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/craftline/storefront/config"
	"github.com/craftline/storefront/internal/broker/kafka"
	"github.com/craftline/storefront/internal/cache/rediscache"
	"github.com/craftline/storefront/internal/integrations/shopapi"
	"github.com/craftline/storefront/internal/integrations/shopapi/fake"
	"github.com/craftline/storefront/internal/integrations/shopapi/httpv1"
	"github.com/craftline/storefront/internal/services/orderwatch"
	"github.com/craftline/storefront/internal/storage/pgcheckout"
)

func loadConfigFromEnv() (*config.Config, error) {
	return config.LoadConfig(os.Getenv("configPath"))
}

type workerFactories struct {
	newStorage     func(cfg *config.Config) (repo orderwatch.Repository, closeFn func(), err error)
	newProducer    func(cfg *config.Config) orderwatch.Producer
	newRateLimiter func(cfg *config.Config) orderwatch.RateLimiter
	newShopClient  func(cfg *config.Config) shopapi.Client
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (orderwatch.Repository, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgcheckout.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) orderwatch.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) orderwatch.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newShopClient: func(cfg *config.Config) shopapi.Client {
			// "fake" поднимает in-memory бэкенд для демо без внешнего магазина.
			if cfg.Storefront.ShopAPIMode == "fake" || cfg.Storefront.ShopAPIBaseURL == "" {
				return fake.New()
			}
			return httpv1.New(cfg.Storefront.ShopAPIBaseURL)
		},
	}
}

func newWatcher(cfg *config.Config, f workerFactories) (*orderwatch.Watcher, func(), error) {
	topic := cfg.Kafka.OrderUpdatedTopicName
	if topic == "" {
		topic = "order.updated"
	}

	pollInterval := time.Duration(cfg.Storefront.WorkerPollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	batchSize := cfg.Storefront.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	concurrency := cfg.Storefront.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	lease := time.Duration(cfg.Storefront.WorkerLeaseSeconds) * time.Second
	if lease <= 0 {
		lease = 120 * time.Second
	}
	rlPerMin := int64(cfg.Storefront.WorkerRateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 120
	}

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return nil, nil, err
	}

	w := orderwatch.New(repo, f.newShopClient(cfg), f.newProducer(cfg), f.newRateLimiter(cfg), topic).
		WithSettings(pollInterval, batchSize, concurrency, lease, rlPerMin).
		WithPlanner(plannerConfigFromYAML(cfg))

	return w, closeFn, nil
}

func plannerConfigFromYAML(cfg *config.Config) orderwatch.PlannerConfig {
	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return orderwatch.PlannerConfig{
		ActiveMinDelay: sec(cfg.Storefront.WorkerNextCheckActiveMinSeconds),
		ActiveMaxDelay: sec(cfg.Storefront.WorkerNextCheckActiveMaxSeconds),
		Backoff1:       sec(cfg.Storefront.WorkerBackoff1Seconds),
		Backoff2:       sec(cfg.Storefront.WorkerBackoff2Seconds),
		Backoff3:       sec(cfg.Storefront.WorkerBackoff3Seconds),
		Backoff4:       sec(cfg.Storefront.WorkerBackoff4Seconds),
	}
}

func RunOrderWatcher(ctx context.Context, cfg *config.Config, f workerFactories) error {
	w, closeFn, err := newWatcher(cfg, f)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}
	return w.Run(ctx)
}
