package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/BearBump/FareWatch/config"
	"github.com/BearBump/FareWatch/internal/broker/kafka"
	"github.com/BearBump/FareWatch/internal/cache/rediscache"
	"github.com/BearBump/FareWatch/internal/cache/tokencache"
	"github.com/BearBump/FareWatch/internal/integrations/flights"
	"github.com/BearBump/FareWatch/internal/integrations/flights/amadeushttp"
	"github.com/BearBump/FareWatch/internal/integrations/flights/fake"
	"github.com/BearBump/FareWatch/internal/queue/redisqueue"
	"github.com/BearBump/FareWatch/internal/services/alerts"
	"github.com/BearBump/FareWatch/internal/services/notify"
	"github.com/BearBump/FareWatch/internal/services/pricecheck"
	"github.com/BearBump/FareWatch/internal/services/scheduler"
	"github.com/BearBump/FareWatch/internal/storage/pgalerts"
)

type workerFactories struct {
	newStorage  func(cfg *config.Config) (repo workerRepository, closeFn func(), err error)
	newProducer func(cfg *config.Config) pricecheck.Producer
	newProvider func(cfg *config.Config, rc *rediscache.RedisCache) flights.Client
	newNotifier func(cfg *config.Config) pricecheck.Notifier
}

// workerRepository — всё, что пайплайну нужно от хранилища алертов.
type workerRepository interface {
	scheduler.Repository
	pricecheck.Repository
	alerts.Repository
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (workerRepository, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgalerts.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) pricecheck.Producer {
			if cfg.Kafka.Host == "" {
				return nil
			}
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newProvider: func(cfg *config.Config, rc *rediscache.RedisCache) flights.Client {
			// Провайдер выбирается один раз на старте. Без креденшелов —
			// fallback на детерминированный fake.
			fw := cfg.FareWatch
			if fw.ProviderMode == "amadeus" && fw.AmadeusClientID != "" {
				auth := amadeushttp.NewAuthClient(fw.AmadeusBaseURL, fw.AmadeusClientID, fw.AmadeusClientSecret)
				tokens := tokencache.New(rc, "amadeus", auth)
				if fw.TokenSafetyMarginSeconds > 0 {
					tokens = tokens.WithSafetyMargin(time.Duration(fw.TokenSafetyMarginSeconds) * time.Second)
				}
				return amadeushttp.New(fw.AmadeusBaseURL, tokens)
			}
			return fake.New()
		},
		newNotifier: func(cfg *config.Config) pricecheck.Notifier {
			fw := cfg.FareWatch
			email := notify.NewSMTPEmailSender(notify.SMTPConfig{
				Host:     fw.SMTPHost,
				Port:     fw.SMTPPort,
				Username: fw.SMTPUsername,
				Password: fw.SMTPPassword,
				From:     fw.SMTPFrom,
			})
			webhook := notify.NewWebhookClient(time.Duration(fw.WebhookTimeoutSeconds) * time.Second)
			return notify.NewDispatcher(email, webhook)
		},
	}
}

func RunFareWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	fw := cfg.FareWatch

	interval := time.Duration(fw.SchedulerIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	freshness := time.Duration(fw.SchedulerFreshnessSeconds) * time.Second
	if freshness <= 0 {
		freshness = time.Hour
	}
	batchSize := fw.SchedulerBatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	concurrency := fw.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	pollInterval := time.Duration(fw.WorkerPollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	lease := time.Duration(fw.WorkerLeaseSeconds) * time.Second
	if lease <= 0 {
		lease = 2 * time.Minute
	}
	maxAttempts := fw.WorkerMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	topic := cfg.Kafka.AlertCheckedTopicName
	if topic == "" {
		topic = "alert.checked"
	}
	currentTTL := time.Duration(fw.CurrentStateTTLSeconds) * time.Second
	if currentTTL <= 0 {
		currentTTL = 10 * time.Minute
	}

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)
	q := redisqueue.New(redisAddr).WithPrefix(fw.QueueKeyPrefix)

	provider := f.newProvider(cfg, rc)
	notifier := f.newNotifier(cfg)
	producer := f.newProducer(cfg)

	sched := scheduler.New(repo, q).
		WithSettings(interval, freshness, batchSize, maxAttempts)

	w := pricecheck.New(q, provider, repo, notifier).
		WithSettings(concurrency, pollInterval, lease)
	if producer != nil {
		w = w.WithEvents(producer, topic)
	}
	if fw.WorkerRateLimitPerMinute > 0 {
		w = w.WithRateLimit(rediscache.NewRateLimiter(redisAddr), int64(fw.WorkerRateLimitPerMinute))
	}
	if fw.WorkerSingleFlight {
		w = w.WithSingleFlight(rc)
	}

	alertsSvc := alerts.New(repo, rc, q, currentTTL)

	errCh := make(chan error, 3)
	go func() { errCh <- sched.Run(ctx) }()
	go func() { errCh <- w.Run(ctx) }()
	go func() {
		errCh <- runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:    fw.WorkerHTTPAddr,
			swaggerPath: os.Getenv("workerSwaggerPath"),
			sched:       sched,
			worker:      w,
			queue:       q,
			alertsSvc:   alertsSvc,
			cfg:         cfg,
		})
	}()

	return <-errCh
}
