package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/FareWatch/config"
	"github.com/BearBump/FareWatch/internal/broker/kafka"
	"github.com/BearBump/FareWatch/internal/cache/rediscache"
	"github.com/BearBump/FareWatch/internal/cache/tokencache"
	"github.com/BearBump/FareWatch/internal/integrations/flights"
	"github.com/BearBump/FareWatch/internal/integrations/flights/amadeushttp"
	"github.com/BearBump/FareWatch/internal/integrations/flights/fake"
	"github.com/BearBump/FareWatch/internal/queue/redisqueue"
	"github.com/BearBump/FareWatch/internal/services/airports"
	"github.com/BearBump/FareWatch/internal/services/alerts"
	"github.com/BearBump/FareWatch/internal/storage/pgalerts"
)

type fareAPIApp struct {
	ctx         context.Context
	cancel      context.CancelFunc
	opts        fareAPIOpts
	svc         *alerts.Service
	airportsSvc *airports.Service
	consumer    *kafka.Consumer
	closeDB     func()
}

func mustBootstrapFareAPI() *fareAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	fw := cfg.FareWatch

	httpAddr := fw.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := fw.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "fare-api"
	}
	topic := cfg.Kafka.AlertCheckedTopicName
	if topic == "" {
		topic = "alert.checked"
	}
	cacheTTL := time.Duration(fw.CurrentStateTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	airportTTL := time.Duration(fw.AirportCacheTTLSeconds) * time.Second

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)
	q := redisqueue.New(redisAddr).WithPrefix(fw.QueueKeyPrefix)

	// Тот же провайдер, что и у воркера: API использует его только
	// для поиска аэропортов.
	var provider flights.Client
	if fw.ProviderMode == "amadeus" && fw.AmadeusClientID != "" {
		auth := amadeushttp.NewAuthClient(fw.AmadeusBaseURL, fw.AmadeusClientID, fw.AmadeusClientSecret)
		tokens := tokencache.New(rc, "amadeus", auth)
		if fw.TokenSafetyMarginSeconds > 0 {
			tokens = tokens.WithSafetyMargin(time.Duration(fw.TokenSafetyMarginSeconds) * time.Second)
		}
		provider = amadeushttp.New(fw.AmadeusBaseURL, tokens)
	} else {
		provider = fake.New()
	}

	svc := alerts.New(st, rc, q, cacheTTL)
	airportsSvc := airports.New(rc, provider, airportTTL)

	var consumer *kafka.Consumer
	if cfg.Kafka.Host != "" {
		brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
		consumer = kafka.NewConsumer(brokers, topic, consumerGroup)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &fareAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: fareAPIOpts{
			httpAddr:      httpAddr,
			swaggerPath:   os.Getenv("swaggerPath"),
			topic:         topic,
			consumerGroup: consumerGroup,
		},
		svc:         svc,
		airportsSvc: airportsSvc,
		consumer:    consumer,
		closeDB:     st.Close,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgalerts.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgalerts.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *fareAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *fareAPIApp) Run() error {
	var consumer kafkaConsumer
	if a.consumer != nil {
		consumer = a.consumer
	}
	return runFareAPI(a.ctx, a.opts, a.svc, a.airportsSvc, consumer)
}
