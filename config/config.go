package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	FareWatch FareWatchConfig `yaml:"farewatch"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                  string `yaml:"host"`
	Port                  int    `yaml:"port"`
	AlertCheckedTopicName string `yaml:"alert_checked_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type FareWatchConfig struct {
	HTTPAddr               string `yaml:"http_addr"`
	WorkerHTTPAddr         string `yaml:"worker_http_addr"`
	KafkaConsumerGroup     string `yaml:"kafka_consumer_group"`
	CurrentStateTTLSeconds int    `yaml:"current_state_ttl_seconds"`

	SchedulerIntervalSeconds  int `yaml:"scheduler_interval_seconds"`
	SchedulerFreshnessSeconds int `yaml:"scheduler_freshness_seconds"`
	SchedulerBatchSize        int `yaml:"scheduler_batch_size"`

	WorkerConcurrency         int `yaml:"worker_concurrency"`
	WorkerPollIntervalSeconds int `yaml:"worker_poll_interval_seconds"`
	WorkerLeaseSeconds        int `yaml:"worker_lease_seconds"`
	WorkerMaxAttempts         int `yaml:"worker_max_attempts"`
	WorkerRateLimitPerMinute  int `yaml:"worker_rate_limit_per_minute"`
	// Опциональный per-alert lock против дублей нотификаций
	// при перекрывающихся проверках одного алерта.
	WorkerSingleFlight bool `yaml:"worker_single_flight"`

	QueueKeyPrefix string `yaml:"queue_key_prefix"`

	// "fake" | "amadeus" — выбирается один раз на старте процесса.
	ProviderMode string `yaml:"provider_mode"`

	AmadeusBaseURL           string `yaml:"amadeus_base_url"`
	AmadeusClientID          string `yaml:"amadeus_client_id"`
	AmadeusClientSecret      string `yaml:"amadeus_client_secret"`
	TokenSafetyMarginSeconds int    `yaml:"token_safety_margin_seconds"`

	AirportCacheTTLSeconds int `yaml:"airport_cache_ttl_seconds"`

	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUsername string `yaml:"smtp_username"`
	SMTPPassword string `yaml:"smtp_password"`
	SMTPFrom     string `yaml:"smtp_from"`

	WebhookTimeoutSeconds int `yaml:"webhook_timeout_seconds"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
