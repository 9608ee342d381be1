package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	yml := `
database:
  host: localhost
  port: 5432
  username: admin
  password: admin
  name: farewatch
  ssl_mode: disable
kafka:
  host: localhost
  port: 9092
  alert_checked_topic_name: alert.checked
redis:
  host: localhost
  port: 6379
farewatch:
  http_addr: ":8080"
  worker_http_addr: ":8082"
  kafka_consumer_group: fare-api
  scheduler_interval_seconds: 3600
  scheduler_freshness_seconds: 3600
  scheduler_batch_size: 50
  worker_concurrency: 10
  worker_max_attempts: 3
  worker_single_flight: true
  provider_mode: fake
  smtp_host: mail.local
  smtp_port: 587
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "localhost", cfg.Database.Host)
	require.Equal(t, 5432, cfg.Database.Port)
	require.Equal(t, "farewatch", cfg.Database.DBName)
	require.Equal(t, "alert.checked", cfg.Kafka.AlertCheckedTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, ":8082", cfg.FareWatch.WorkerHTTPAddr)
	require.Equal(t, 3600, cfg.FareWatch.SchedulerIntervalSeconds)
	require.Equal(t, 50, cfg.FareWatch.SchedulerBatchSize)
	require.Equal(t, 3, cfg.FareWatch.WorkerMaxAttempts)
	require.True(t, cfg.FareWatch.WorkerSingleFlight)
	require.Equal(t, "fake", cfg.FareWatch.ProviderMode)
	require.Equal(t, 587, cfg.FareWatch.SMTPPort)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	require.Error(t, err)
}

func TestLoadConfig_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
}
