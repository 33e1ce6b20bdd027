package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalConfig = `
database:
  user: orderflow
  password: secret
  database: orderflow
rabbitmq:
  user: guest
  password: guest
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "localhost", cfg.RabbitMQ.Host)
	assert.Equal(t, 5672, cfg.RabbitMQ.Port)
	assert.Equal(t, "2500", cfg.Workflow.HighValueThreshold)
	assert.Equal(t, "FAIL-PAYMENT", cfg.Workflow.PaymentFailureMarker)
	assert.Equal(t, 3, cfg.Workflow.MaxPublishRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.RetryBase())
	assert.Equal(t, 5*time.Second, cfg.RetryCap())
}

func TestLoadExplicitValues(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, `
database:
  host: db.internal
  port: 5433
  user: orderflow
  password: secret
  database: orderflow
rabbitmq:
  host: mq.internal
  port: 5673
  user: app
  password: secret
workflow:
  high_value_threshold: "9000"
  max_publish_retries: 7
  retry_base_ms: 50
  retry_cap_ms: 2000
dispatch:
  urgent_pool_size: 5
`))
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "9000", cfg.Workflow.HighValueThreshold)
	assert.Equal(t, 7, cfg.Workflow.MaxPublishRetries)
	assert.Equal(t, 50*time.Millisecond, cfg.RetryBase())
	assert.Equal(t, 2*time.Second, cfg.RetryCap())
	assert.Equal(t, 5, cfg.Dispatch.UrgentPoolSize)
}

func TestLoadMissingCredentialsFails(t *testing.T) {
	_, err := LoadFromFile(writeConfig(t, `
database:
  host: localhost
rabbitmq:
  host: localhost
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.user is required")
	assert.Contains(t, err.Error(), "rabbitmq.user is required")
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := LoadFromFile(writeConfig(t, minimalConfig+`
unexpected_section:
  foo: bar
`))
	assert.Error(t, err)
}

func TestLoadRejectsBadRetryBounds(t *testing.T) {
	_, err := LoadFromFile(writeConfig(t, minimalConfig+`
workflow:
  retry_base_ms: 5000
  retry_cap_ms: 100
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry_cap_ms")
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
