package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration, loaded from config/config.yaml.
type Config struct {
	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"database"`
	} `yaml:"database"`

	RabbitMQ struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
	} `yaml:"rabbitmq"`

	Workflow struct {
		// Orders entering PAID above this amount trigger a high-value notification.
		HighValueThreshold string `yaml:"high_value_threshold"`
		// Order ids containing this marker deterministically fail payment.
		PaymentFailureMarker string `yaml:"payment_failure_marker"`
		MaxPublishRetries    int    `yaml:"max_publish_retries"`
		RetryBaseMs          int    `yaml:"retry_base_ms"`
		RetryCapMs           int    `yaml:"retry_cap_ms"`
	} `yaml:"workflow"`

	Dispatch struct {
		UrgentPoolSize   int `yaml:"urgent_pool_size"`
		ExpressPoolSize  int `yaml:"express_pool_size"`
		StandardPoolSize int `yaml:"standard_pool_size"`
	} `yaml:"dispatch"`
}

// LoadFromFile loads the YAML config, applies defaults, and validates
// required fields.
func LoadFromFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(string(b)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}
	if cfg.Workflow.HighValueThreshold == "" {
		cfg.Workflow.HighValueThreshold = "2500"
	}
	if cfg.Workflow.PaymentFailureMarker == "" {
		cfg.Workflow.PaymentFailureMarker = "FAIL-PAYMENT"
	}
	if cfg.Workflow.MaxPublishRetries == 0 {
		cfg.Workflow.MaxPublishRetries = 3
	}
	if cfg.Workflow.RetryBaseMs == 0 {
		cfg.Workflow.RetryBaseMs = 100
	}
	if cfg.Workflow.RetryCapMs == 0 {
		cfg.Workflow.RetryCapMs = 5000
	}
}

func (c *Config) validate() error {
	var problems []string

	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "database.port must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Password == "" {
		problems = append(problems, "database.password is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.database (name) is required")
	}

	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "rabbitmq.port must be in 1..65535")
	}
	if c.RabbitMQ.User == "" {
		problems = append(problems, "rabbitmq.user is required")
	}
	if c.RabbitMQ.Password == "" {
		problems = append(problems, "rabbitmq.password is required")
	}

	if c.Workflow.MaxPublishRetries < 0 {
		problems = append(problems, "workflow.max_publish_retries must be >= 0")
	}
	if c.Workflow.RetryCapMs < c.Workflow.RetryBaseMs {
		problems = append(problems, "workflow.retry_cap_ms must be >= workflow.retry_base_ms")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// RetryBase returns the publish retry base delay.
func (c *Config) RetryBase() time.Duration {
	return time.Duration(c.Workflow.RetryBaseMs) * time.Millisecond
}

// RetryCap returns the publish retry delay cap.
func (c *Config) RetryCap() time.Duration {
	return time.Duration(c.Workflow.RetryCapMs) * time.Millisecond
}
