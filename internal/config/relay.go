package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// RelayProcess is the subset of configuration the chat relay needs. The
// database is read only to check booking room ownership.
type RelayProcess struct {
	Env       string      `envconfig:"APP_ENV" default:"dev"`
	LogLevel  string      `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string      `envconfig:"LOG_FORMAT" default:"json"`
	JWTSecret string      `envconfig:"JWT_SECRET" required:"true"`
	DB        DBConfig    `envconfig:"DB"`
	Redis     RedisConfig `envconfig:"REDIS"`
	Relay     RelayConfig `envconfig:"RELAY"`
}

// LoadRelay reads the relay configuration from the environment.
func LoadRelay() (RelayProcess, error) {
	var cfg RelayProcess
	if err := envconfig.Process("", &cfg); err != nil {
		return RelayProcess{}, fmt.Errorf("load relay config: %w", err)
	}
	return cfg, nil
}

// WorkerProcess is the configuration of the booking event consumer.
type WorkerProcess struct {
	Env       string         `envconfig:"APP_ENV" default:"dev"`
	LogLevel  string         `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string         `envconfig:"LOG_FORMAT" default:"json"`
	AuditLog  string         `envconfig:"WORKER_AUDIT_LOG" default:"logs/booking.log"`
	RabbitMQ  RabbitMQConfig `envconfig:"RABBITMQ"`
}

// LoadWorker reads the worker configuration from the environment.
func LoadWorker() (WorkerProcess, error) {
	var cfg WorkerProcess
	if err := envconfig.Process("", &cfg); err != nil {
		return WorkerProcess{}, fmt.Errorf("load worker config: %w", err)
	}
	return cfg, nil
}
