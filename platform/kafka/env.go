package kafka

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// LoadEnv заполняет cfg из переменных окружения (caarlos0/env теги)
func LoadEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse kafka env: %w", err)
	}
	if cfg.Enabled && len(cfg.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED=true")
	}
	if cfg.Enabled && cfg.DLQTopic == "" {
		return fmt.Errorf("KAFKA_NOTIFICATION_DLQ_TOPIC is required when KAFKA_ENABLED=true")
	}
	return nil
}
