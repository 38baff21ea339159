package kafka

import "time"

// Config содержит конфигурацию Kafka для publisher-ов сервиса
type Config struct {
	// Enabled публиковать ли потерянные уведомления в DLQ
	Enabled bool `env:"KAFKA_ENABLED" envDefault:"false"`
	// Brokers список брокеров через запятую: "broker1:9092,broker2:9092"
	//   - локально (go run): localhost:19092
	//   - в Docker: kafka:9092
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:19092"`
	// DLQTopic топик для уведомлений, которые не удалось доставить
	DLQTopic string `env:"KAFKA_NOTIFICATION_DLQ_TOPIC" envDefault:"payrelay.notification.dlq"`
	// RedriveGroupID consumer group команды redrive
	RedriveGroupID string `env:"KAFKA_REDRIVE_GROUP_ID" envDefault:"payrelay-redrive"`
	// WriteTimeout таймаут записи одного сообщения
	WriteTimeout time.Duration `env:"KAFKA_WRITE_TIMEOUT" envDefault:"5s"`
}

// DefaultConfig возвращает конфигурацию с дефолтами для локальной разработки
func DefaultConfig() Config {
	return Config{
		Brokers:        []string{"localhost:19092"},
		DLQTopic:       "payrelay.notification.dlq",
		RedriveGroupID: "payrelay-redrive",
		WriteTimeout:   5 * time.Second,
	}
}
