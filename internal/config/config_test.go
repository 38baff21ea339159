package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var configKeys = []string{
	"APP_ENV", "SERVICE_NAME", "HTTP_ADDR", "SHUTDOWN_TIMEOUT", "HTTP_MAX_BODY_BYTES", "LOG_LEVEL", "LOG_FORMAT",
	"STORAGE_DRIVER", "DATABASE_PATH", "POSTGRES_DSN",
	"PAYPAL_API_BASE", "PAYPAL_CLIENT_ID", "PAYPAL_CLIENT_SECRET", "PAYPAL_WEBHOOK_ID", "PAYPAL_VERIFY_MODE",
	"PAYPAL_MAX_TRANSMISSION_AGE", "PAYPAL_CERT_HOSTS", "PAYPAL_VERIFY_TIMEOUT",
	"TELEGRAM_ENABLED", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "TELEGRAM_RETRY_MAX_ATTEMPTS",
	"TELEGRAM_RETRY_BACKOFF_BASE", "ALERT_TELEGRAM_CHAT_ID", "TEMPLATES_DIR",
	"RATE_LIMIT_STORE", "RATE_LIMIT_WINDOW", "RATE_LIMIT_MAX_REQUESTS", "RATE_LIMIT_SCOPE", "RATE_LIMIT_TRUST_PROXY",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"LOG_DIR", "LOG_FILE_NAME", "LOG_MAX_SIZE",
	"KAFKA_ENABLED", "KAFKA_BROKERS", "KAFKA_NOTIFICATION_DLQ_TOPIC", "KAFKA_REDRIVE_GROUP_ID", "KAFKA_WRITE_TIMEOUT",
	"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_SAMPLING_RATIO", "METRICS_ENABLED",
}

// cleanEnv убирает все переменные конфигурации и задаёт минимально необходимые
func cleanEnv(t *testing.T, appEnv string) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv("APP_ENV", appEnv)
	t.Setenv("PAYPAL_WEBHOOK_ID", "WH-ID")
	t.Setenv("PAYPAL_CLIENT_ID", "client-id")
	t.Setenv("PAYPAL_CLIENT_SECRET", "client-secret")
}

func TestLoad_LocalDefaults(t *testing.T) {
	cleanEnv(t, "local")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, EnvLocal, cfg.AppEnv)
	assert.Equal(t, "127.0.0.1:8080", cfg.HTTPAddr)
	assert.Equal(t, StorageSQLite, cfg.StorageDriver)
	assert.Equal(t, "./data/payrelay.db", cfg.DatabasePath)
	assert.Equal(t, VerifyModeAPI, cfg.PayPalVerifyMode)
	assert.Equal(t, 15*time.Minute, cfg.PayPalMaxTransmissionAge)
	assert.Equal(t, []string{"paypal.com"}, cfg.PayPalCertHosts)
	assert.False(t, cfg.TelegramEnabled)
	assert.Equal(t, 1, cfg.TelegramRetryMaxAttempts)
	assert.Equal(t, RateLimitStoreMemory, cfg.RateLimitStore)
	assert.Equal(t, time.Hour, cfg.RateLimitWindow)
	assert.Equal(t, int64(100), cfg.RateLimitMaxRequests)
	assert.Equal(t, "ip", cfg.RateLimitScope)
	assert.False(t, cfg.RateLimitTrustProxy)
	assert.Equal(t, int64(5*1024*1024), cfg.LogMaxSize)
	assert.Equal(t, "logs/payrelay.log", cfg.LogFilePath())
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"localhost:19092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.MetricsEnabled)
}

func TestLoad_DockerDefaults(t *testing.T) {
	cleanEnv(t, "docker")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, EnvDocker, cfg.AppEnv)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr)
	assert.Equal(t, "/data/payrelay.db", cfg.DatabasePath)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, "/var/log/payrelay/payrelay.log", cfg.LogFilePath())
	assert.Equal(t, []string{"kafka:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_Overrides(t *testing.T) {
	cleanEnv(t, "local")
	t.Setenv("STORAGE_DRIVER", "Postgres")
	t.Setenv("POSTGRES_DSN", "postgres://u:p@db:5432/payrelay")
	t.Setenv("PAYPAL_VERIFY_MODE", "cert")
	t.Setenv("PAYPAL_CERT_HOSTS", "paypal.com, paypalobjects.com ,")
	t.Setenv("TELEGRAM_ENABLED", "true")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123456:ABCDEF")
	t.Setenv("TELEGRAM_CHAT_ID", "-100500")
	t.Setenv("TELEGRAM_RETRY_MAX_ATTEMPTS", "3")
	t.Setenv("RATE_LIMIT_STORE", "redis")
	t.Setenv("RATE_LIMIT_WINDOW", "1m")
	t.Setenv("RATE_LIMIT_MAX_REQUESTS", "5")
	t.Setenv("RATE_LIMIT_SCOPE", "global")
	t.Setenv("RATE_LIMIT_TRUST_PROXY", "true")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, StoragePostgres, cfg.StorageDriver)
	assert.Equal(t, VerifyModeCert, cfg.PayPalVerifyMode)
	assert.Equal(t, []string{"paypal.com", "paypalobjects.com"}, cfg.PayPalCertHosts)
	assert.True(t, cfg.TelegramEnabled)
	assert.Equal(t, 3, cfg.TelegramRetryMaxAttempts)
	assert.Equal(t, RateLimitStoreRedis, cfg.RateLimitStore)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, int64(5), cfg.RateLimitMaxRequests)
	assert.Equal(t, "global", cfg.RateLimitScope)
	assert.True(t, cfg.RateLimitTrustProxy)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"app env":              {"APP_ENV": "prod"},
		"duration":             {"SHUTDOWN_TIMEOUT": "ten seconds"},
		"bool":                 {"TELEGRAM_ENABLED": "maybe"},
		"int":                  {"RATE_LIMIT_MAX_REQUESTS": "many"},
		"storage driver":       {"STORAGE_DRIVER": "mysql"},
		"verify mode":          {"PAYPAL_VERIFY_MODE": "trust"},
		"telegram without bot": {"TELEGRAM_ENABLED": "true", "TELEGRAM_CHAT_ID": "1"},
		"rate limit store":     {"RATE_LIMIT_STORE": "memcached"},
		"rate limit scope":     {"RATE_LIMIT_SCOPE": "user"},
		"zero window":          {"RATE_LIMIT_WINDOW": "0s"},
		"zero max requests":    {"RATE_LIMIT_MAX_REQUESTS": "0"},
		"sqlite store on pg":   {"RATE_LIMIT_STORE": "sqlite", "STORAGE_DRIVER": "postgres"},
		"sampling ratio":       {"OTEL_SAMPLING_RATIO": "2"},
		"zero attempts":        {"TELEGRAM_RETRY_MAX_ATTEMPTS": "0"},
		"kafka timeout":        {"KAFKA_WRITE_TIMEOUT": "soon"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			cleanEnv(t, "local")
			for k, v := range env {
				t.Setenv(k, v)
			}

			_, err := Load()

			require.Error(t, err)
		})
	}
}

func TestLoad_WebhookIDRequired(t *testing.T) {
	cleanEnv(t, "local")
	os.Unsetenv("PAYPAL_WEBHOOK_ID")

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "PAYPAL_WEBHOOK_ID")
}

func TestLoad_CertModeWithoutCredentials(t *testing.T) {
	cleanEnv(t, "local")
	os.Unsetenv("PAYPAL_CLIENT_ID")
	os.Unsetenv("PAYPAL_CLIENT_SECRET")
	t.Setenv("PAYPAL_VERIFY_MODE", "cert")

	_, err := Load()

	require.NoError(t, err)
}

func TestConfig_LogMasksSecrets(t *testing.T) {
	cleanEnv(t, "local")
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("POSTGRES_DSN", "postgres://payrelay:s3cr3t@db:5432/payrelay")
	t.Setenv("TELEGRAM_ENABLED", "true")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123456789:AAEkeA6oFQrQNBpl6DYekxK")
	t.Setenv("TELEGRAM_CHAT_ID", "-100500")
	cfg, err := Load()
	require.NoError(t, err)

	core, logs := observer.New(zapcore.InfoLevel)
	cfg.Log(zap.New(core))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "postgres://payrelay:***@db:5432/payrelay", fields["POSTGRES_DSN"])
	assert.Equal(t, "1234***ekxK", fields["TELEGRAM_BOT_TOKEN"])
	assert.NotContains(t, fields, "PAYPAL_CLIENT_SECRET")
}

func TestMask(t *testing.T) {
	assert.Equal(t, "postgres://u:***@h:5432/db", maskDSN("postgres://u:p@h:5432/db"))
	assert.Equal(t, "postgres://u@h/db", maskDSN("postgres://u@h/db"))
	assert.Equal(t, "host=db user=u", maskDSN("host=db user=u"))
	assert.Equal(t, "", maskToken(""))
	assert.Equal(t, "***", maskToken("short"))
}
