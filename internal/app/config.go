package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/pos/internal/broadcast"
	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/pos/internal/storage/file"
	"github.com/vladislavdragonenkov/pos/internal/storage/memory"
)

// Config описывает настройки запуска сервиса кассы.
type Config struct {
	HTTPAddr         string        `yaml:"http_addr" validate:"required"`
	MetricsAddr      string        `yaml:"metrics_addr" validate:"required"`
	OrdersDir        string        `yaml:"orders_dir" validate:"required"`
	StaticDir        string        `yaml:"static_dir"`
	MaxOrders        int           `yaml:"max_orders" validate:"gt=0"`
	OrderNumberBase  int64         `yaml:"order_number_base" validate:"gt=0"`
	PersistQueueSize int           `yaml:"persist_queue_size" validate:"gt=0"`
	SubscriberBuffer int           `yaml:"subscriber_buffer" validate:"gt=0"`
	AllowedOrigins   []string      `yaml:"allowed_origins" validate:"min=1,dive,required"`
	KafkaBrokers     []string      `yaml:"kafka_brokers" validate:"dive,required"`
	KafkaTopic       string        `yaml:"kafka_topic"`
	LogLevel         string        `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// DefaultConfig возвращает настройки по умолчанию.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:         ":3000",
		MetricsAddr:      ":9090",
		OrdersDir:        "orders",
		MaxOrders:        memory.DefaultMaxOrders,
		OrderNumberBase:  domain.DefaultOrderNumberBase,
		PersistQueueSize: file.DefaultQueueSize,
		SubscriberBuffer: broadcast.DefaultBuffer,
		AllowedOrigins:   []string{"*"},
		KafkaTopic:       kafka.TopicOrderEvents,
		LogLevel:         "info",
		ShutdownTimeout:  5 * time.Second,
	}
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate проверяет значения конфигурации.
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("invalid config: %s fails %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// KafkaEnabled сообщает, настроен ли relay в Kafka.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// LoadConfigFile читает YAML поверх DefaultConfig. Неизвестные ключи считаются ошибкой.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig разбирает YAML поверх DefaultConfig и проверяет результат.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
