package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/app"
	"github.com/vladislavdragonenkov/pos/internal/version"
)

const (
	envConfigFile       = "POS_CONFIG"
	envHTTPAddr         = "POS_HTTP_ADDR"
	envMetricsAddr      = "POS_METRICS_ADDR"
	envOrdersDir        = "POS_ORDERS_DIR"
	envStaticDir        = "POS_STATIC_DIR"
	envMaxOrders        = "POS_MAX_ORDERS"
	envOrderBase        = "POS_ORDER_BASE"
	envPersistQueue     = "POS_PERSIST_QUEUE"
	envSubscriberBuffer = "POS_SUBSCRIBER_BUFFER"
	envLogLevel         = "POS_LOG_LEVEL"
	envAllowedOrigins   = "POS_ALLOWED_ORIGINS"
	envShutdownTimeout  = "POS_SHUTDOWN_TIMEOUT"
	envKafkaBrokers     = "KAFKA_BROKERS"
	envKafkaTopic       = "POS_KAFKA_TOPIC"
)

type envLookup func(string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(level string) error {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if level == "" {
		log.SetLevel(log.InfoLevel)
		return nil
	}
	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.SetLevel(log.InfoLevel)
		return err
	}
	log.SetLevel(parsed)
	return nil
}

// readConfigFromEnv собирает конфигурацию: YAML из POS_CONFIG (если задан) поверх
// значений по умолчанию, затем переопределения из окружения. Некорректное значение
// переменной не применяется и попадает в warnings.
func readConfigFromEnv(lookup envLookup) (app.Config, []string, error) {
	cfg := app.DefaultConfig()
	if path, ok := nonEmpty(lookup, envConfigFile); ok {
		loaded, err := app.LoadConfigFile(path)
		if err != nil {
			return app.Config{}, nil, err
		}
		cfg = loaded
	}

	var warnings []string
	warn := func(key, value string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", key, value, err))
	}

	if v, ok := nonEmpty(lookup, envHTTPAddr); ok {
		cfg.HTTPAddr = v
	}
	if v, ok := nonEmpty(lookup, envMetricsAddr); ok {
		cfg.MetricsAddr = v
	}
	if v, ok := nonEmpty(lookup, envOrdersDir); ok {
		cfg.OrdersDir = v
	}
	if v, ok := nonEmpty(lookup, envStaticDir); ok {
		cfg.StaticDir = v
	}
	if v, ok := nonEmpty(lookup, envKafkaTopic); ok {
		cfg.KafkaTopic = v
	}
	if v, ok := nonEmpty(lookup, envLogLevel); ok {
		if _, err := log.ParseLevel(v); err != nil {
			warn(envLogLevel, v, err)
		} else {
			cfg.LogLevel = strings.ToLower(v)
		}
	}

	positive := func(v int) bool { return v > 0 }
	if v, ok := nonEmpty(lookup, envMaxOrders); ok {
		if n, err := parseInt(v, positive, "must be > 0"); err != nil {
			warn(envMaxOrders, v, err)
		} else {
			cfg.MaxOrders = n
		}
	}
	if v, ok := nonEmpty(lookup, envPersistQueue); ok {
		if n, err := parseInt(v, positive, "must be > 0"); err != nil {
			warn(envPersistQueue, v, err)
		} else {
			cfg.PersistQueueSize = n
		}
	}
	if v, ok := nonEmpty(lookup, envSubscriberBuffer); ok {
		if n, err := parseInt(v, positive, "must be > 0"); err != nil {
			warn(envSubscriberBuffer, v, err)
		} else {
			cfg.SubscriberBuffer = n
		}
	}
	if v, ok := nonEmpty(lookup, envOrderBase); ok {
		if n, err := parseInt(v, positive, "must be > 0"); err != nil {
			warn(envOrderBase, v, err)
		} else {
			cfg.OrderNumberBase = int64(n)
		}
	}
	if v, ok := nonEmpty(lookup, envShutdownTimeout); ok {
		if d, err := parseDuration(v, func(d time.Duration) bool { return d > 0 }, "must be > 0"); err != nil {
			warn(envShutdownTimeout, v, err)
		} else {
			cfg.ShutdownTimeout = d
		}
	}
	if v, ok := nonEmpty(lookup, envAllowedOrigins); ok {
		if origins := splitList(v); len(origins) > 0 {
			cfg.AllowedOrigins = origins
		}
	}
	if v, ok := nonEmpty(lookup, envKafkaBrokers); ok {
		cfg.KafkaBrokers = splitList(v)
	}

	return cfg, warnings, nil
}

func nonEmpty(lookup envLookup, key string) (string, bool) {
	v, ok := lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func splitList(value string) []string {
	var items []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}

func parseInt(value string, valid func(int) bool, rule string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if !valid(n) {
		return 0, errors.New(rule)
	}
	return n, nil
}

func parseDuration(value string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if !valid(d) {
		return 0, errors.New(rule)
	}
	return d, nil
}

func main() {
	// .env не обязателен: в контейнере переменные приходят из окружения.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("failed to load .env")
	}

	cfg, warnings, err := readConfigFromEnv(os.LookupEnv)
	if err != nil {
		log.WithError(err).Fatal("не удалось прочитать конфигурацию")
	}
	if err := setupLogger(cfg.LogLevel); err != nil {
		log.WithError(err).Warn("unknown log level, using info")
	}
	for _, w := range warnings {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(version.Fields()).WithFields(log.Fields{
		"http_addr":     cfg.HTTPAddr,
		"metrics_addr":  cfg.MetricsAddr,
		"orders_dir":    cfg.OrdersDir,
		"kafka_enabled": cfg.KafkaEnabled(),
	}).Info("запускаем POS сервер")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("POS сервер остановлен")
}
