package app

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/pos/internal/health"
	"github.com/vladislavdragonenkov/pos/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/pos/internal/metrics"
)

// kafkaRelay: запущенный relay вместе с producer.
type kafkaRelay struct {
	producer *kafka.Producer
	cancel   context.CancelFunc
	done     chan struct{}
	lastErr  atomic.Value // string
	logger   *log.Entry
}

var errRelayStopped = errors.New("kafka relay is not running")

// publisherFunc адаптирует функцию к kafka.EventPublisher.
type publisherFunc func(topic, key string, event any) error

func (f publisherFunc) PublishEvent(topic, key string, event any) error { return f(topic, key, event) }

// initKafkaProducer инициализирует Kafka producer если brokers не пустой.
// Возвращает nil, nil если brokers пустой.
func initKafkaProducer(brokers []string, m *metrics.POSMetrics, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers, m)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// startKafkaRelay запускает relay, если Kafka настроена и доступна. Иначе возвращает nil:
// касса работает без Kafka.
func startKafkaRelay(cfg Config, source kafka.Subscriber, m *metrics.POSMetrics, logger *log.Entry) *kafkaRelay {
	producer, err := initKafkaProducer(cfg.KafkaBrokers, m, logger)
	if err != nil || producer == nil {
		return nil
	}
	return runRelay(producer, source, cfg.KafkaTopic, logger)
}

func runRelay(producer *kafka.Producer, source kafka.Subscriber, topic string, logger *log.Entry) *kafkaRelay {
	r := &kafkaRelay{
		producer: producer,
		done:     make(chan struct{}),
		logger:   logger,
	}
	r.lastErr.Store("")

	publisher := publisherFunc(func(topic, key string, event any) error {
		err := producer.PublishEvent(topic, key, event)
		if err != nil {
			r.lastErr.Store(err.Error())
		} else {
			r.lastErr.Store("")
		}
		return err
	})
	relay := kafka.NewRelay(source, publisher, topic, log.WithField("component", "kafka-relay"),
		kafka.WithGapHandler(func(err error) { r.lastErr.Store(err.Error()) }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go func() {
		defer close(r.done)
		relay.Run(ctx)
		r.lastErr.Store(errRelayStopped.Error())
	}()
	return r
}

// checker отчитывается degraded, если последняя публикация завершилась ошибкой,
// relay терял события или уже не работает.
func (r *kafkaRelay) checker() healthcheck.Checker {
	return healthcheck.ErrorChecker("kafka_relay", healthcheck.StatusDegraded, func() error {
		if msg, _ := r.lastErr.Load().(string); msg != "" {
			return errors.New(msg)
		}
		return nil
	})
}

// stop ждёт завершения relay (после закрытия хаба) и закрывает producer.
func (r *kafkaRelay) stop(timeout time.Duration) {
	if r == nil {
		return
	}
	select {
	case <-r.done:
	case <-time.After(timeout):
		r.logger.Warn("kafka relay did not stop before timeout")
	}
	r.cancel()
	closeKafka(r.producer, r.logger)
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
