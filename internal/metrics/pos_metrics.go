package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Стадии записи заказа на диск для label stage.
const (
	PersistStageQueue     = "queue"
	PersistStageOrderFile = "order_file"
	PersistStageDailyFile = "daily_file"
)

// Результаты публикации в Kafka для label result.
const (
	KafkaResultSuccess = "sent"
	KafkaResultError   = "failed"
)

// POSMetrics содержит метрики приёма заказов, записи на диск и рассылки на кухню.
// Все методы безопасны для nil-получателя, чтобы компоненты работали без метрик в тестах.
type POSMetrics struct {
	// Приём заказов
	ordersAccepted   prometheus.Counter
	checkoutRejected prometheus.Counter

	// Запись на диск
	persistFailures *prometheus.CounterVec
	persistDuration prometheus.Histogram

	// Кухонные дисплеи
	kitchenSubscribers prometheus.Gauge
	broadcastDropped   prometheus.Counter

	// Kafka relay
	kafkaPublish *prometheus.CounterVec
}

// NewPOSMetrics создаёт метрики в prometheus.DefaultRegisterer.
func NewPOSMetrics() *POSMetrics {
	return NewPOSMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewPOSMetricsWithRegisterer создаёт метрики в указанном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewPOSMetricsWithRegisterer(registerer prometheus.Registerer) *POSMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &POSMetrics{
		ordersAccepted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_orders_accepted_total",
			Help: "Total number of orders accepted at checkout",
		}),
		checkoutRejected: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_checkout_rejected_total",
			Help: "Total number of checkout requests rejected as malformed",
		}),
		persistFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pos_persist_failures_total",
			Help: "Total number of order persistence failures grouped by stage",
		}, []string{"stage"}),
		persistDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "pos_persist_duration_seconds",
			Help:    "Duration of writing one order to disk in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		kitchenSubscribers: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "pos_kitchen_subscribers",
			Help: "Number of connected real-time kitchen display subscribers",
		}),
		broadcastDropped: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_broadcast_dropped_total",
			Help: "Total number of subscribers dropped because their buffer was full",
		}),
		kafkaPublish: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pos_kafka_publish_total",
			Help: "Total number of new-order events relayed to Kafka grouped by result",
		}, []string{"result"}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderAccepted увеличивает счётчик принятых заказов.
func (m *POSMetrics) RecordOrderAccepted() {
	if m == nil {
		return
	}
	m.ordersAccepted.Inc()
}

// RecordCheckoutRejected увеличивает счётчик отклонённых чекаутов.
func (m *POSMetrics) RecordCheckoutRejected() {
	if m == nil {
		return
	}
	m.checkoutRejected.Inc()
}

// RecordPersistFailure учитывает ошибку записи на указанной стадии.
func (m *POSMetrics) RecordPersistFailure(stage string) {
	if m == nil {
		return
	}
	m.persistFailures.WithLabelValues(stage).Inc()
}

// RecordPersistDuration записывает время сохранения одного заказа.
func (m *POSMetrics) RecordPersistDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.persistDuration.Observe(duration.Seconds())
}

// SetKitchenSubscribers выставляет число подключённых дисплеев.
func (m *POSMetrics) SetKitchenSubscribers(n int) {
	if m == nil {
		return
	}
	m.kitchenSubscribers.Set(float64(n))
}

// RecordBroadcastDropped учитывает отключённого из-за переполнения подписчика.
func (m *POSMetrics) RecordBroadcastDropped() {
	if m == nil {
		return
	}
	m.broadcastDropped.Inc()
}

// RecordKafkaPublish учитывает результат публикации в Kafka ("sent" или "failed").
func (m *POSMetrics) RecordKafkaPublish(result string) {
	if m == nil {
		return
	}
	m.kafkaPublish.WithLabelValues(result).Inc()
}
