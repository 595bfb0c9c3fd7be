package kafka

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/broadcast"
	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// RelayBuffer задаёт очередь событий relay.
const RelayBuffer = 1024

// ErrRelayFellBehind: хаб отключил relay за переполнение очереди, часть событий потеряна.
var ErrRelayFellBehind = errors.New("kafka relay fell behind, order events were lost")

// Subscriber выдаёт подписку на события о заказах.
type Subscriber interface {
	Subscribe(buffer int) *broadcast.Subscription
}

// EventPublisher публикует событие в топик.
type EventPublisher interface {
	PublishEvent(topic string, key string, event any) error
}

// RelayOption настраивает Relay.
type RelayOption func(*Relay)

// WithRelayBuffer задаёт очередь событий relay.
func WithRelayBuffer(size int) RelayOption {
	return func(r *Relay) {
		if size > 0 {
			r.buffer = size
		}
	}
}

// WithGapHandler задаёт обработчик потери событий. Вызывается с ErrRelayFellBehind
// перед повторной подпиской.
func WithGapHandler(fn func(err error)) RelayOption {
	return func(r *Relay) {
		r.onGap = fn
	}
}

// Relay пересылает события new-order в Kafka. Снимки current-orders пропускаются.
type Relay struct {
	source    Subscriber
	publisher EventPublisher
	topic     string
	buffer    int
	onGap     func(err error)
	logger    *log.Entry
}

// NewRelay создаёт relay. Пустой topic заменяется на TopicOrderEvents.
func NewRelay(source Subscriber, publisher EventPublisher, topic string, logger *log.Entry, options ...RelayOption) *Relay {
	if topic == "" {
		topic = TopicOrderEvents
	}
	if logger == nil {
		logger = log.WithField("component", "kafka-relay")
	}
	r := &Relay{
		source:    source,
		publisher: publisher,
		topic:     topic,
		buffer:    RelayBuffer,
		logger:    logger,
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// Run подписывается и публикует события, пока не отменён ctx или не остановлен хаб.
// Если хаб отключил relay как медленного подписчика, relay сообщает о потере
// событий и подписывается заново.
func (r *Relay) Run(ctx context.Context) {
	r.logger.WithField("topic", r.topic).Info("kafka relay started")
	for {
		sub := r.source.Subscribe(r.buffer)
		dropped := r.consume(ctx, sub)
		sub.Close()
		if !dropped {
			return
		}

		r.logger.WithError(ErrRelayFellBehind).Warn("kafka relay resubscribing")
		if r.onGap != nil {
			r.onGap(ErrRelayFellBehind)
		}
	}
}

// consume читает подписку до её закрытия. Возвращает true, если хаб отключил relay
// за переполнение.
func (r *Relay) consume(ctx context.Context, sub *broadcast.Subscription) bool {
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("kafka relay stopped")
			return false
		case e, ok := <-sub.Events():
			if !ok {
				if sub.Dropped() {
					return ctx.Err() == nil
				}
				r.logger.Info("kafka relay subscription closed")
				return false
			}
			r.handle(e)
		}
	}
}

func (r *Relay) handle(e broadcast.Event) {
	if e.Name != broadcast.EventNewOrder {
		return
	}
	order, ok := e.Data.(domain.Order)
	if !ok {
		r.logger.WithField("event", e.Name).Warn("unexpected event payload")
		return
	}

	event := NewOrderAcceptedEvent(order)
	if err := r.publisher.PublishEvent(r.topic, event.Key(), event); err != nil {
		// Событие теряется: повторов нет, заказ уже сохранён на диске.
		r.logger.WithError(err).WithField("order_number", order.OrderNumber).Warn("failed to relay order to kafka")
	}
}
