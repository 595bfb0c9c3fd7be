// Package broadcast рассылает события о заказах подключённым кухонным дисплеям.
package broadcast

import (
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/metrics"
)

// Имена событий, которые видит клиент.
const (
	EventCurrentOrders = "current-orders"
	EventNewOrder      = "new-order"
)

// DefaultBuffer: размер очереди событий одного подписчика по умолчанию.
const DefaultBuffer = 64

// Event: сообщение для подписчика.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// CurrentOrders создаёт снимок текущих заказов.
func CurrentOrders(orders []domain.Order) Event {
	if orders == nil {
		orders = []domain.Order{}
	}
	return Event{Name: EventCurrentOrders, Data: orders}
}

// NewOrder создаёт событие о новом заказе.
func NewOrder(order domain.Order) Event {
	return Event{Name: EventNewOrder, Data: order}
}

// Subscription: подписка одного клиента. Канал Events закрывается при отписке,
// остановке хаба или если клиент не успевает читать события.
type Subscription struct {
	id  string
	hub *Hub

	mu      sync.Mutex // защищает closed, dropped и отправку в events
	closed  bool
	dropped bool
	events  chan Event
}

// ID возвращает идентификатор подписки.
func (s *Subscription) ID() string {
	return s.id
}

// Events возвращает канал событий подписчика.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Dropped сообщает, что хаб отключил подписчика за переполнение очереди.
// Имеет смысл после закрытия канала Events.
func (s *Subscription) Dropped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close отписывает клиента. Повторный вызов безопасен.
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s)
}

func (s *Subscription) trySend(e Event) (sent, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, true
	}
	select {
	case s.events <- e:
		return true, false
	default:
		s.dropped = true
		return false, false
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

// Option настраивает Hub.
type Option func(*Hub)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithMetrics задаёт метрики подписчиков.
func WithMetrics(m *metrics.POSMetrics) Option {
	return func(h *Hub) {
		h.metrics = m
	}
}

// Hub: реестр подписчиков.
type Hub struct {
	logger  *log.Entry
	metrics *metrics.POSMetrics

	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool
}

// NewHub создаёт пустой реестр.
func NewHub(options ...Option) *Hub {
	h := &Hub{subs: make(map[string]*Subscription)}
	for _, option := range options {
		option(h)
	}
	if h.logger == nil {
		h.logger = log.WithField("component", "broadcast-hub")
	}
	return h
}

// Subscribe регистрирует подписчика и первым событием кладёт ему snapshot.
// Публикации, выполненные после возврата, подписчик получит после снимка.
func (h *Hub) Subscribe(snapshot Event, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	sub := &Subscription{
		id:     uuid.NewString(),
		hub:    h,
		events: make(chan Event, buffer),
	}
	sub.events <- snapshot

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		sub.close()
		return sub
	}
	h.subs[sub.id] = sub
	h.metrics.SetKitchenSubscribers(len(h.subs))
	h.logger.WithFields(log.Fields{
		"subscriber": sub.id,
		"total":      len(h.subs),
	}).Debug("subscriber registered")

	return sub
}

// Unsubscribe удаляет подписчика и закрывает его канал.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	_, ok := h.subs[sub.id]
	if ok {
		delete(h.subs, sub.id)
		h.metrics.SetKitchenSubscribers(len(h.subs))
	}
	total := len(h.subs)
	h.mu.Unlock()

	sub.close()
	if ok {
		h.logger.WithFields(log.Fields{
			"subscriber": sub.id,
			"total":      total,
		}).Debug("subscriber removed")
	}
}

// Publish рассылает событие всем текущим подписчикам и возвращает число доставок.
// Отправка не блокирует: подписчик с заполненной очередью отключается.
func (h *Hub) Publish(e Event) int {
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, sub := range subs {
		sent, closed := sub.trySend(e)
		switch {
		case sent:
			delivered++
		case !closed:
			h.logger.WithField("subscriber", sub.id).Warn("subscriber is too slow, dropping")
			h.metrics.RecordBroadcastDropped()
			h.Unsubscribe(sub)
		}
	}
	return delivered
}

// Count возвращает количество подписчиков.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close закрывает все подписки. Новые подписки сразу получают закрытый канал
// (после снимка).
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	h.subs = make(map[string]*Subscription)
	h.metrics.SetKitchenSubscribers(0)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}
