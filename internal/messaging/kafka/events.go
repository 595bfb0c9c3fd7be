package kafka

import (
	"strconv"
	"time"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// EventType определяет тип события
type EventType string

// EventTypeOrderAccepted публикуется для каждого принятого кассой заказа.
const EventTypeOrderAccepted EventType = "order.accepted"

// TopicOrderEvents: топик по умолчанию для событий о заказах.
const TopicOrderEvents = "pos.order.events"

// OrderEvent: событие о заказе в Kafka.
type OrderEvent struct {
	EventType   EventType          `json:"event_type"`
	OrderNumber int64              `json:"order_number"`
	Total       float64            `json:"total"`
	Status      domain.OrderStatus `json:"status"`
	Timestamp   time.Time          `json:"timestamp"`
	Order       domain.Order       `json:"order"`
}

// NewOrderAcceptedEvent создаёт событие о принятом заказе.
func NewOrderAcceptedEvent(order domain.Order) OrderEvent {
	return OrderEvent{
		EventType:   EventTypeOrderAccepted,
		OrderNumber: order.OrderNumber,
		Total:       order.Total,
		Status:      order.Status,
		Timestamp:   order.Timestamp,
		Order:       order,
	}
}

// Key возвращает ключ партиционирования: номер заказа.
func (e OrderEvent) Key() string {
	return strconv.FormatInt(e.OrderNumber, 10)
}
