// Package checkout принимает заказы с кассы: нумерует, сохраняет и оповещает кухню.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/broadcast"
	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/metrics"
)

// Broadcaster рассылает события подключённым дисплеям.
type Broadcaster interface {
	Publish(e broadcast.Event) int
	Subscribe(snapshot broadcast.Event, buffer int) *broadcast.Subscription
}

// OrderArchive читает ранее сохранённые заказы.
type OrderArchive interface {
	ReadOrder(number int64) (domain.Order, error)
}

// Option настраивает Service.
type Option func(*Service)

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithMetrics задаёт метрики приёма заказов.
func WithMetrics(m *metrics.POSMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithArchive задаёт источник заказов, вытесненных из памяти.
func WithArchive(archive OrderArchive) Option {
	return func(s *Service) {
		s.archive = archive
	}
}

// Service: обработчик чекаута.
type Service struct {
	store     domain.OrderStore
	persister domain.OrderPersister
	hub       Broadcaster
	archive   OrderArchive
	logger    *log.Entry
	metrics   *metrics.POSMetrics
	now       func() time.Time

	// mu сериализует выдачу номера, добавление в store и публикацию, а также
	// снимок для новых подписчиков: подписчик не получит заказ дважды и не пропустит его.
	mu sync.Mutex
}

// NewService конструирует сервис с зависимостями.
func NewService(
	store domain.OrderStore,
	persister domain.OrderPersister,
	hub Broadcaster,
	logger *log.Entry,
	options ...Option,
) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "checkout")
	}
	s := &Service{
		store:     store,
		persister: persister,
		hub:       hub,
		logger:    logger,
		now:       time.Now,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Submit разбирает тело чекаута и принимает заказ.
// Отклонённое тело учитывается в метриках так же, как в Checkout.
func (s *Service) Submit(ctx context.Context, body []byte) (domain.Order, error) {
	req, err := ParseRequest(body)
	if err != nil {
		s.reject(err)
		return domain.Order{}, err
	}
	return s.Checkout(ctx, req)
}

// Checkout принимает заказ. Некорректный запрос возвращает ошибку,
// оборачивающую domain.ErrInvalidOrder, и не меняет состояние.
// Номер от кассы принимается, только если он не меньше следующего свободного;
// счётчик сдвигается за него. Ошибки записи на диск не влияют на результат.
func (s *Service) Checkout(ctx context.Context, req Request) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	if err := req.Validate(); err != nil {
		s.reject(err)
		return domain.Order{}, err
	}

	s.mu.Lock()
	order := domain.Order{
		Items:     req.Items,
		Total:     *req.Total,
		Timestamp: s.now().UTC(),
		Status:    domain.OrderStatusPending,
		Extra:     req.Extra,
	}
	if req.OrderNumber != nil {
		if !s.store.ReserveOrderNumber(*req.OrderNumber) {
			s.mu.Unlock()
			err := fmt.Errorf("%w: %w", domain.ErrInvalidOrder, domain.ErrOrderNumberTaken)
			s.reject(err)
			return domain.Order{}, err
		}
		order.OrderNumber = *req.OrderNumber
	} else {
		order.OrderNumber = s.store.NextOrderNumber()
	}
	if order.Items == nil {
		order.Items = []json.RawMessage{}
	}
	order = order.Clone()

	s.store.Append(order)
	if s.persister != nil {
		s.persister.Persist(order)
	}
	if s.hub != nil {
		s.hub.Publish(broadcast.NewOrder(order))
	}
	s.mu.Unlock()

	s.metrics.RecordOrderAccepted()
	s.logger.WithFields(log.Fields{
		"order_number": order.OrderNumber,
		"total":        fmt.Sprintf("%.2f", order.Total),
		"items":        len(order.Items),
	}).Info("order received")

	return order, nil
}

func (s *Service) reject(err error) {
	s.metrics.RecordCheckoutRejected()
	s.logger.WithError(err).Warn("checkout rejected")
}

// Orders возвращает заказы в памяти, самые новые первыми.
func (s *Service) Orders() []domain.Order {
	return s.store.List()
}

// Find ищет заказ в памяти, затем в архиве.
func (s *Service) Find(number int64) (domain.Order, error) {
	for _, order := range s.store.List() {
		if order.OrderNumber == number {
			return order, nil
		}
	}
	if s.archive == nil {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	order, err := s.archive.ReadOrder(number)
	if err != nil {
		s.logger.WithError(err).WithField("order_number", number).Debug("order is not in archive")
		return domain.Order{}, errors.Join(domain.ErrOrderNotFound, err)
	}
	return order, nil
}

// Clear удаляет все заказы из памяти, сбрасывает нумерацию и отправляет
// дисплеям пустой снимок. Файлы на диске не трогаются.
func (s *Service) Clear() {
	s.mu.Lock()
	s.store.Reset()
	if s.hub != nil {
		s.hub.Publish(broadcast.CurrentOrders(nil))
	}
	s.mu.Unlock()

	s.logger.Info("orders cleared")
}

// Subscribe подписывает кухонный дисплей: первым событием приходит снимок текущих заказов.
func (s *Service) Subscribe(buffer int) *broadcast.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.hub.Subscribe(broadcast.CurrentOrders(s.store.List()), buffer)
}
