// Package report строит дневной отчёт о продажах: за сегодня по заказам в памяти,
// за прошлые дни по дневным файлам.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// OrderLister отдаёт заказы, самые новые первыми.
type OrderLister interface {
	List() []domain.Order
}

// DailyArchive читает сохранённые дневные файлы.
type DailyArchive interface {
	ReadDaily(date string) ([]domain.Order, error)
	DailyDates() ([]string, error)
}

// Report: дневная сводка продаж.
type Report struct {
	Date         string         `json:"date"`
	TotalOrders  int            `json:"totalOrders"`
	TotalRevenue string         `json:"totalRevenue"`
	AverageOrder float64        `json:"averageOrder"`
	Orders       []domain.Order `json:"orders"`
}

// Option настраивает Service.
type Option func(*Service)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithArchive включает отчёты за прошлые дни из дневных файлов.
func WithArchive(archive DailyArchive) Option {
	return func(s *Service) {
		s.archive = archive
	}
}

// Service считает отчёты. Состояние не меняет.
type Service struct {
	store   OrderLister
	archive DailyArchive
	now     func() time.Time
}

// NewService создаёт генератор отчётов поверх хранилища заказов.
func NewService(store OrderLister, options ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, option := range options {
		option(s)
	}
	return s
}

// Today возвращает отчёт за текущие сутки (UTC) по заказам в памяти.
func (s *Service) Today() Report {
	return s.fromMemory(s.now().UTC().Format(domain.DateLayout))
}

// Daily возвращает отчёт за UTC-сутки, в которые попадает asOf.
// Прошлые дни при заданном архиве считаются по дневному файлу.
func (s *Service) Daily(asOf time.Time) (Report, error) {
	date := asOf.UTC().Format(domain.DateLayout)
	if s.archive == nil || date == s.now().UTC().Format(domain.DateLayout) {
		return s.fromMemory(date), nil
	}

	stored, err := s.archive.ReadDaily(date)
	if err != nil {
		return Report{}, fmt.Errorf("read daily archive %s: %w", date, err)
	}
	// Дневной файл пишется по порядку приёма; отчёт отдаёт самые новые первыми.
	orders := make([]domain.Order, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		orders = append(orders, stored[i])
	}
	return build(date, orders), nil
}

// Dates возвращает дни, за которые есть дневные файлы, по возрастанию.
func (s *Service) Dates() ([]string, error) {
	if s.archive == nil {
		return []string{}, nil
	}
	dates, err := s.archive.DailyDates()
	if err != nil {
		return nil, fmt.Errorf("list daily archive: %w", err)
	}
	return dates, nil
}

func (s *Service) fromMemory(date string) Report {
	orders := make([]domain.Order, 0)
	for _, order := range s.store.List() {
		if order.DateKey() == date {
			orders = append(orders, order)
		}
	}
	return build(date, orders)
}

func build(date string, orders []domain.Order) Report {
	revenue := decimal.Zero
	for _, order := range orders {
		revenue = revenue.Add(decimal.NewFromFloat(order.Total))
	}

	average := 0.0
	if len(orders) > 0 {
		average = revenue.Div(decimal.NewFromInt(int64(len(orders)))).Round(2).InexactFloat64()
	}

	return Report{
		Date:         date,
		TotalOrders:  len(orders),
		TotalRevenue: revenue.StringFixed(2),
		AverageOrder: average,
		Orders:       orders,
	}
}

// ParseDate разбирает дату YYYY-MM-DD как начало суток UTC.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	t, err := time.ParseInLocation(domain.DateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", domain.ErrInvalidDate, value)
	}
	return t, nil
}
