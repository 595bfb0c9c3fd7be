package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// DefaultMaxOrders: сколько последних заказов держим в памяти по умолчанию.
const DefaultMaxOrders = 50

// OrderStore: кольцевой буфер последних заказов и счётчик номеров.
// Хранилище живёт только в памяти процесса; долговечность обеспечивает file.Writer.
type OrderStore struct {
	mu   sync.RWMutex
	ring []domain.Order
	head int // индекс самого нового заказа
	size int
	base int64
	next int64
}

// NewOrderStore создаёт хранилище на maxOrders заказов с нумерацией от base.
// Неположительные значения заменяются значениями по умолчанию.
func NewOrderStore(maxOrders int, base int64) *OrderStore {
	if maxOrders <= 0 {
		maxOrders = DefaultMaxOrders
	}
	if base <= 0 {
		base = domain.DefaultOrderNumberBase
	}
	return &OrderStore{
		ring: make([]domain.Order, maxOrders),
		head: -1,
		base: base,
		next: base,
	}
}

// Append кладёт заказ в начало списка. При переполнении затирается самый старый.
func (s *OrderStore) Append(order domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.head = (s.head + 1) % len(s.ring)
	s.ring[s.head] = order.Clone()
	if s.size < len(s.ring) {
		s.size++
	}
}

// List возвращает копию заказов, самые новые первыми.
func (s *OrderStore) List() []domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, s.size)
	for i := 0; i < s.size; i++ {
		idx := (s.head - i + len(s.ring)) % len(s.ring)
		result = append(result, s.ring[idx].Clone())
	}
	return result
}

// NextOrderNumber возвращает очередной номер заказа.
func (s *OrderStore) NextOrderNumber() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.next
	s.next++
	return n
}

// ReserveOrderNumber занимает номер, переданный кассой, и сдвигает счётчик за него.
// Номер меньше следующего свободного отклоняется: он уже мог быть выдан.
func (s *OrderStore) ReserveOrderNumber(n int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n < s.next {
		return false
	}
	s.next = n + 1
	return true
}

// Reset очищает заказы и сбрасывает счётчик.
func (s *OrderStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.ring {
		s.ring[i] = domain.Order{}
	}
	s.head = -1
	s.size = 0
	s.next = s.base
}

// Len возвращает текущее количество заказов.
func (s *OrderStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Capacity возвращает максимальное количество хранимых заказов.
func (s *OrderStore) Capacity() int {
	return len(s.ring)
}

var _ domain.OrderStore = (*OrderStore)(nil)
