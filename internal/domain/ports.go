package domain

// OrderStore описывает ограниченное in-memory хранилище последних заказов.
type OrderStore interface {
	// Append добавляет заказ в начало списка, вытесняя самый старый при переполнении.
	Append(order Order)
	// List возвращает копию заказов, самые новые первыми.
	List() []Order
	// NextOrderNumber возвращает текущий номер и увеличивает счётчик.
	NextOrderNumber() int64
	// ReserveOrderNumber занимает номер от клиента; false, если номер не больше уже выданных.
	ReserveOrderNumber(n int64) bool
	// Reset очищает заказы и сбрасывает счётчик к базовому значению.
	Reset()
}

// OrderPersister сохраняет заказ вне процесса. Реализация не должна блокировать вызывающего.
type OrderPersister interface {
	Persist(order Order)
}

// PersisterFunc позволяет использовать функцию как OrderPersister.
type PersisterFunc func(order Order)

// Persist вызывает f(order).
func (f PersisterFunc) Persist(order Order) { f(order) }
