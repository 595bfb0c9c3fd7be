package domain

import "errors"

var (
	// ErrInvalidOrder: общая ошибка некорректного тела чекаута.
	ErrInvalidOrder = errors.New("invalid order payload")
	// ErrTotalRequired: в заказе нет числового поля total.
	ErrTotalRequired = errors.New("total is required and must be a number")
	// ErrTotalNegative: сумма заказа отрицательная.
	ErrTotalNegative = errors.New("total must be non-negative")
	// ErrItemsInvalid: items передан, но это не массив.
	ErrItemsInvalid = errors.New("items must be an array")
	// ErrOrderNumberInvalid: клиент передал неположительный номер заказа.
	ErrOrderNumberInvalid = errors.New("orderNumber must be positive")
	// ErrOrderNotFound возвращается, если заказ не найден ни в памяти, ни на диске.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderNumberTaken: номер кассы меньше следующего свободного, то есть уже мог быть выдан.
	ErrOrderNumberTaken = errors.New("orderNumber is already taken")
	// ErrInvalidDate возвращается при неверном формате даты отчёта.
	ErrInvalidDate = errors.New("date must be in YYYY-MM-DD format")
	// ErrPersistQueueFull: очередь записи на диск переполнена, заказ не будет сохранён.
	ErrPersistQueueFull = errors.New("persist queue is full")
	// ErrWriterClosed: writer уже остановлен.
	ErrWriterClosed = errors.New("order writer is closed")
)

// IsClientError сообщает, что ошибка вызвана некорректным запросом клиента.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidOrder) || errors.Is(err, ErrInvalidDate)
}
