package checkout

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// Request: тело чекаута от кассы.
// Позиции и прочие поля кассы не интерпретируются и попадают в заказ как есть.
type Request struct {
	OrderNumber *int64 `validate:"omitempty,gt=0"`
	Items       []json.RawMessage
	Total       *float64 `validate:"required,gte=0"`
	Extra       map[string]json.RawMessage
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// serverFields: ключи, которые сервер выставляет сам и не берёт у кассы.
var serverFields = []string{"orderNumber", "items", "total", "timestamp", "status"}

// ParseRequest декодирует и валидирует тело чекаута.
// Все ошибки оборачивают domain.ErrInvalidOrder.
func ParseRequest(data []byte) (Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Request{}, fmt.Errorf("%w: decode body: %v", domain.ErrInvalidOrder, err)
	}
	if fields == nil {
		return Request{}, fmt.Errorf("%w: body must be a JSON object", domain.ErrInvalidOrder)
	}

	var req Request
	if raw, ok := present(fields, "total"); ok {
		var total float64
		if err := json.Unmarshal(raw, &total); err != nil {
			return Request{}, fmt.Errorf("%w: %w", domain.ErrInvalidOrder, domain.ErrTotalRequired)
		}
		req.Total = &total
	}
	if raw, ok := present(fields, "orderNumber"); ok {
		var number int64
		if err := json.Unmarshal(raw, &number); err != nil {
			return Request{}, fmt.Errorf("%w: %w", domain.ErrInvalidOrder, domain.ErrOrderNumberInvalid)
		}
		req.OrderNumber = &number
	}
	if raw, ok := present(fields, "items"); ok {
		if err := json.Unmarshal(raw, &req.Items); err != nil {
			return Request{}, fmt.Errorf("%w: %w", domain.ErrInvalidOrder, domain.ErrItemsInvalid)
		}
	}

	for _, key := range serverFields {
		delete(fields, key)
	}
	if len(fields) > 0 {
		req.Extra = fields
	}

	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

// present возвращает значение ключа, если он есть и не равен null.
func present(fields map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	return raw, true
}

// Validate проверяет ограничения запроса.
func (r Request) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", domain.ErrInvalidOrder, err)
	}

	// Достаточно первой ошибки: клиент всё равно получает общее сообщение.
	fe := verrs[0]
	switch fe.StructField() {
	case "Total":
		if fe.Tag() == "required" {
			return fmt.Errorf("%w: %w", domain.ErrInvalidOrder, domain.ErrTotalRequired)
		}
		return fmt.Errorf("%w: %w", domain.ErrInvalidOrder, domain.ErrTotalNegative)
	case "OrderNumber":
		return fmt.Errorf("%w: %w", domain.ErrInvalidOrder, domain.ErrOrderNumberInvalid)
	default:
		return fmt.Errorf("%w: %s failed on %s", domain.ErrInvalidOrder, fe.Namespace(), fe.Tag())
	}
}
