package httpapi

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// CheckoutResponse: ответ на чекаут.
type CheckoutResponse struct {
	Success     bool   `json:"success"`
	OrderNumber int64  `json:"orderNumber,omitempty"`
	Message     string `json:"message"`
}

// OrdersResponse: список заказов в памяти.
type OrdersResponse struct {
	Success bool           `json:"success"`
	Count   int            `json:"count"`
	Orders  []domain.Order `json:"orders"`
}

// OrderResponse: один заказ.
type OrderResponse struct {
	Success bool         `json:"success"`
	Order   domain.Order `json:"order"`
}

// DatesResponse: дни, за которые есть дневные файлы.
type DatesResponse struct {
	Success bool     `json:"success"`
	Dates   []string `json:"dates"`
}

// MessageResponse: ответ без данных.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Warn("failed to encode response")
	}
}
