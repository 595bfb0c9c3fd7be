package httpapi

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/service/report"
)

// Тексты ответов, которые ожидают клиенты кассы.
const (
	msgOrderProcessed = "Order processed successfully"
	msgOrderFailed    = "Error processing order"
	msgOrdersCleared  = "All orders cleared"
	msgOrderNotFound  = "Order not found"
	msgInvalidDate    = "Invalid date, expected YYYY-MM-DD"
	msgReportFailed   = "Error building sales report"
)

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		s.logger.WithError(err).Warn("failed to read checkout body")
		respondJSON(w, http.StatusBadRequest, CheckoutResponse{Message: msgOrderFailed})
		return
	}

	order, err := s.checkout.Submit(r.Context(), body)
	if err != nil {
		status := http.StatusInternalServerError
		if domain.IsClientError(err) {
			status = http.StatusBadRequest
		} else {
			s.logger.WithError(err).Error("checkout failed")
		}
		respondJSON(w, status, CheckoutResponse{Message: msgOrderFailed})
		return
	}

	respondJSON(w, http.StatusOK, CheckoutResponse{
		Success:     true,
		OrderNumber: order.OrderNumber,
		Message:     msgOrderProcessed,
	})
}

func (s *Server) handleSalesReport(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		respondJSON(w, http.StatusOK, s.reports.Today())
		return
	}

	asOf, err := report.ParseDate(raw)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, MessageResponse{Message: msgInvalidDate})
		return
	}
	daily, err := s.reports.Daily(asOf)
	if err != nil {
		s.logger.WithError(err).WithField("date", raw).Error("sales report failed")
		respondJSON(w, http.StatusInternalServerError, MessageResponse{Message: msgReportFailed})
		return
	}
	respondJSON(w, http.StatusOK, daily)
}

func (s *Server) handleReportDates(w http.ResponseWriter, _ *http.Request) {
	dates, err := s.reports.Dates()
	if err != nil {
		s.logger.WithError(err).Error("listing report dates failed")
		respondJSON(w, http.StatusInternalServerError, MessageResponse{Message: msgReportFailed})
		return
	}
	respondJSON(w, http.StatusOK, DatesResponse{Success: true, Dates: dates})
}

func (s *Server) handleListOrders(w http.ResponseWriter, _ *http.Request) {
	orders := s.checkout.Orders()
	respondJSON(w, http.StatusOK, OrdersResponse{
		Success: true,
		Count:   len(orders),
		Orders:  orders,
	})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.ParseInt(mux.Vars(r)["orderNumber"], 10, 64)
	if err != nil {
		respondJSON(w, http.StatusNotFound, MessageResponse{Message: msgOrderNotFound})
		return
	}

	order, err := s.checkout.Find(number)
	if err != nil {
		if !errors.Is(err, domain.ErrOrderNotFound) {
			s.logger.WithError(err).WithField("order_number", number).Error("order lookup failed")
			respondJSON(w, http.StatusInternalServerError, MessageResponse{Message: msgOrderFailed})
			return
		}
		respondJSON(w, http.StatusNotFound, MessageResponse{Message: msgOrderNotFound})
		return
	}
	respondJSON(w, http.StatusOK, OrderResponse{Success: true, Order: order})
}

func (s *Server) handleClearOrders(w http.ResponseWriter, _ *http.Request) {
	s.checkout.Clear()
	respondJSON(w, http.StatusOK, MessageResponse{Success: true, Message: msgOrdersCleared})
}

// servePage отдаёт страницу из каталога статики; без каталога страница не существует.
func (s *Server) servePage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.staticDir == "" {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(s.staticDir, name))
	}
}
