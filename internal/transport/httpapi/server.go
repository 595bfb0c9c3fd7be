// Package httpapi реализует HTTP и WebSocket интерфейс кассы и кухонного дисплея.
package httpapi

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/broadcast"
	"github.com/vladislavdragonenkov/pos/internal/domain"
	"github.com/vladislavdragonenkov/pos/internal/service/report"
)

// DefaultMaxBodyBytes ограничивает размер тела чекаута.
const DefaultMaxBodyBytes int64 = 1 << 20

// CheckoutService: операции над заказами, которые нужны HTTP-слою.
type CheckoutService interface {
	Submit(ctx context.Context, body []byte) (domain.Order, error)
	Orders() []domain.Order
	Find(number int64) (domain.Order, error)
	Clear()
	Subscribe(buffer int) *broadcast.Subscription
}

// ReportService строит отчёты о продажах.
type ReportService interface {
	Today() report.Report
	Daily(asOf time.Time) (report.Report, error)
	Dates() ([]string, error)
}

// Option настраивает Server.
type Option func(*Server)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStaticDir задаёт каталог со страницами index.html и kitchen.html.
func WithStaticDir(dir string) Option {
	return func(s *Server) {
		s.staticDir = dir
	}
}

// WithAllowedOrigins задаёт разрешённые CORS origin. "*" разрешает все.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.allowedOrigins = origins
		}
	}
}

// WithSubscriberBuffer задаёт очередь событий одного дисплея.
func WithSubscriberBuffer(size int) Option {
	return func(s *Server) {
		if size > 0 {
			s.subscriberBuffer = size
		}
	}
}

// WithMaxBodyBytes ограничивает размер тела запроса.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// Server обслуживает REST API и WebSocket кухонных дисплеев.
type Server struct {
	checkout CheckoutService
	reports  ReportService
	logger   *log.Entry

	staticDir        string
	allowedOrigins   []string
	subscriberBuffer int
	maxBodyBytes     int64

	router  *mux.Router
	handler http.Handler
}

// NewServer собирает маршруты и middleware.
func NewServer(checkoutSvc CheckoutService, reports ReportService, options ...Option) *Server {
	s := &Server{
		checkout:         checkoutSvc,
		reports:          reports,
		allowedOrigins:   []string{"*"},
		subscriberBuffer: broadcast.DefaultBuffer,
		maxBodyBytes:     DefaultMaxBodyBytes,
		router:           mux.NewRouter(),
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "http-api")
	}

	s.setupRoutes()

	c := cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	s.handler = c.Handler(s.router)
	return s
}

// Handler возвращает корневой обработчик с CORS.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)

	for _, path := range []string{"/checkout", "/api/checkout"} {
		s.router.HandleFunc(path, s.handleCheckout).Methods(http.MethodPost)
	}
	for _, path := range []string{"/sales-report", "/api/sales-report"} {
		s.router.HandleFunc(path, s.handleSalesReport).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sales-report/dates", s.handleReportDates).Methods(http.MethodGet)
	api.HandleFunc("/orders", s.handleListOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders/{orderNumber:[0-9]+}", s.handleGetOrder).Methods(http.MethodGet)
	api.HandleFunc("/clear-orders", s.handleClearOrders).Methods(http.MethodPost)

	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.HandleFunc("/", s.servePage("index.html")).Methods(http.MethodGet)
	s.router.HandleFunc("/kitchen", s.servePage("kitchen.html")).Methods(http.MethodGet)
}

// logRequests пишет в debug-лог метод, путь, статус и длительность запроса.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.WithFields(log.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("http request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack нужен для апгрейда соединения до WebSocket.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}
