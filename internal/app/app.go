package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/broadcast"
	healthcheck "github.com/vladislavdragonenkov/pos/internal/health"
	"github.com/vladislavdragonenkov/pos/internal/metrics"
	"github.com/vladislavdragonenkov/pos/internal/service/checkout"
	"github.com/vladislavdragonenkov/pos/internal/service/report"
	"github.com/vladislavdragonenkov/pos/internal/storage/file"
	"github.com/vladislavdragonenkov/pos/internal/storage/memory"
	"github.com/vladislavdragonenkov/pos/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/pos/internal/version"
)

// ServiceName используется в health-ответах и логах.
const ServiceName = "pos-server"

// Run собирает компоненты, обслуживает HTTP до отмены ctx и аккуратно останавливается:
// HTTP, затем рассылка, затем дозапись очереди на диск, затем Kafka.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := log.WithField("component", "app")
	posMetrics := metrics.NewPOSMetrics()

	store := memory.NewOrderStore(cfg.MaxOrders, cfg.OrderNumberBase)

	writer := file.NewWriter(cfg.OrdersDir,
		file.WithLogger(log.WithField("component", "order-writer")),
		file.WithMetrics(posMetrics),
		file.WithQueueSize(cfg.PersistQueueSize),
	)
	// Writer останавливается через Close и дописывает очередь, а не по отмене ctx.
	go writer.Run(context.Background())

	hub := broadcast.NewHub(
		broadcast.WithLogger(log.WithField("component", "broadcast-hub")),
		broadcast.WithMetrics(posMetrics),
	)

	checkoutSvc := checkout.NewService(store, writer, hub,
		log.WithField("component", "checkout"),
		checkout.WithMetrics(posMetrics),
		checkout.WithArchive(writer),
	)
	reports := report.NewService(store, report.WithArchive(writer))

	relay := startKafkaRelay(cfg, checkoutSvc, posMetrics, logger)

	healthHandler := healthcheck.NewHandler(ServiceName, version.GetVersion())
	healthHandler.RegisterChecker("orders_dir", healthcheck.OrdersDirChecker(writer))
	healthHandler.RegisterChecker("kitchen_displays", healthcheck.CheckerFunc(func() healthcheck.Check {
		return healthcheck.Check{
			Name:    "kitchen_displays",
			Status:  healthcheck.StatusHealthy,
			Message: fmt.Sprintf("%d connected", hub.Count()),
		}
	}))
	if relay != nil {
		healthHandler.RegisterChecker("kafka_relay", relay.checker())
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	api := httpapi.NewServer(checkoutSvc, reports,
		httpapi.WithLogger(log.WithField("component", "http-api")),
		httpapi.WithStaticDir(cfg.StaticDir),
		httpapi.WithAllowedOrigins(cfg.AllowedOrigins),
		httpapi.WithSubscriberBuffer(cfg.SubscriberBuffer),
	)
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(log.Fields{
			"addr":       cfg.HTTPAddr,
			"orders_dir": cfg.OrdersDir,
		}).Info("POS сервер слушает HTTP")
		errCh <- httpSrv.ListenAndServe()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		runErr = ctx.Err()
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	shutdownHTTP(httpSrv, cfg.ShutdownTimeout, logger)
	hub.Close()
	drainWriter(writer, cfg.ShutdownTimeout, logger)
	relay.stop(cfg.ShutdownTimeout)
	shutdownHTTP(metricsSrv, cfg.ShutdownTimeout, logger)

	return runErr
}

// drainWriter закрывает очередь записи и ждёт, пока Writer допишет заказы.
func drainWriter(writer *file.Writer, timeout time.Duration, logger *log.Entry) {
	writer.Close()
	select {
	case <-writer.Done():
		logger.Info("очередь записи заказов дописана")
	case <-time.After(timeout):
		logger.Warn("order writer did not drain before timeout")
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, 5*time.Second, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).WithField("addr", srv.Addr).Warn("http shutdown with error")
	}
}
