package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

// Run поднимает HTTP API, служебный сервер метрик, gRPC health и outbox
// worker, и блокируется до отмены ctx или падения сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	gin.SetMode(gin.ReleaseMode)

	deps := NewDependencies(logger)
	events := initEventPublishers(cfg, logger)

	workerOptions := []outbox.Option{
		outbox.WithLogger(logger.WithField("layer", "outbox")),
		outbox.WithMetrics(deps.EventMetrics),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if events.dlq != nil {
		workerOptions = append(workerOptions, outbox.WithDLQPublisher(events.dlq))
	}
	worker := outbox.NewWorker(deps.OutboxRepo, events.publisher, workerOptions...)

	// Worker живёт дольше HTTP: после остановки API он дописывает backlog.
	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(workerCtx)
	}()
	stopBackground := func() {
		stopWorker()
		<-workerDone
		closeKafka(events.producer, logger)
	}

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("catalog", healthcheck.NewCatalogChecker(deps.Shop.CatalogSize))
	healthHandler.RegisterChecker("outbox", healthcheck.NewBacklogChecker("outbox", deps.PendingEvents, cfg.OutboxMaxPending))

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		stopBackground()
		return fmt.Errorf("listen http %s: %w", cfg.HTTPAddr, err)
	}
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = httpLis.Close()
		shutdownHTTP(metricsSrv, logger)
		stopBackground()
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}

	router := httpapi.NewRouter(
		httpapi.NewHandler(deps.Shop, logger),
		httpapi.RouterConfig{StaticDir: cfg.StaticDir, Metrics: deps.HTTPMetrics, Logger: logger.WithField("layer", "http")},
	)
	apiSrv := &http.Server{Handler: router, ReadHeaderTimeout: 5 * time.Second}
	grpcServer, healthServer := newGRPCServer(logger)

	errCh := make(chan error, 2)
	go func() {
		errCh <- apiSrv.Serve(httpLis)
	}()
	go func() {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		errCh <- grpcServer.Serve(grpcLis)
	}()

	logStartup(logger, httpLis.Addr().String(), cfg.StaticDir, deps.Shop.CatalogSize())

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		runErr = ctx.Err()
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, grpc.ErrServerStopped) {
			runErr = err
		}
	}

	// Shutdown переводит все сервисы в NOT_SERVING до остановки серверов.
	healthServer.Shutdown()
	shutdownHTTP(apiSrv, logger)
	stopGRPC(grpcServer, cfg.ShutdownTimeout, logger)
	shutdownHTTP(metricsSrv, logger)
	stopBackground()

	return runErr
}

func logStartup(logger *log.Entry, addr, staticDir string, products int) {
	logger.WithFields(version.Fields()).Infof("storefront слушает http://%s", addr)
	if staticDir != "" {
		logger.Infof("статические файлы: %s", staticDir)
	}
	logger.Infof("загружено товаров: %d", products)
	for _, endpoint := range []string{
		"GET    /api/products",
		"GET    /api/products/:id",
		"POST   /api/cart/add",
		"GET    /api/cart",
		"DELETE /api/cart/:productId",
		"POST   /api/order",
		"GET    /api/orders",
	} {
		logger.Info("endpoint " + endpoint)
	}
}
