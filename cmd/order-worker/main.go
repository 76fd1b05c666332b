package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/KumarG23/nep-back/internal/config"
	"github.com/KumarG23/nep-back/internal/logger"
	"github.com/KumarG23/nep-back/internal/server"
	"github.com/KumarG23/nep-back/internal/service"
)

const prefetch = 8

func main() {
	dir := flag.String("config", ".", "directory containing config.yaml and .env")
	metricsAddr := flag.String("metrics", ":9102", "address for the /metrics endpoint, empty to disable")
	flag.Parse()

	cfg, err := config.Load(*dir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()
	lg = lg.Named("order-worker")

	deps, err := server.Build(cfg, lg)
	if err != nil {
		lg.Fatal("failed to init dependencies", zap.Error(err))
	}
	defer deps.Close()
	if deps.MQ == nil {
		lg.Fatal("order worker requires rabbitmq, set NEP_RABBITMQ_URL")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(deps.Monitor.Registry(), promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				lg.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	worker := service.NewConfirmWorker(deps.Orders, deps.Monitor, lg)
	lg.Info("order worker started, waiting for messages...", zap.String("queue", cfg.RabbitMQ.ConfirmQueue))
	if err := deps.MQ.Consume(ctx, cfg.RabbitMQ.ConfirmQueue, prefetch, worker.Handle); err != nil && !errors.Is(err, context.Canceled) {
		lg.Error("consume stopped", zap.Error(err))
	}
	lg.Info("order worker stopped")
}
