package main

import (
	"flag"
	"log"

	"github.com/kataras/iris/v12"
	"go.uber.org/zap"

	"github.com/KumarG23/nep-back/internal/config"
	"github.com/KumarG23/nep-back/internal/logger"
	"github.com/KumarG23/nep-back/internal/server"
)

func main() {
	dir := flag.String("config", ".", "directory containing config.yaml and .env")
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

	deps, err := server.Build(cfg, lg.Named("admin"))
	if err != nil {
		lg.Fatal("failed to init dependencies", zap.Error(err))
	}
	defer deps.Close()

	app := server.NewAdminApp(deps)

	addr := cfg.AdminServer.Addr()
	lg.Info("admin server listening", zap.String("addr", addr))
	if err := app.Listen(addr, iris.WithoutServerError(iris.ErrServerClosed)); err != nil {
		lg.Error("admin server stopped", zap.Error(err))
	}
}
