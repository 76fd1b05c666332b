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

	// 加载配置：默认值 < config.yaml < .env < 环境变量
	cfg, err := config.Load(*dir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	deps, err := server.Build(cfg, lg)
	if err != nil {
		lg.Fatal("failed to init dependencies", zap.Error(err))
	}
	defer deps.Close()

	app := server.NewApp(deps)

	addr := cfg.Server.Addr()
	lg.Info("web server listening", zap.String("addr", addr))
	if err := app.Listen(addr, iris.WithoutServerError(iris.ErrServerClosed)); err != nil {
		lg.Error("web server stopped", zap.Error(err))
	}
}
