package server

import (
	"context"
	"net/http"
	"time"

	"github.com/kataras/iris/v12"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/KumarG23/nep-back/internal/middleware"
	webcontrollers "github.com/KumarG23/nep-back/web/controllers"
)

// NewApp 创建前台 API 应用，管理接口也挂在同一应用下
func NewApp(d *Deps) *iris.Application {
	app := newBaseApp(d)
	RegisterRoutes(app, d)
	RegisterAdminRoutes(app, d)
	return app
}

// newBaseApp 公共部分：访问日志、CORS、健康检查与指标
func newBaseApp(d *Deps) *iris.Application {
	app := iris.New()
	app.Configure(iris.WithoutPathCorrectionRedirection)
	app.Logger().SetLevel("warn")

	app.UseRouter(middleware.AccessLog(d.Log, d.Monitor))
	app.WrapRouter(cors.New(cors.Options{
		AllowedOrigins:   d.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	}).ServeHTTP)

	app.Get("/health", health(d))
	if reg := d.Monitor.Registry(); reg != nil {
		app.Get("/metrics", iris.FromStd(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}
	return app
}

func health(d *Deps) iris.Handler {
	return func(ctx iris.Context) {
		c, cancel := context.WithTimeout(ctx.Request().Context(), 2*time.Second)
		defer cancel()
		if err := d.Ping(c); err != nil {
			d.Log.Warn("health check failed", zap.Error(err))
			ctx.StopWithJSON(iris.StatusServiceUnavailable, iris.Map{"status": "unavailable"})
			return
		}
		_ = ctx.JSON(iris.Map{"status": "ok"})
	}
}

// RegisterRoutes 注册前台 HTTP 路由
func RegisterRoutes(app *iris.Application, d *Deps) {
	cfg := d.Config
	fail := webcontrollers.WriteError

	if cfg.Media.Backend == "" || cfg.Media.Backend == "fs" {
		app.HandleDir(cfg.Media.URLPrefix, iris.Dir(cfg.Media.Dir))
	}

	productCtl := webcontrollers.NewProductController(d.Products)
	cartCtl := webcontrollers.NewCartController(d.Carts)
	orderCtl := webcontrollers.NewOrderController(d.Orders)
	userCtl := webcontrollers.NewUserController(d.Users)
	paymentCtl := webcontrollers.NewPaymentController(d.Orders, d.Events, cfg.RabbitMQ.ConfirmQueue, cfg.Payment.WebhookSecret, d.Log)

	requireAuth := middleware.RequireAuth(fail)
	throttle := middleware.RateLimit(middleware.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst))

	// 所有接口都可匿名访问，携带无效令牌时 401
	api := app.Party("/", d.Sessions.Handler(), middleware.OptionalAuth(d.Auth, fail))

	// 商品目录
	api.Get("/products", productCtl.List)
	api.Get("/products/{id:int64}", productCtl.Get)
	api.Get("/products/{id:int64}/reviews", productCtl.ListReviews)
	api.Post("/products/{id:int64}/reviews", requireAuth, productCtl.AddReview)
	api.Get("/categories", productCtl.ListCategories)
	api.Get("/product-images", productCtl.ListImages)
	api.Get("/product-images/{id:int64}", productCtl.GetImage)

	// 用户
	api.Post("/user/create", userCtl.Register)
	api.Post("/token", throttle, userCtl.Token)
	api.Get("/profiles/me", requireAuth, userCtl.Me)

	// 购物车
	api.Get("/cart", cartCtl.Get)
	api.Post("/cart/add", cartCtl.Add)
	api.Delete("/cart/{id:int64}/delete", cartCtl.Remove)

	// 下单与支付
	api.Post("/orders", requireAuth, orderCtl.Create)
	api.Post("/checkout", requireAuth, orderCtl.Checkout)
	api.Get("/orders/get", requireAuth, orderCtl.Mine)
	api.Post("/orders/guest", throttle, orderCtl.Guest)
	api.Post("/orders/confirm", throttle, orderCtl.Confirm)
	api.Post("/create-payment-intent", throttle, paymentCtl.CreateIntent)
	api.Post("/webhooks/payment", paymentCtl.Webhook)
}
