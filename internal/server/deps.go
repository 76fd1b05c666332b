package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kataras/iris/v12/sessions"
	sessionredis "github.com/kataras/iris/v12/sessions/sessiondb/redis"
	radix "github.com/mediocregopher/radix/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/KumarG23/nep-back/internal/auth"
	"github.com/KumarG23/nep-back/internal/config"
	"github.com/KumarG23/nep-back/internal/infra/mq"
	"github.com/KumarG23/nep-back/internal/infra/redis"
	"github.com/KumarG23/nep-back/internal/payment"
	"github.com/KumarG23/nep-back/internal/repository/gormrepo"
	"github.com/KumarG23/nep-back/internal/service"
	"github.com/KumarG23/nep-back/internal/storage"
)

// Deps 各服务进程共用的依赖
type Deps struct {
	Config  *config.Config
	Log     *zap.Logger
	DB      *gorm.DB
	Redis   radix.Client // 未配置时为 nil
	MQ      *mq.Client   // 未配置或连接失败时为 nil
	Events  service.Publisher
	Monitor *service.Monitor
	Auth    *auth.Authenticator

	Sessions *sessions.Sessions

	Products *service.ProductService
	Carts    *service.CartService
	Orders   *service.OrderService
	Users    *service.UserService

	closers []func() error
}

// Build 初始化基础设施与服务
func Build(cfg *config.Config, log *zap.Logger) (*Deps, error) {
	d := &Deps{Config: cfg, Log: log, Monitor: service.NewMonitor()}

	// 1) 数据库
	db, err := gormrepo.Open(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	d.DB = db
	d.closers = append(d.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	// 2) Redis：令牌缓存
	rc, err := redis.New(cfg.Redis)
	if err != nil {
		d.Close()
		return nil, err
	}
	if rc != nil {
		d.Redis = rc
		d.closers = append(d.closers, rc.Close)
	}

	// 3) RabbitMQ：可选，不可用时回调同步确认、订单事件不投递
	if cfg.RabbitMQ.URL != "" {
		client, err := mq.Dial(cfg.RabbitMQ, log)
		if err != nil {
			log.Warn("rabbitmq unavailable, continuing without broker", zap.Error(err))
		} else {
			d.MQ = client
			d.Events = client
			d.closers = append(d.closers, client.Close)
		}
	}

	ring := auth.NewConsistentHashRing(cfg.Auth.Nodes, cfg.Auth.HashReplicas)
	cache := auth.NewTokenCache(d.Redis, ring, time.Duration(cfg.Auth.TokenCacheTTLSeconds)*time.Second)
	d.Auth = auth.NewAuthenticator(&cfg.JWT, cache, log)

	d.Sessions = newSessions(cfg.Session, cfg.Redis, d)

	store, err := storage.New(cfg.Media)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("init media storage: %w", err)
	}

	gateway, err := newGateway(cfg.Payment, log, d.Monitor)
	if err != nil {
		d.Close()
		return nil, err
	}

	tolerance, err := decimal.NewFromString(cfg.Order.TotalTolerance)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("invalid order total tolerance %q: %w", cfg.Order.TotalTolerance, err)
	}

	// 4) 仓储与服务
	d.wire(store, gateway, tolerance)

	if err := d.Users.EnsureAdmin(context.Background(), cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
		d.Close()
		return nil, fmt.Errorf("ensure admin: %w", err)
	}
	return d, nil
}

// wire 创建仓储与服务
func (d *Deps) wire(store storage.Store, gateway payment.Gateway, tolerance decimal.Decimal) {
	cfg, db, log := d.Config, d.DB, d.Log
	productRepo := gormrepo.NewProductRepository(db)
	cartRepo := gormrepo.NewCartRepository(db)
	orderRepo := gormrepo.NewOrderRepository(db)
	userRepo := gormrepo.NewUserRepository(db)

	d.Products = service.NewProductService(productRepo, gormrepo.NewImageRepository(db), gormrepo.NewReviewRepository(db), store, log)
	d.Carts = service.NewCartService(cartRepo, productRepo, log)
	d.Orders = service.NewOrderService(db, orderRepo, productRepo, cartRepo, gateway, d.Events,
		service.OrderOptions{
			Currency:       cfg.Payment.Currency,
			TotalTolerance: tolerance,
			EventQueue:     cfg.RabbitMQ.EventQueue,
		}, d.Monitor, log)
	d.Users = service.NewUserService(userRepo, &cfg.JWT, log)
}

// errNoPaymentKey 未配置支付密钥且未开启沙箱
var errNoPaymentKey = errors.New("payment secret key is not set (set Payment.Sandbox for local development)")

// newGateway 配置了 SecretKey 时使用真实网关；沙箱网关创建的支付意图永远不会成功，只允许显式开启
func newGateway(cfg config.PaymentConfig, log *zap.Logger, monitor *service.Monitor) (payment.Gateway, error) {
	if cfg.SecretKey != "" {
		return payment.NewStripeClient(cfg, log, monitor.BreakerStateChanged), nil
	}
	if !cfg.Sandbox {
		return nil, errNoPaymentKey
	}
	log.Warn("payment secret key not set, using in-memory sandbox gateway; payments will never succeed")
	return payment.NewMemoryGateway(), nil
}

// newSessions 会话 cookie 保存匿名购物车；配置了 Redis 时会话数据存入 Redis
func newSessions(cfg config.SessionConfig, redisCfg config.RedisConfig, d *Deps) *sessions.Sessions {
	sess := sessions.New(sessions.Config{
		Cookie:       cfg.Cookie,
		Expires:      cfg.Expires,
		AllowReclaim: true,
	})
	if redisCfg.Addr == "" {
		return sess
	}
	rcfg := sessionredis.DefaultConfig()
	rcfg.Addr = redisCfg.Addr
	rcfg.Prefix = "nep:session:"
	if redisCfg.PoolSize > 0 {
		rcfg.MaxActive = redisCfg.PoolSize
	}
	db := sessionredis.New(rcfg)
	if db == nil {
		d.Log.Warn("redis session store unavailable, using in-memory sessions", zap.String("addr", redisCfg.Addr))
		return sess
	}
	sess.UseDatabase(db)
	d.closers = append(d.closers, db.Close)
	return sess
}

// Close 按创建的逆序释放资源
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil && d.Log != nil {
			d.Log.Warn("close resource failed", zap.Error(err))
		}
	}
	d.closers = nil
}

// Ping 依赖健康检查
func (d *Deps) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := redis.Ping(d.Redis); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}
