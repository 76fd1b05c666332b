package config

import (
	"fmt"
	"time"
)

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Host string
	Port int
}

func (s ServerConfig) Addr() string {
	if s.Host == "" {
		s.Host = "0.0.0.0"
	}
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig 数据库配置，Driver 可选 mysql / postgres / sqlite
type DatabaseConfig struct {
	Driver       string
	DSN          string
	MaxOpenConns int
	// AutoMigrate 启动时自动建表
	AutoMigrate bool
}

// RedisConfig Redis 配置，Addr 为空时会话与鉴权缓存退化为内存实现
type RedisConfig struct {
	Addr     string
	PoolSize int
}

// RabbitMQConfig MQ 配置，URL 为空时支付回调同步处理
type RabbitMQConfig struct {
	URL string
	// ConfirmQueue 支付成功回调队列，由 order-worker 消费
	ConfirmQueue string
	// EventQueue 订单创建事件队列
	EventQueue string
	// MaxAttempts 消息最多处理次数，用尽后转入 <queue>.dead
	MaxAttempts int
	// RetryDelay 失败消息在 <queue>.retry 中等待的时间
	RetryDelay time.Duration
}

// AuthConfig 鉴权/一致性哈希配置
type AuthConfig struct {
	// Nodes 为参与一致性哈希环的节点标识（可用节点名/IP:port）
	Nodes []string
	// HashReplicas 虚拟节点倍数，用于平衡分布
	HashReplicas int
	// TokenCacheTTLSeconds JWT 解析结果缓存时间（秒）
	TokenCacheTTLSeconds int
	// AdminUsername / AdminPassword 非空时启动会确保该管理员存在
	AdminUsername string
	AdminPassword string
}

// JWTConfig JWT 配置
type JWTConfig struct {
	Secret    string
	AccessTTL time.Duration
}

// SessionConfig 匿名购物车所在的会话配置
type SessionConfig struct {
	Cookie  string
	Expires time.Duration
}

// PaymentConfig 支付网关配置
type PaymentConfig struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
	Currency      string
	Timeout       time.Duration
	MaxRetries    int
	// Sandbox 未配置 SecretKey 时允许使用内存沙箱网关，仅用于本地开发
	Sandbox bool
}

// OrderConfig 下单相关配置
type OrderConfig struct {
	// TotalTolerance 游客下单时客户端总价允许的误差（主币单位）
	TotalTolerance string
}

// MediaConfig 图片存储配置，Backend 可选 fs / cloudinary
type MediaConfig struct {
	Backend       string
	Dir           string
	URLPrefix     string
	CloudinaryURL string
	Folder        string
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins []string
}

// RateLimitConfig 支付类接口限流配置
type RateLimitConfig struct {
	PerSecond float64
	Burst     int
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string
	Format string
}

// Config 应用总配置
type Config struct {
	Server      ServerConfig
	AdminServer ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	RabbitMQ    RabbitMQConfig
	Auth        AuthConfig
	JWT         JWTConfig
	Session     SessionConfig
	Payment     PaymentConfig
	Order       OrderConfig
	Media       MediaConfig
	CORS        CORSConfig
	RateLimit   RateLimitConfig
	Log         LogConfig
}

// DefaultConfig 默认配置，方便本地用 sqlite 快速跑起来
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		AdminServer: ServerConfig{
			Host: "0.0.0.0",
			Port: 8001,
		},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			DSN:          "nep.db",
			MaxOpenConns: 1,
			AutoMigrate:  true,
		},
		Redis: RedisConfig{
			PoolSize: 10,
		},
		RabbitMQ: RabbitMQConfig{
			ConfirmQueue: "payment_confirm_queue",
			EventQueue:   "order_placed_queue",
			MaxAttempts:  8,
			RetryDelay:   30 * time.Second,
		},
		Auth: AuthConfig{
			Nodes:                []string{"auth-node-1", "auth-node-2", "auth-node-3"},
			HashReplicas:         50,
			TokenCacheTTLSeconds: 600,
		},
		JWT: JWTConfig{
			Secret:    "nep-back-secret",
			AccessTTL: 2 * time.Hour,
		},
		Session: SessionConfig{
			Cookie:  "sessionid",
			Expires: 14 * 24 * time.Hour,
		},
		Payment: PaymentConfig{
			BaseURL:    "https://api.stripe.com",
			Currency:   "usd",
			Timeout:    10 * time.Second,
			MaxRetries: 2,
		},
		Order: OrderConfig{
			TotalTolerance: "0.01",
		},
		Media: MediaConfig{
			Backend:   "fs",
			Dir:       "./media",
			URLPrefix: "/media",
			Folder:    "product_images",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
		},
		RateLimit: RateLimitConfig{
			PerSecond: 5,
			Burst:     10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
