// Package payment 支付网关客户端：创建与查询支付意图
package payment

import (
	"context"
	"errors"
)

// 支付意图状态，由网关维护
const (
	StatusSucceeded             = "succeeded"
	StatusProcessing            = "processing"
	StatusRequiresPaymentMethod = "requires_payment_method"
	StatusCanceled              = "canceled"
)

var (
	// ErrIntentNotFound 网关不认识该支付意图
	ErrIntentNotFound = errors.New("payment intent not found")
	// ErrUnavailable 网关不可达、超时或熔断，稍后可重试
	ErrUnavailable = errors.New("payment gateway unavailable")
)

// Intent 网关侧的支付意图，金额为最小货币单位
type Intent struct {
	ID             string
	ClientSecret   string
	Amount         int64
	AmountReceived int64
	Currency       string
	Status         string
	Email          string
	Metadata       map[string]string
}

// CreateIntentParams 创建支付意图参数
type CreateIntentParams struct {
	Amount   int64
	Currency string
	Email    string
	Metadata map[string]string
	// IdempotencyKey 为空时由客户端生成
	IdempotencyKey string
}

// Gateway 支付网关，所有错误均为 apperr.KindPayment
type Gateway interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*Intent, error)
}
