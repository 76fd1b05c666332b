package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/KumarG23/nep-back/internal/apperr"
	"github.com/KumarG23/nep-back/internal/config"
)

const breakerName = "payment-gateway"

// StateObserver 熔断器状态变化回调
type StateObserver func(name string, from, to gobreaker.State)

// StripeClient 基于 Stripe REST API 的网关实现
// 每次调用有总超时；网络错误、429、5xx 按指数退避重试；4xx 不重试也不计入熔断。
type StripeClient struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
	group   singleflight.Group
	timeout time.Duration
	log     *zap.Logger
}

// NewStripeClient 创建网关客户端，observer 可为空
func NewStripeClient(cfg config.PaymentConfig, log *zap.Logger, observer StateObserver) *StripeClient {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.SecretKey).
		SetTimeout(timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(isTransient)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && ratio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("payment breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if observer != nil {
				observer(name, from, to)
			}
		},
	})

	return &StripeClient{
		http:    httpClient,
		breaker: breaker,
		timeout: timeout,
		log:     log,
	}
}

// isTransient 只对网络错误、限流和服务端错误重试
func isTransient(r *resty.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

type intentBody struct {
	ID             string            `json:"id"`
	ClientSecret   string            `json:"client_secret"`
	Amount         int64             `json:"amount"`
	AmountReceived int64             `json:"amount_received"`
	Currency       string            `json:"currency"`
	Status         string            `json:"status"`
	ReceiptEmail   string            `json:"receipt_email"`
	Metadata       map[string]string `json:"metadata"`
}

func (b *intentBody) toIntent() *Intent {
	return &Intent{
		ID:             b.ID,
		ClientSecret:   b.ClientSecret,
		Amount:         b.Amount,
		AmountReceived: b.AmountReceived,
		Currency:       b.Currency,
		Status:         b.Status,
		Email:          b.ReceiptEmail,
		Metadata:       b.Metadata,
	}
}

type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// outcome 用于把 4xx 作为结果而不是熔断失败返回
type outcome struct {
	intent *Intent
	err    error
}

func (c *StripeClient) CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error) {
	if params.Amount <= 0 {
		return nil, apperr.Payment("amount must be positive", nil)
	}
	key := params.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	form := map[string]string{
		"amount":                             strconv.FormatInt(params.Amount, 10),
		"currency":                           params.Currency,
		"automatic_payment_methods[enabled]": "true",
	}
	if params.Email != "" {
		form["receipt_email"] = params.Email
	}
	for k, v := range params.Metadata {
		form["metadata["+k+"]"] = v
	}

	return c.do(ctx, "create", func(ctx context.Context) (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetHeader("Idempotency-Key", key).
			SetFormData(form).
			SetResult(&intentBody{}).
			SetError(&errorBody{}).
			Post("/v1/payment_intents")
	})
}

// RetrieveIntent 同一 id 的并发查询合并为一次网关调用
// 合并后的调用不跟随任何单个调用方的取消，只受客户端超时约束；调用方取消时自己先返回。
func (c *StripeClient) RetrieveIntent(ctx context.Context, id string) (*Intent, error) {
	if id == "" {
		return nil, apperr.Payment("payment intent id is required", nil)
	}
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(id, func() (interface{}, error) {
		return c.do(shared, "retrieve", func(ctx context.Context) (*resty.Response, error) {
			return c.http.R().
				SetContext(ctx).
				SetPathParam("id", id).
				SetResult(&intentBody{}).
				SetError(&errorBody{}).
				Get("/v1/payment_intents/{id}")
		})
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Intent), nil
	}
}

func (c *StripeClient) do(ctx context.Context, op string, send func(ctx context.Context) (*resty.Response, error)) (*Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := send(ctx)
		if err != nil {
			return nil, err
		}
		code := resp.StatusCode()
		if code == http.StatusTooManyRequests || code >= http.StatusInternalServerError {
			return nil, fmt.Errorf("gateway responded %d", code)
		}
		if resp.IsError() {
			return outcome{err: clientError(resp)}, nil
		}
		body, ok := resp.Result().(*intentBody)
		if !ok || body.ID == "" {
			return nil, errors.New("gateway returned an empty intent")
		}
		return outcome{intent: body.toIntent()}, nil
	})
	if err != nil {
		c.log.Error("payment gateway call failed", zap.String("op", op), zap.Error(err))
		return nil, apperr.Payment(ErrUnavailable.Error(), fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	out := res.(outcome)
	if out.err != nil {
		c.log.Info("payment gateway rejected request", zap.String("op", op), zap.Error(out.err))
		return nil, out.err
	}
	return out.intent, nil
}

func clientError(resp *resty.Response) error {
	msg := "payment request rejected"
	var cause error = fmt.Errorf("gateway responded %d", resp.StatusCode())
	if body, ok := resp.Error().(*errorBody); ok && body.Error.Message != "" {
		msg = body.Error.Message
		cause = fmt.Errorf("%s (%s)", body.Error.Type, body.Error.Code)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return apperr.Payment(ErrIntentNotFound.Error(), ErrIntentNotFound)
	}
	return apperr.Payment(msg, cause)
}
