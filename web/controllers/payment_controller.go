package controllers

import (
	"time"

	"github.com/kataras/iris/v12"
	"go.uber.org/zap"

	"github.com/KumarG23/nep-back/internal/apperr"
	"github.com/KumarG23/nep-back/internal/middleware"
	"github.com/KumarG23/nep-back/internal/payment"
	"github.com/KumarG23/nep-back/internal/service"
)

const (
	signatureHeader  = "Stripe-Signature"
	webhookTolerance = 5 * time.Minute
)

// PaymentController 支付意图与网关回调
type PaymentController struct {
	orderService  *service.OrderService
	events        service.Publisher
	confirmQueue  string
	webhookSecret string
	log           *zap.Logger
}

// NewPaymentController events 为空时回调同步确认
func NewPaymentController(orderSvc *service.OrderService, events service.Publisher, confirmQueue, webhookSecret string, log *zap.Logger) *PaymentController {
	if log == nil {
		log = zap.NewNop()
	}
	return &PaymentController{
		orderService:  orderSvc,
		events:        events,
		confirmQueue:  confirmQueue,
		webhookSecret: webhookSecret,
		log:           log,
	}
}

// CreateIntent POST /create-payment-intent；items 为空时使用当前购物车
func (c *PaymentController) CreateIntent(ctx iris.Context) {
	var req struct {
		Items []itemRequest `json:"items"`
		Email string        `json:"email"`
	}
	if err := readJSON(ctx, &req); err != nil {
		WriteError(ctx, err)
		return
	}
	res, err := c.orderService.CreatePaymentIntent(ctx.Request().Context(),
		middleware.IdentityFrom(ctx), loadSessionCart(ctx), toItems(req.Items), req.Email)
	if err != nil {
		WriteError(ctx, err)
		return
	}
	writeJSON(ctx, iris.StatusOK, res)
}

// Webhook POST /webhooks/payment
func (c *PaymentController) Webhook(ctx iris.Context) {
	if c.webhookSecret == "" {
		WriteError(ctx, apperr.Validation("", "webhooks are not configured"))
		return
	}
	payload, err := ctx.GetBody()
	if err != nil {
		WriteError(ctx, apperr.Validation("", "could not read request body"))
		return
	}
	ev, err := payment.ParseWebhook(payload, ctx.GetHeader(signatureHeader), c.webhookSecret, webhookTolerance, time.Now())
	if err != nil {
		c.log.Warn("rejected webhook", zap.Error(err))
		WriteError(ctx, apperr.Validation("", "invalid webhook signature"))
		return
	}
	if ev.Type != payment.EventIntentSucceeded {
		writeJSON(ctx, iris.StatusOK, iris.Map{"received": true})
		return
	}
	intent, err := ev.Intent()
	if err != nil || intent.ID == "" {
		WriteError(ctx, apperr.Validation("", "malformed event payload"))
		return
	}

	reqCtx := ctx.Request().Context()
	if c.events != nil && c.confirmQueue != "" {
		err := c.events.Publish(reqCtx, c.confirmQueue, service.PaymentConfirmMessage{PaymentIntentID: intent.ID})
		if err == nil {
			writeJSON(ctx, iris.StatusOK, iris.Map{"received": true})
			return
		}
		c.log.Warn("enqueue payment confirmation failed, confirming inline",
			zap.String("payment_intent_id", intent.ID), zap.Error(err))
	}

	res, err := c.orderService.ConfirmIntent(reqCtx, intent.ID)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindValidation, apperr.KindNotFound, apperr.KindForbidden:
			// 重投也不会成功，告知网关已收到
			c.log.Warn("webhook confirmation dropped", zap.String("payment_intent_id", intent.ID), zap.Error(err))
			writeJSON(ctx, iris.StatusOK, iris.Map{"received": true})
		default:
			WriteError(ctx, err)
		}
		return
	}
	writeJSON(ctx, iris.StatusOK, iris.Map{"received": true, "order": res.Order.ID})
}
