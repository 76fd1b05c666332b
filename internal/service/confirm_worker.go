package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/KumarG23/nep-back/internal/apperr"
	"github.com/KumarG23/nep-back/internal/infra/mq"
	"github.com/KumarG23/nep-back/internal/payment"
)

// PaymentConfirmMessage 支付确认队列中的消息
type PaymentConfirmMessage struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

// ConfirmWorker 消费支付确认队列，为已支付的意图生成订单
type ConfirmWorker struct {
	orders  *OrderService
	monitor *Monitor
	log     *zap.Logger
}

func NewConfirmWorker(orders *OrderService, monitor *Monitor, log *zap.Logger) *ConfirmWorker {
	if log == nil {
		log = zap.NewNop()
	}
	return &ConfirmWorker{orders: orders, monitor: monitor, log: log}
}

// Handle 实现 mq.Handler；网关暂不可用、冲突或数据库错误延迟重试，其余失败转入死信队列
func (w *ConfirmWorker) Handle(ctx context.Context, body []byte) error {
	var msg PaymentConfirmMessage
	if err := json.Unmarshal(body, &msg); err != nil || msg.PaymentIntentID == "" {
		w.monitor.RecordWorker(false)
		return fmt.Errorf("%w: malformed confirm message %q", mq.ErrPermanent, body)
	}

	res, err := w.orders.ConfirmIntent(ctx, msg.PaymentIntentID)
	if err != nil {
		w.monitor.RecordWorker(false)
		if retryable(err) {
			return err
		}
		return fmt.Errorf("%w: %v", mq.ErrPermanent, err)
	}

	w.monitor.RecordWorker(true)
	w.log.Info("payment confirmed",
		zap.String("payment_intent_id", msg.PaymentIntentID),
		zap.Int64("order_id", res.Order.ID),
		zap.Bool("replayed", res.Replayed))
	return nil
}

func retryable(err error) bool {
	if errors.Is(err, payment.ErrUnavailable) {
		return true
	}
	return apperr.KindOf(err) == apperr.KindInternal || apperr.KindOf(err) == apperr.KindConflict
}
