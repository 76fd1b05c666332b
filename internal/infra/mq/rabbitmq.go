package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/KumarG23/nep-back/internal/config"
)

// ErrPermanent 处理器返回该错误时不再重试，消息直接转入死信队列
var ErrPermanent = errors.New("permanent message failure")

const (
	attemptsHeader  = "x-attempts"
	lastErrorHeader = "x-last-error"

	defaultMaxAttempts = 8
	defaultRetryDelay  = 30 * time.Second
)

// RetryQueue 延迟重试队列，消息过期后回到 queue
func RetryQueue(queue string) string { return queue + ".retry" }

// DeadQueue 处理失败且不再重试的消息
func DeadQueue(queue string) string { return queue + ".dead" }

// Client RabbitMQ 连接封装
type Client struct {
	conn        *amqp.Connection
	maxAttempts int
	retryDelay  time.Duration
	log         *zap.Logger
}

// Dial 建立连接
func Dial(cfg config.RabbitMQConfig, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	c := &Client{conn: conn, maxAttempts: cfg.MaxAttempts, retryDelay: cfg.RetryDelay, log: log}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.retryDelay <= 0 {
		c.retryDelay = defaultRetryDelay
	}
	return c, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Publish 以持久化 JSON 消息投递到 queue，每次使用独立 channel
func (c *Client) Publish(ctx context.Context, queue string, v interface{}) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if _, err = ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return err
	}

	body, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return ch.PublishWithContext(
		ctx,
		"",
		queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Handler 处理一条消息：nil 确认；ErrPermanent 转入死信队列；其他错误延迟重试，次数用尽后转入死信队列
type Handler func(ctx context.Context, body []byte) error

// Consume 手动确认模式消费 queue，直到 ctx 结束或连接关闭
func (c *Client) Consume(ctx context.Context, queue string, prefetch int, handle Handler) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := c.declareTopology(ch, queue); err != nil {
		return err
	}
	if prefetch > 0 {
		if err = ch.Qos(prefetch, 0, false); err != nil {
			return err
		}
	}

	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.dispatch(ctx, ch, queue, d, handle)
		}
	}
}

// declareTopology 主队列、重试队列（TTL 到期后经默认交换机回到主队列）与死信队列
func (c *Client) declareTopology(ch *amqp.Channel, queue string) error {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(RetryQueue(queue), true, false, false, false, amqp.Table{
		"x-message-ttl":             c.retryDelay.Milliseconds(),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue,
	}); err != nil {
		return fmt.Errorf("declare retry queue: %w", err)
	}
	if _, err := ch.QueueDeclare(DeadQueue(queue), true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead queue: %w", err)
	}
	return nil
}

type outcome int

const (
	outcomeAck outcome = iota
	outcomeRetry
	outcomeDead
)

// decide attempts 为此前已失败的次数
func decide(err error, attempts, maxAttempts int) outcome {
	switch {
	case err == nil:
		return outcomeAck
	case errors.Is(err, ErrPermanent):
		return outcomeDead
	case attempts+1 < maxAttempts:
		return outcomeRetry
	default:
		return outcomeDead
	}
}

func attemptsOf(h amqp.Table) int {
	switch n := h[attemptsHeader].(type) {
	case int32:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	case int16:
		return int(n)
	case int8:
		return int(n)
	}
	return 0
}

func (c *Client) dispatch(ctx context.Context, ch *amqp.Channel, queue string, d amqp.Delivery, handle Handler) {
	attempts := attemptsOf(d.Headers)
	err := handle(ctx, d.Body)

	target := ""
	switch decide(err, attempts, c.maxAttempts) {
	case outcomeAck:
		if ackErr := d.Ack(false); ackErr != nil {
			c.log.Error("ack failed", zap.Error(ackErr))
		}
		return
	case outcomeRetry:
		target = RetryQueue(queue)
		c.log.Warn("message handling failed, retrying later",
			zap.Int("attempt", attempts+1), zap.Duration("delay", c.retryDelay), zap.Error(err))
	case outcomeDead:
		target = DeadQueue(queue)
		c.log.Error("message moved to dead queue", zap.Int("attempt", attempts+1), zap.Error(err))
	}

	// 原消息只在转投成功后确认；转投失败时交回 broker 重新投递
	pubErr := ch.PublishWithContext(context.WithoutCancel(ctx), "", target, false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		Body:         d.Body,
		Headers: amqp.Table{
			attemptsHeader:  int32(attempts + 1),
			lastErrorHeader: err.Error(),
		},
	})
	if pubErr != nil {
		c.log.Error("forward failed message", zap.String("target", target), zap.Error(pubErr))
		_ = d.Nack(false, true)
		return
	}
	if ackErr := d.Ack(false); ackErr != nil {
		c.log.Error("ack failed", zap.Error(ackErr))
	}
}
