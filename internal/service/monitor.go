package service

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sony/gobreaker"
)

// 订单转换结果标签
const (
	ResultCreated  = "created"
	ResultReplayed = "replayed"
	ResultFailed   = "failed"
)

// Monitor 监控服务，统计请求、下单、支付与 Worker 指标，通过 /metrics 暴露
// 所有方法对 nil 接收者安全，测试中可直接传 nil。
type Monitor struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	orders          *prometheus.CounterVec
	paymentErrors   prometheus.Counter
	breakerState    *prometheus.GaugeVec
	mqErrors        prometheus.Counter
	dbErrors        prometheus.Counter
	workerProcessed *prometheus.CounterVec
}

// NewMonitor 创建独立 registry 的监控实例
func NewMonitor() *Monitor {
	m := &Monitor{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nep_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nep_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nep_orders_total",
			Help: "Order conversions by source and result.",
		}, []string{"source", "result"}),
		paymentErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nep_payment_errors_total",
			Help: "Payment gateway failures surfaced to callers.",
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nep_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		}, []string{"name"}),
		mqErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nep_mq_errors_total",
			Help: "Message broker publish failures.",
		}),
		dbErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nep_db_errors_total",
			Help: "Unexpected database failures.",
		}),
		workerProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nep_worker_messages_total",
			Help: "Messages handled by the order worker.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.requests, m.latency, m.orders, m.paymentErrors, m.breakerState,
		m.mqErrors, m.dbErrors, m.workerProcessed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry 供 promhttp 暴露
func (m *Monitor) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest 记录一次 HTTP 请求
func (m *Monitor) RecordRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordOrder 记录一次下单结果
func (m *Monitor) RecordOrder(source, result string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(source, result).Inc()
}

// RecordPaymentError 记录支付网关错误
func (m *Monitor) RecordPaymentError() {
	if m == nil {
		return
	}
	m.paymentErrors.Inc()
}

// RecordMQError 记录MQ错误
func (m *Monitor) RecordMQError() {
	if m == nil {
		return
	}
	m.mqErrors.Inc()
}

// RecordDBError 记录数据库错误
func (m *Monitor) RecordDBError() {
	if m == nil {
		return
	}
	m.dbErrors.Inc()
}

// RecordWorker 记录Worker处理结果
func (m *Monitor) RecordWorker(ok bool) {
	if m == nil {
		return
	}
	result := "processed"
	if !ok {
		result = "failed"
	}
	m.workerProcessed.WithLabelValues(result).Inc()
}

// BreakerStateChanged 熔断器状态变化，签名与 payment.StateObserver 一致
func (m *Monitor) BreakerStateChanged(name string, _, to gobreaker.State) {
	if m == nil {
		return
	}
	state := float64(0)
	switch to {
	case gobreaker.StateOpen:
		state = 1
	case gobreaker.StateHalfOpen:
		state = 2
	}
	m.breakerState.WithLabelValues(name).Set(state)
}
