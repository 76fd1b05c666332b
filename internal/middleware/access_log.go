package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/kataras/iris/v12"
	"go.uber.org/zap"

	"github.com/KumarG23/nep-back/internal/service"
)

const requestIDHeader = "X-Request-ID"

// AccessLog 记录请求日志与指标，并为每个请求分配 request id
func AccessLog(log *zap.Logger, monitor *service.Monitor) iris.Handler {
	return func(ctx iris.Context) {
		start := time.Now()
		reqID := ctx.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx.Header(requestIDHeader, reqID)

		ctx.Next()

		route := "unmatched"
		if r := ctx.GetCurrentRoute(); r != nil {
			route = r.Path()
		}
		status := ctx.GetStatusCode()
		elapsed := time.Since(start)
		monitor.RecordRequest(ctx.Method(), route, status, elapsed)

		fields := []zap.Field{
			zap.String("request_id", reqID),
			zap.String("method", ctx.Method()),
			zap.String("path", ctx.Path()),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
			zap.String("remote", ctx.RemoteAddr()),
		}
		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}
