package controllers

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/kataras/iris/v12"
	"go.uber.org/zap"

	"github.com/KumarG23/nep-back/internal/apperr"
)

const msgInternal = "internal server error"

// StatusOf 错误类别到 HTTP 状态码
func StatusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindPayment:
		return iris.StatusBadRequest
	case apperr.KindNotFound:
		return iris.StatusNotFound
	case apperr.KindUnauthorized:
		return iris.StatusUnauthorized
	case apperr.KindForbidden:
		return iris.StatusForbidden
	case apperr.KindConflict:
		return iris.StatusConflict
	default:
		return iris.StatusInternalServerError
	}
}

// WriteError 输出错误响应 {"error": msg, "field": f}；非业务错误只返回通用信息，原因写日志
func WriteError(ctx iris.Context, err error) {
	e, ok := apperr.As(err)
	if !ok || e.Kind == apperr.KindInternal {
		zap.L().Error("request failed",
			zap.String("method", ctx.Method()),
			zap.String("path", ctx.Path()),
			zap.Error(err))
		ctx.StopWithJSON(iris.StatusInternalServerError, iris.Map{"error": msgInternal})
		return
	}
	body := iris.Map{"error": e.Message}
	if e.Field != "" {
		body["field"] = e.Field
	}
	if e.Kind == apperr.KindPayment && e.Err != nil {
		zap.L().Warn("payment error", zap.String("path", ctx.Path()), zap.Error(e.Err))
	}
	ctx.StopWithJSON(StatusOf(e.Kind), body)
}

func writeJSON(ctx iris.Context, status int, v interface{}) {
	ctx.StatusCode(status)
	if err := ctx.JSON(v); err != nil {
		zap.L().Warn("write response failed", zap.Error(err))
	}
}

// readJSON 解析请求体，空请求体视为空对象
func readJSON(ctx iris.Context, v interface{}) error {
	body, err := ctx.GetBody()
	if err != nil {
		return apperr.Validation("", "could not read request body")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperr.Validation("", "Malformed JSON request body")
	}
	return nil
}

// idParam 读取路径参数，路由已用 {id:int64} 约束
func idParam(ctx iris.Context) int64 {
	id, _ := ctx.Params().GetInt64("id")
	return id
}

// queryInt64 读取可选的查询参数，缺省返回 0
func queryInt64(ctx iris.Context, name string) (int64, error) {
	raw := ctx.URLParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, apperr.Validation(name, "A valid integer is required.")
	}
	return n, nil
}
