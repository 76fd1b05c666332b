package controllers

import (
	"encoding/json"

	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/sessions"
	"go.uber.org/zap"

	"github.com/KumarG23/nep-back/internal/datamodels/cart"
)

const sessionCartKey = "cart"

// loadSessionCart 读取会话购物车，以 JSON 字符串保存，兼容 redis 会话存储
func loadSessionCart(ctx iris.Context) cart.SessionCart {
	sess := sessions.Get(ctx)
	if sess == nil {
		return nil
	}
	raw := sess.GetString(sessionCartKey)
	if raw == "" {
		return nil
	}
	var sc cart.SessionCart
	if err := json.Unmarshal([]byte(raw), &sc); err != nil {
		// 损坏的会话数据直接丢弃
		zap.L().Warn("discarding malformed session cart", zap.Error(err))
		sess.Delete(sessionCartKey)
		return nil
	}
	return sc
}

func saveSessionCart(ctx iris.Context, sc cart.SessionCart) error {
	sess := sessions.Get(ctx)
	if sess == nil {
		return nil
	}
	if len(sc) == 0 {
		sess.Delete(sessionCartKey)
		return nil
	}
	raw, err := json.Marshal(sc)
	if err != nil {
		return err
	}
	sess.Set(sessionCartKey, string(raw))
	return nil
}
