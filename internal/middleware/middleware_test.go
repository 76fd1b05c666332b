package middleware

import (
	"testing"
	"time"

	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/httptest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KumarG23/nep-back/internal/apperr"
	"github.com/KumarG23/nep-back/internal/auth"
	"github.com/KumarG23/nep-back/internal/config"
	"github.com/KumarG23/nep-back/internal/service"
)

func writeKind(ctx iris.Context, err error) {
	status := iris.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindUnauthorized:
		status = iris.StatusUnauthorized
	case apperr.KindForbidden:
		status = iris.StatusForbidden
	}
	ctx.StopWithJSON(status, iris.Map{"error": err.Error()})
}

func TestRateLimiterPerKey(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	// 其他客户端不受影响
	assert.True(t, rl.Allow("b"))
}

func TestRateLimitMiddleware(t *testing.T) {
	app := iris.New()
	app.Get("/pay", RateLimit(NewRateLimiter(0.001, 1)), func(ctx iris.Context) {
		ctx.StatusCode(iris.StatusOK)
	})
	e := httptest.New(t, app)

	e.GET("/pay").Expect().Status(httptest.StatusOK)
	e.GET("/pay").Expect().Status(httptest.StatusTooManyRequests)
}

func TestAuthMiddlewares(t *testing.T) {
	jwtCfg := &config.JWTConfig{Secret: "mw-secret", AccessTTL: time.Hour}
	a := auth.NewAuthenticator(jwtCfg, nil, nil)

	app := iris.New()
	api := app.Party("/", OptionalAuth(a, writeKind))
	api.Get("/whoami", func(ctx iris.Context) {
		_ = ctx.JSON(iris.Map{"user": IdentityFrom(ctx).UserID})
	})
	api.Get("/private", RequireAuth(writeKind), func(ctx iris.Context) {
		ctx.StatusCode(iris.StatusOK)
	})
	api.Get("/admin", RequireAdmin(writeKind), func(ctx iris.Context) {
		ctx.StatusCode(iris.StatusOK)
	})
	e := httptest.New(t, app)

	userTok, err := auth.GenerateToken(jwtCfg, 11, "sita", false)
	require.NoError(t, err)
	adminTok, err := auth.GenerateToken(jwtCfg, 1, "admin", true)
	require.NoError(t, err)

	anon := e.GET("/whoami").Expect().Status(httptest.StatusOK).JSON().Object().Raw()
	assert.EqualValues(t, 0, anon["user"])
	me := e.GET("/whoami").WithHeader("Authorization", "Bearer "+userTok).Expect().Status(httptest.StatusOK).JSON().Object().Raw()
	assert.EqualValues(t, 11, me["user"])
	// 不带 Bearer 前缀也接受
	e.GET("/whoami").WithHeader("Authorization", userTok).Expect().Status(httptest.StatusOK)
	e.GET("/whoami").WithHeader("Authorization", "Bearer garbage").Expect().Status(httptest.StatusUnauthorized)
	e.GET("/whoami").WithHeader("Authorization", "Basic Zm9vOmJhcg==").Expect().Status(httptest.StatusUnauthorized)

	e.GET("/private").Expect().Status(httptest.StatusUnauthorized)
	e.GET("/private").WithHeader("Authorization", "Bearer "+userTok).Expect().Status(httptest.StatusOK)

	e.GET("/admin").Expect().Status(httptest.StatusUnauthorized)
	e.GET("/admin").WithHeader("Authorization", "Bearer "+userTok).Expect().Status(httptest.StatusForbidden)
	e.GET("/admin").WithHeader("Authorization", "Bearer "+adminTok).Expect().Status(httptest.StatusOK)
}

func TestAccessLogSetsRequestID(t *testing.T) {
	app := iris.New()
	app.UseRouter(AccessLog(zap.NewNop(), service.NewMonitor()))
	app.Get("/ping", func(ctx iris.Context) {
		ctx.StatusCode(iris.StatusOK)
	})
	e := httptest.New(t, app)

	generated := e.GET("/ping").Expect().Status(httptest.StatusOK).Header(requestIDHeader).Raw()
	assert.NotEmpty(t, generated)
	passed := e.GET("/ping").WithHeader(requestIDHeader, "abc").Expect().Header(requestIDHeader).Raw()
	assert.Equal(t, "abc", passed)
}
