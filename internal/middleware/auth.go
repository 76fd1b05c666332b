package middleware

import (
	"github.com/kataras/iris/v12"

	"github.com/KumarG23/nep-back/internal/apperr"
	"github.com/KumarG23/nep-back/internal/auth"
)

const identityKey = "identity"

// ErrorWriter 把错误写成 HTTP 响应，由 server 层提供
type ErrorWriter func(ctx iris.Context, err error)

// OptionalAuth 解析 Authorization 头；缺省为匿名，携带了无效凭证则直接 401
func OptionalAuth(a *auth.Authenticator, fail ErrorWriter) iris.Handler {
	return func(ctx iris.Context) {
		id, err := a.Authenticate(ctx.Request().Context(), ctx.GetHeader("Authorization"))
		if err != nil {
			fail(ctx, err)
			return
		}
		ctx.Values().Set(identityKey, id)
		ctx.Next()
	}
}

// RequireAuth 要求已登录
func RequireAuth(fail ErrorWriter) iris.Handler {
	return func(ctx iris.Context) {
		if IdentityFrom(ctx).Anonymous() {
			fail(ctx, apperr.Unauthorized("Authentication credentials were not provided."))
			return
		}
		ctx.Next()
	}
}

// RequireAdmin 要求管理员
func RequireAdmin(fail ErrorWriter) iris.Handler {
	return func(ctx iris.Context) {
		id := IdentityFrom(ctx)
		if id.Anonymous() {
			fail(ctx, apperr.Unauthorized("Authentication credentials were not provided."))
			return
		}
		if !id.IsAdmin {
			fail(ctx, apperr.Forbidden("You do not have permission to perform this action."))
			return
		}
		ctx.Next()
	}
}

// IdentityFrom 取当前请求的身份，未经过 OptionalAuth 时为匿名
func IdentityFrom(ctx iris.Context) auth.Identity {
	if id, ok := ctx.Values().Get(identityKey).(auth.Identity); ok {
		return id
	}
	return auth.Identity{}
}
