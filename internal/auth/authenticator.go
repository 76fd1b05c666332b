package auth

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/KumarG23/nep-back/internal/apperr"
	"github.com/KumarG23/nep-back/internal/config"
)

// Authenticator 把 Authorization 头解析为 Identity，先查缓存再验签
type Authenticator struct {
	jwt   *config.JWTConfig
	cache *TokenCache
	log   *zap.Logger
}

func NewAuthenticator(jwtCfg *config.JWTConfig, cache *TokenCache, log *zap.Logger) *Authenticator {
	if cache == nil {
		cache = NewTokenCache(nil, nil, 0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Authenticator{jwt: jwtCfg, cache: cache, log: log}
}

// Authenticate header 为空返回匿名身份；格式错误或验签失败返回 Unauthorized
func (a *Authenticator) Authenticate(ctx context.Context, header string) (Identity, error) {
	token := strings.TrimSpace(header)
	if token == "" {
		return Identity{}, nil
	}
	if scheme, rest, ok := strings.Cut(token, " "); ok {
		if !strings.EqualFold(scheme, "Bearer") {
			return Identity{}, apperr.Unauthorized("unsupported authorization scheme")
		}
		token = strings.TrimSpace(rest)
	}

	claims, hit, err := a.cache.Get(ctx, token)
	if err != nil {
		a.log.Warn("token cache get failed", zap.Error(err))
	}
	if !hit {
		claims, err = ParseToken(a.jwt, token)
		if err != nil {
			return Identity{}, apperr.Unauthorized("invalid token")
		}
		if err := a.cache.Set(ctx, token, claims); err != nil {
			a.log.Warn("token cache set failed", zap.Error(err))
		}
	}
	return Identity{UserID: claims.UserID, Username: claims.Username, IsAdmin: claims.IsAdmin}, nil
}
