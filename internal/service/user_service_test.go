package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KumarG23/nep-back/internal/apperr"
	"github.com/KumarG23/nep-back/internal/auth"
	"github.com/KumarG23/nep-back/internal/config"
	"github.com/KumarG23/nep-back/internal/repository/gormrepo"
)

func newUserService(t *testing.T) (*UserService, *config.JWTConfig) {
	t.Helper()
	jwtCfg := &config.JWTConfig{Secret: "test-secret", AccessTTL: time.Hour}
	return NewUserService(gormrepo.NewUserRepository(newTestDB(t)), jwtCfg, nil), jwtCfg
}

func validRegistration() RegisterInput {
	return RegisterInput{
		Username:  "sita",
		Password:  "s3cret!",
		Email:     "sita@example.com",
		FirstName: "Sita",
		LastName:  "Sharma",
	}
}

func TestRegisterAndLogin(t *testing.T) {
	svc, jwtCfg := newUserService(t)
	ctx := context.Background()

	p, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)
	require.NotNil(t, p.User)
	assert.NotEqual(t, "s3cret!", p.User.Password)

	pair, err := svc.Login(ctx, "sita", "s3cret!")
	require.NoError(t, err)
	claims, err := auth.ParseToken(jwtCfg, pair.Access)
	require.NoError(t, err)
	assert.Equal(t, p.User.ID, claims.UserID)
	assert.False(t, claims.IsAdmin)

	_, err = svc.Login(ctx, "sita", "wrong")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	_, err = svc.Login(ctx, "nobody", "wrong")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	profile, err := svc.GetProfile(ctx, auth.Identity{UserID: claims.UserID})
	require.NoError(t, err)
	assert.Equal(t, "sita@example.com", profile.Email)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	for _, field := range []string{"username", "password", "email", "first_name", "last_name"} {
		t.Run(field, func(t *testing.T) {
			in := validRegistration()
			switch field {
			case "username":
				in.Username = ""
			case "password":
				in.Password = ""
			case "email":
				in.Email = " "
			case "first_name":
				in.FirstName = ""
			case "last_name":
				in.LastName = ""
			}
			_, err := svc.Register(ctx, in)
			e, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, field, e.Field)
		})
	}
}

func TestRegisterDuplicates(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, validRegistration())
	require.NoError(t, err)

	_, err = svc.Register(ctx, validRegistration())
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "username", e.Field)

	in := validRegistration()
	in.Username = "gita"
	_, err = svc.Register(ctx, in)
	e, ok = apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "email", e.Field)

	// 邮箱冲突回滚了用户
	_, err = svc.Login(ctx, "gita", "s3cret!")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestEnsureAdmin(t *testing.T) {
	svc, jwtCfg := newUserService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureAdmin(ctx, "admin", "admin-pass"))
	require.NoError(t, svc.EnsureAdmin(ctx, "admin", "admin-pass"))

	pair, err := svc.Login(ctx, "admin", "admin-pass")
	require.NoError(t, err)
	assert.True(t, pair.IsAdmin)
	claims, err := auth.ParseToken(jwtCfg, pair.Access)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin)

	_, err = svc.Register(ctx, validRegistration())
	require.NoError(t, err)
	require.NoError(t, svc.EnsureAdmin(ctx, "sita", "ignored"))
	pair, err = svc.Login(ctx, "sita", "s3cret!")
	require.NoError(t, err)
	assert.True(t, pair.IsAdmin)

	assert.NoError(t, svc.EnsureAdmin(ctx, "", ""))
}
