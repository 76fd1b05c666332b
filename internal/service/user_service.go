package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/KumarG23/nep-back/internal/apperr"
	"github.com/KumarG23/nep-back/internal/auth"
	"github.com/KumarG23/nep-back/internal/config"
	"github.com/KumarG23/nep-back/internal/datamodels/user"
	"github.com/KumarG23/nep-back/internal/repository/gormrepo"
)

const msgBadCredentials = "No active account found with the given credentials"

// RegisterInput 注册参数，全部必填
type RegisterInput struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// TokenPair 登录结果
type TokenPair struct {
	Access   string `json:"access"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

type UserService struct {
	repo user.Repository
	jwt  *config.JWTConfig
	log  *zap.Logger
}

func NewUserService(repo user.Repository, jwt *config.JWTConfig, log *zap.Logger) *UserService {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserService{repo: repo, jwt: jwt, log: log}
}

// Register 创建用户及其资料，用户名与邮箱唯一
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*user.Profile, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	required := []struct{ field, value string }{
		{"username", in.Username},
		{"password", in.Password},
		{"email", in.Email},
		{"first_name", in.FirstName},
		{"last_name", in.LastName},
	}
	for _, r := range required {
		if r.value == "" {
			return nil, apperr.Validation(r.field, "This field is required.")
		}
	}
	if len(in.Username) > 150 {
		return nil, apperr.Validation("username", "Ensure this field has no more than 150 characters.")
	}
	if !strings.Contains(in.Email, "@") {
		return nil, apperr.Validation("email", "Enter a valid email address.")
	}

	if _, err := s.repo.GetByUsername(ctx, in.Username); err == nil {
		return nil, apperr.Validation("username", "A user with that username already exists.")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &user.User{Username: in.Username, Password: string(hash)}
	p := &user.Profile{FirstName: in.FirstName, LastName: in.LastName, Email: in.Email}
	if err := s.repo.Create(ctx, u, p); err != nil {
		if gormrepo.IsDuplicateKey(err) {
			// 用户名已预先校验，这里冲突的是邮箱
			return nil, apperr.Validation("email", "A user with that email already exists.")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	p.User = u
	s.log.Info("user registered", zap.Int64("user_id", u.ID), zap.String("username", u.Username))
	return p, nil
}

// Login 校验密码并签发 JWT
func (s *UserService) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	if username == "" {
		return nil, apperr.Validation("username", "This field is required.")
	}
	if password == "" {
		return nil, apperr.Validation("password", "This field is required.")
	}
	u, err := s.repo.GetByUsername(ctx, username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Unauthorized(msgBadCredentials)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return nil, apperr.Unauthorized(msgBadCredentials)
	}
	token, err := auth.GenerateToken(s.jwt, u.ID, u.Username, u.IsAdmin)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &TokenPair{Access: token, Username: u.Username, IsAdmin: u.IsAdmin}, nil
}

// GetProfile 当前用户资料
func (s *UserService) GetProfile(ctx context.Context, id auth.Identity) (*user.Profile, error) {
	if id.Anonymous() {
		return nil, apperr.Unauthorized("Authentication credentials were not provided.")
	}
	p, err := s.repo.GetProfile(ctx, id.UserID)
	if err != nil {
		return nil, notFoundOr(err, "Profile not found", "get profile")
	}
	return p, nil
}

// EnsureAdmin 启动时保证管理员账号存在；已有同名用户则只提升为管理员
func (s *UserService) EnsureAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}
	u, err := s.repo.GetByUsername(ctx, username)
	if err == nil {
		if u.IsAdmin {
			return nil
		}
		s.log.Info("promoting user to admin", zap.String("username", username))
		return s.repo.SetAdmin(ctx, u.ID, true)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("lookup admin: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	admin := &user.User{Username: username, Password: string(hash), IsAdmin: true}
	if err := s.repo.Create(ctx, admin, nil); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	s.log.Info("admin account created", zap.String("username", username))
	return nil
}
