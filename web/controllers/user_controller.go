package controllers

import (
	"github.com/kataras/iris/v12"

	"github.com/KumarG23/nep-back/internal/middleware"
	"github.com/KumarG23/nep-back/internal/service"
)

// UserController 注册、签发令牌与个人资料
type UserController struct {
	userService *service.UserService
}

// NewUserController 构造函数，供路由层复用同一套逻辑。
func NewUserController(userSvc *service.UserService) *UserController {
	return &UserController{userService: userSvc}
}

// Register POST /user/create
func (c *UserController) Register(ctx iris.Context) {
	var in service.RegisterInput
	if err := readJSON(ctx, &in); err != nil {
		WriteError(ctx, err)
		return
	}
	p, err := c.userService.Register(ctx.Request().Context(), in)
	if err != nil {
		WriteError(ctx, err)
		return
	}
	writeJSON(ctx, iris.StatusCreated, p)
}

// Token POST /token
func (c *UserController) Token(ctx iris.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := readJSON(ctx, &req); err != nil {
		WriteError(ctx, err)
		return
	}
	pair, err := c.userService.Login(ctx.Request().Context(), req.Username, req.Password)
	if err != nil {
		WriteError(ctx, err)
		return
	}
	writeJSON(ctx, iris.StatusOK, pair)
}

// Me GET /profiles/me
func (c *UserController) Me(ctx iris.Context) {
	p, err := c.userService.GetProfile(ctx.Request().Context(), middleware.IdentityFrom(ctx))
	if err != nil {
		WriteError(ctx, err)
		return
	}
	writeJSON(ctx, iris.StatusOK, p)
}
