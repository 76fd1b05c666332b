package server

import (
	"github.com/kataras/iris/v12"

	"github.com/KumarG23/nep-back/internal/middleware"
	webcontrollers "github.com/KumarG23/nep-back/web/controllers"
)

// NewAdminApp 后台管理应用，只暴露管理接口，通常监听 8001 与前台分离
func NewAdminApp(d *Deps) *iris.Application {
	app := newBaseApp(d)
	RegisterAdminRoutes(app, d)
	return app
}

// RegisterAdminRoutes 注册后台管理端的 HTTP 路由，全部要求管理员身份
func RegisterAdminRoutes(app *iris.Application, d *Deps) {
	fail := webcontrollers.WriteError
	productCtl := webcontrollers.NewProductController(d.Products)
	orderCtl := webcontrollers.NewOrderController(d.Orders)

	admin := app.Party("/", middleware.OptionalAuth(d.Auth, fail), middleware.RequireAdmin(fail))

	// ---------- 商品管理 ----------
	admin.Post("/admin/products/add", productCtl.Create)
	admin.Put("/admin/products/{id:int64}/update", productCtl.Update)
	admin.Delete("/admin/products/{id:int64}/delete", productCtl.Delete)
	admin.Post("/admin/categories", productCtl.CreateCategory)

	// ---------- 商品附图 ----------
	admin.Post("/product-images", productCtl.UploadImage)
	admin.Delete("/product-images/{id:int64}", productCtl.DeleteImage)

	// ---------- 订单 ----------
	admin.Get("/admin/orders", orderCtl.Recent)
}
