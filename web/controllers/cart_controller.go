package controllers

import (
	"strconv"
	"strings"

	"github.com/kataras/iris/v12"

	"github.com/KumarG23/nep-back/internal/apperr"
	"github.com/KumarG23/nep-back/internal/middleware"
	"github.com/KumarG23/nep-back/internal/service"
)

// CartController 购物车接口，匿名用户的购物车保存在会话中
type CartController struct {
	cartService *service.CartService
}

func NewCartController(cartSvc *service.CartService) *CartController {
	return &CartController{cartService: cartSvc}
}

// Get GET /cart
func (c *CartController) Get(ctx iris.Context) {
	view, err := c.cartService.Get(ctx.Request().Context(), middleware.IdentityFrom(ctx), loadSessionCart(ctx))
	if err != nil {
		WriteError(ctx, err)
		return
	}
	writeJSON(ctx, iris.StatusOK, view)
}

type addLineRequest struct {
	ProductID int64 `json:"product_id"`
	Product   int64 `json:"product"`
	Quantity  *int  `json:"quantity"`
}

// Add POST /cart/add，接受 JSON 或表单；quantity 缺省为 1
func (c *CartController) Add(ctx iris.Context) {
	req, err := readAddLine(ctx)
	if err != nil {
		WriteError(ctx, err)
		return
	}
	productID := req.ProductID
	if productID == 0 {
		productID = req.Product
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	id := middleware.IdentityFrom(ctx)
	item, sess, err := c.cartService.AddLine(ctx.Request().Context(), id, loadSessionCart(ctx), productID, qty)
	if err != nil {
		WriteError(ctx, err)
		return
	}
	if id.Anonymous() {
		if err := saveSessionCart(ctx, sess); err != nil {
			WriteError(ctx, err)
			return
		}
	}
	writeJSON(ctx, iris.StatusCreated, item)
}

func readAddLine(ctx iris.Context) (addLineRequest, error) {
	var req addLineRequest
	ct := ctx.GetContentTypeRequested()
	if !strings.HasPrefix(ct, "application/x-www-form-urlencoded") && !strings.HasPrefix(ct, "multipart/form-data") {
		return req, readJSON(ctx, &req)
	}

	parse := func(field string) (int64, error) {
		raw := ctx.FormValue(field)
		if raw == "" {
			return 0, nil
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, apperr.Validation(field, "A valid integer is required.")
		}
		return n, nil
	}
	var err error
	if req.ProductID, err = parse("product_id"); err != nil {
		return req, err
	}
	if req.Product, err = parse("product"); err != nil {
		return req, err
	}
	if ctx.FormValue("quantity") != "" {
		n, err := parse("quantity")
		if err != nil {
			return req, err
		}
		qty := int(n)
		req.Quantity = &qty
	}
	return req, nil
}

// Remove DELETE /cart/{id}/delete；匿名购物车的行 id 为商品 id
func (c *CartController) Remove(ctx iris.Context) {
	id := middleware.IdentityFrom(ctx)
	sess, err := c.cartService.RemoveLine(ctx.Request().Context(), id, loadSessionCart(ctx), idParam(ctx))
	if err != nil {
		WriteError(ctx, err)
		return
	}
	if id.Anonymous() {
		if err := saveSessionCart(ctx, sess); err != nil {
			WriteError(ctx, err)
			return
		}
	}
	ctx.StatusCode(iris.StatusNoContent)
}
