package controllers

import (
	"strings"

	"github.com/kataras/iris/v12"
	"github.com/shopspring/decimal"

	"github.com/KumarG23/nep-back/internal/apperr"
	"github.com/KumarG23/nep-back/internal/middleware"
	"github.com/KumarG23/nep-back/internal/service"
)

const defaultAdminOrderLimit = 50

// OrderController 下单接口：购物车结算、游客下单、支付确认
type OrderController struct {
	orderService *service.OrderService
}

func NewOrderController(orderSvc *service.OrderService) *OrderController {
	return &OrderController{orderService: orderSvc}
}

// itemRequest 条目，product 与 product_id 都可以
type itemRequest struct {
	ProductID int64 `json:"product_id"`
	Product   int64 `json:"product"`
	Quantity  *int  `json:"quantity"`
}

func toItems(reqs []itemRequest) []service.Item {
	items := make([]service.Item, 0, len(reqs))
	for _, r := range reqs {
		it := service.Item{ProductID: r.ProductID, Quantity: 1}
		if it.ProductID == 0 {
			it.ProductID = r.Product
		}
		if r.Quantity != nil {
			it.Quantity = *r.Quantity
		}
		items = append(items, it)
	}
	return items
}

type checkoutRequest struct {
	CartID *int64 `json:"cart_id"`
}

// Create POST /orders，cart_id 缺省时结算自己的购物车
func (c *OrderController) Create(ctx iris.Context) {
	var req checkoutRequest
	if err := readJSON(ctx, &req); err != nil {
		WriteError(ctx, err)
		return
	}
	var cartID int64
	if req.CartID != nil {
		cartID = *req.CartID
	}
	c.checkout(ctx, cartID)
}

// Checkout POST /checkout，必须指定 cart_id
func (c *OrderController) Checkout(ctx iris.Context) {
	var req checkoutRequest
	if err := readJSON(ctx, &req); err != nil {
		WriteError(ctx, err)
		return
	}
	if req.CartID == nil || *req.CartID <= 0 {
		WriteError(ctx, apperr.Validation("cart_id", "Cart ID is required"))
		return
	}
	c.checkout(ctx, *req.CartID)
}

func (c *OrderController) checkout(ctx iris.Context, cartID int64) {
	o, err := c.orderService.CheckoutCart(ctx.Request().Context(), middleware.IdentityFrom(ctx), cartID)
	if err != nil {
		WriteError(ctx, err)
		return
	}
	writeJSON(ctx, iris.StatusCreated, o)
}

// Guest POST /orders/guest
func (c *OrderController) Guest(ctx iris.Context) {
	var req struct {
		Items      []itemRequest    `json:"items"`
		TotalPrice *decimal.Decimal `json:"total_price"`
		Email      string           `json:"email"`
	}
	if err := readJSON(ctx, &req); err != nil {
		WriteError(ctx, err)
		return
	}
	o, err := c.orderService.CreateGuestOrder(ctx.Request().Context(), service.GuestOrderRequest{
		Items:      toItems(req.Items),
		TotalPrice: req.TotalPrice,
		Email:      req.Email,
	})
	if err != nil {
		WriteError(ctx, err)
		return
	}
	writeJSON(ctx, iris.StatusCreated, o)
}

// Confirm POST /orders/confirm，重复确认返回同一个订单
func (c *OrderController) Confirm(ctx iris.Context) {
	var req struct {
		PaymentIntentID string        `json:"payment_intent_id"`
		PaymentIntent   string        `json:"paymentIntentId"`
		Items           []itemRequest `json:"items"`
	}
	if err := readJSON(ctx, &req); err != nil {
		WriteError(ctx, err)
		return
	}
	intentID := req.PaymentIntentID
	if intentID == "" {
		intentID = req.PaymentIntent
	}

	id := middleware.IdentityFrom(ctx)
	res, err := c.orderService.ConfirmPayment(ctx.Request().Context(), id, service.ConfirmRequest{
		PaymentIntentID: strings.TrimSpace(intentID),
		Items:           toItems(req.Items),
	})
	if err != nil {
		WriteError(ctx, err)
		return
	}
	if id.Anonymous() && !res.Replayed {
		if err := saveSessionCart(ctx, nil); err != nil {
			WriteError(ctx, err)
			return
		}
	}
	writeJSON(ctx, iris.StatusOK, res.Order)
}

// Mine GET /orders/get
func (c *OrderController) Mine(ctx iris.Context) {
	list, err := c.orderService.ListByUser(ctx.Request().Context(), middleware.IdentityFrom(ctx).UserID)
	if err != nil {
		WriteError(ctx, err)
		return
	}
	writeJSON(ctx, iris.StatusOK, list)
}

// Recent GET /admin/orders?limit=N
func (c *OrderController) Recent(ctx iris.Context) {
	limit := ctx.URLParamIntDefault("limit", defaultAdminOrderLimit)
	if limit <= 0 || limit > 500 {
		WriteError(ctx, apperr.Validation("limit", "Ensure this value is between 1 and 500."))
		return
	}
	list, err := c.orderService.ListRecent(ctx.Request().Context(), limit)
	if err != nil {
		WriteError(ctx, err)
		return
	}
	writeJSON(ctx, iris.StatusOK, list)
}
