package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/KumarG23/nep-back/internal/apperr"
	"github.com/KumarG23/nep-back/internal/auth"
	"github.com/KumarG23/nep-back/internal/datamodels/cart"
	"github.com/KumarG23/nep-back/internal/datamodels/product"
)

// CartProductView 购物车行里的商品摘要
type CartProductView struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Image string          `json:"image,omitempty"`
}

// CartItemView 购物车行；匿名购物车的行 id 即商品 id
type CartItemView struct {
	ID       int64           `json:"id"`
	Product  CartProductView `json:"product"`
	Quantity int             `json:"quantity"`
	Subtotal decimal.Decimal `json:"subtotal"`
	// PriceChanged 加入购物车后商品价格有变动，以当前价格为准
	PriceChanged bool `json:"price_changed,omitempty"`
}

// CartView 购物车视图，空购物车 ID 为 0
type CartView struct {
	ID         int64           `json:"id,omitempty"`
	Items      []CartItemView  `json:"cart"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// CartService 购物车：登录用户落库，匿名用户存会话
type CartService struct {
	carts    cart.Repository
	products product.Repository
	log      *zap.Logger
}

func NewCartService(carts cart.Repository, products product.Repository, log *zap.Logger) *CartService {
	if log == nil {
		log = zap.NewNop()
	}
	return &CartService{carts: carts, products: products, log: log}
}

// Get 读取购物车，不存在时返回空购物车
func (s *CartService) Get(ctx context.Context, id auth.Identity, sess cart.SessionCart) (*CartView, error) {
	if id.Anonymous() {
		return s.sessionView(ctx, sess)
	}
	c, err := s.carts.GetByUser(ctx, id.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &CartView{Items: []CartItemView{}, TotalPrice: decimal.Zero}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	view := &CartView{ID: c.ID, Items: make([]CartItemView, 0, len(c.Lines)), TotalPrice: decimal.Zero}
	for _, l := range c.Lines {
		if l.Product == nil {
			continue
		}
		item := itemView(l.ID, l.Product, l.Quantity)
		view.Items = append(view.Items, item)
		view.TotalPrice = view.TotalPrice.Add(item.Subtotal)
	}
	return view, nil
}

func (s *CartService) sessionView(ctx context.Context, sess cart.SessionCart) (*CartView, error) {
	view := &CartView{Items: []CartItemView{}, TotalPrice: decimal.Zero}
	if len(sess) == 0 {
		return view, nil
	}
	ids := make([]int64, 0, len(sess))
	for pid := range sess {
		ids = append(ids, pid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	found, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load session cart products: %w", err)
	}
	for _, pid := range ids {
		p, ok := found[pid]
		if !ok {
			// 商品已下架，从视图中去掉
			continue
		}
		line := sess[pid]
		item := itemView(pid, p, line.Quantity)
		item.PriceChanged = !line.Price.Equal(p.Price)
		view.Items = append(view.Items, item)
		view.TotalPrice = view.TotalPrice.Add(item.Subtotal)
	}
	return view, nil
}

func itemView(id int64, p *product.Product, qty int) CartItemView {
	return CartItemView{
		ID: id,
		Product: CartProductView{
			ID:    p.ID,
			Name:  p.Name,
			Price: p.Price,
			Image: p.Image,
		},
		Quantity: qty,
		Subtotal: p.Price.Mul(decimal.NewFromInt(int64(qty))),
	}
}

// AddLine 加购：同一商品合并数量。匿名时返回修改后的会话购物车，由调用方写回会话
func (s *CartService) AddLine(ctx context.Context, id auth.Identity, sess cart.SessionCart, productID int64, qty int) (*CartItemView, cart.SessionCart, error) {
	if productID <= 0 {
		return nil, sess, apperr.Validation("product_id", "This field is required.")
	}
	if qty < 1 {
		return nil, sess, apperr.Validation("quantity", "Ensure this value is greater than or equal to 1.")
	}
	if qty > cart.MaxLineQuantity {
		return nil, sess, apperr.Validation("quantity", msgQuantityLimit)
	}
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, sess, notFoundOr(err, msgProductNotFound, "get product")
	}

	if id.Anonymous() {
		next := make(cart.SessionCart, len(sess)+1)
		for k, v := range sess {
			next[k] = v
		}
		line := next[productID]
		if line.Quantity+qty > cart.MaxLineQuantity {
			return nil, sess, apperr.Validation("quantity", msgQuantityLimit)
		}
		line.Quantity += qty
		line.Price = p.Price
		next[productID] = line
		item := itemView(productID, p, line.Quantity)
		return &item, next, nil
	}

	l, err := s.carts.AddLine(ctx, id.UserID, productID, qty)
	if errors.Is(err, cart.ErrQuantityLimit) {
		return nil, sess, apperr.Validation("quantity", msgQuantityLimit)
	}
	if err != nil {
		return nil, sess, fmt.Errorf("add cart line: %w", err)
	}
	item := itemView(l.ID, p, l.Quantity)
	return &item, sess, nil
}

// RemoveLine 删除购物车行，不存在时返回 NotFound
func (s *CartService) RemoveLine(ctx context.Context, id auth.Identity, sess cart.SessionCart, lineID int64) (cart.SessionCart, error) {
	if id.Anonymous() {
		if _, ok := sess[lineID]; !ok {
			return sess, apperr.NotFound("Cart item not found")
		}
		next := make(cart.SessionCart, len(sess))
		for k, v := range sess {
			if k != lineID {
				next[k] = v
			}
		}
		return next, nil
	}
	if err := s.carts.DeleteLine(ctx, id.UserID, lineID); err != nil {
		return sess, notFoundOr(err, "Cart item not found", "delete cart line")
	}
	return sess, nil
}

// Clear 删除购物车及其全部行
func (s *CartService) Clear(ctx context.Context, cartID int64) error {
	if err := s.carts.Clear(ctx, cartID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
