package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/KumarG23/nep-back/internal/apperr"
	"github.com/KumarG23/nep-back/internal/auth"
	"github.com/KumarG23/nep-back/internal/datamodels/cart"
	"github.com/KumarG23/nep-back/internal/datamodels/order"
	"github.com/KumarG23/nep-back/internal/datamodels/product"
	"github.com/KumarG23/nep-back/internal/payment"
	"github.com/KumarG23/nep-back/internal/repository/gormrepo"
)

// 支付意图 metadata 中的 key
const (
	metaItems  = "items"
	metaUserID = "user_id"
)

// Item 下单条目
type Item struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// GuestOrderRequest 游客下单
type GuestOrderRequest struct {
	Items      []Item
	TotalPrice *decimal.Decimal
	Email      string
}

// ConfirmRequest 支付确认下单，Items 为空时使用创建支付意图时记录的条目
type ConfirmRequest struct {
	PaymentIntentID string
	Items           []Item
}

// ConfirmResult Replayed 为 true 表示该支付意图此前已生成订单
type ConfirmResult struct {
	Order    *order.Order
	Replayed bool
}

// PaymentIntentResult 创建支付意图的结果
type PaymentIntentResult struct {
	ClientSecret    string          `json:"clientSecret"`
	PaymentIntentID string          `json:"paymentIntentId"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
}

// OrderPlacedEvent 订单创建成功后投递的事件
type OrderPlacedEvent struct {
	OrderID         int64     `json:"order_id"`
	UserID          *int64    `json:"user_id,omitempty"`
	Source          string    `json:"source"`
	TotalPrice      string    `json:"total_price"`
	Currency        string    `json:"currency"`
	PaymentIntentID string    `json:"payment_intent_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Publisher 消息投递，mq.Client 实现该接口
type Publisher interface {
	Publish(ctx context.Context, queue string, v interface{}) error
}

// OrderOptions 下单配置
type OrderOptions struct {
	Currency string
	// TotalTolerance 游客订单客户端总价允许的误差
	TotalTolerance decimal.Decimal
	EventQueue     string
}

// OrderService 把购物车或条目列表转换为不可变订单
// 每次转换的全部写入在同一事务中完成；同一支付意图至多生成一个订单，由唯一索引保证。
type OrderService struct {
	db       *gorm.DB
	orders   order.Repository
	products product.Repository
	carts    cart.Repository
	gateway  payment.Gateway
	events   Publisher
	opts     OrderOptions
	monitor  *Monitor
	log      *zap.Logger
}

// NewOrderService 创建订单服务，events 与 monitor 可为空
func NewOrderService(
	db *gorm.DB,
	orders order.Repository,
	products product.Repository,
	carts cart.Repository,
	gateway payment.Gateway,
	events Publisher,
	opts OrderOptions,
	monitor *Monitor,
	log *zap.Logger,
) *OrderService {
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	opts.Currency = strings.ToLower(opts.Currency)
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderService{
		db:       db,
		orders:   orders,
		products: products,
		carts:    carts,
		gateway:  gateway,
		events:   events,
		opts:     opts,
		monitor:  monitor,
		log:      log,
	}
}

// CheckoutCart 直接把登录用户的购物车转为订单，不经过支付校验
// cartID 为 0 时使用调用者自己的购物车；他人的购物车按不存在处理。
func (s *OrderService) CheckoutCart(ctx context.Context, id auth.Identity, cartID int64) (*order.Order, error) {
	if id.Anonymous() {
		return nil, apperr.Unauthorized("Authentication credentials were not provided.")
	}

	var o *order.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1) 锁定购物车
		var c cart.Cart
		q := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", id.UserID)
		if cartID > 0 {
			q = q.Where("id = ?", cartID)
		}
		if err := q.First(&c).Error; err != nil {
			return notFoundOr(err, "Cart not found", "lock cart")
		}

		// 2) 读取购物车行
		var lines []cart.Line
		if err := tx.Preload("Product").
			Where("cart_id = ?", c.ID).
			Order("id ASC").
			Find(&lines).Error; err != nil {
			return fmt.Errorf("load cart lines: %w", err)
		}
		if len(lines) == 0 {
			return apperr.Validation("cart", "Cart is empty")
		}

		// 3) 按当前价格生成订单行快照
		built := &order.Order{
			UserID:     &id.UserID,
			Currency:   s.opts.Currency,
			Source:     order.SourceCart,
			TotalPrice: decimal.Zero,
		}
		for _, l := range lines {
			if l.Product == nil {
				return apperr.NotFound(fmt.Sprintf("Product %d not found", l.ProductID))
			}
			built.Lines = append(built.Lines, snapshot(l.Product, l.Quantity))
			built.TotalPrice = built.TotalPrice.Add(lineTotal(l.Product.Price, l.Quantity))
		}
		if built.TotalPrice.GreaterThan(order.MaxTotal) {
			return apperr.Validation("cart", msgTotalTooLarge)
		}
		if err := tx.Create(built).Error; err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		// 4) 清空并删除购物车
		if err := gormrepo.ClearCart(tx, c.ID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		o = built
		return nil
	})
	if err != nil {
		s.fail(order.SourceCart, err)
		return nil, err
	}
	s.placed(ctx, o)
	return o, nil
}

// CreateGuestOrder 游客按条目下单，以商品表价格重新计算总价，客户端总价偏差超过容差则拒绝
func (s *OrderService) CreateGuestOrder(ctx context.Context, req GuestOrderRequest) (*order.Order, error) {
	if len(req.Items) == 0 {
		return nil, apperr.Validation("items", "items is required")
	}
	if req.TotalPrice == nil {
		return nil, apperr.Validation("total_price", "total_price is required")
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		return nil, apperr.Validation("email", "email is required")
	}
	if !strings.Contains(email, "@") {
		return nil, apperr.Validation("email", "Enter a valid email address.")
	}

	var o *order.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lines, total, err := s.price(tx, req.Items)
		if err != nil {
			return err
		}
		if req.TotalPrice.Sub(total).Abs().GreaterThan(s.opts.TotalTolerance) {
			return apperr.Validation("total_price", fmt.Sprintf("Total price does not match current prices (expected %s)", total.StringFixed(2)))
		}
		built := &order.Order{
			Email:      email,
			Currency:   s.opts.Currency,
			Source:     order.SourceGuest,
			TotalPrice: total,
			Lines:      lines,
		}
		if err := tx.Create(built).Error; err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		o = built
		return nil
	})
	if err != nil {
		s.fail(order.SourceGuest, err)
		return nil, err
	}
	s.placed(ctx, o)
	return o, nil
}

// ConfirmPayment 校验支付意图后生成订单：总价取网关实收金额，单价取商品表当前价格，数量取请求
func (s *OrderService) ConfirmPayment(ctx context.Context, id auth.Identity, req ConfirmRequest) (*ConfirmResult, error) {
	intentID := strings.TrimSpace(req.PaymentIntentID)
	if intentID == "" {
		return nil, apperr.Validation("payment_intent_id", "payment_intent_id is required")
	}

	// 0) 已确认过的支付意图直接返回原订单
	if existing, err := s.orders.GetByPaymentIntent(ctx, intentID); err == nil {
		return s.replay(id, existing)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup order by intent: %w", err)
	}

	// 1) 向网关查询支付意图
	intent, err := s.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		s.monitor.RecordPaymentError()
		if !apperr.Is(err, apperr.KindPayment) {
			err = apperr.Payment("could not verify payment", err)
		}
		return nil, err
	}
	if intent.Status != payment.StatusSucceeded {
		return nil, apperr.Payment("Payment has not succeeded", fmt.Errorf("intent %s status %s", intent.ID, intent.Status))
	}
	if intent.AmountReceived <= 0 {
		return nil, apperr.Payment("Payment has no captured amount", nil)
	}

	// 2) 订单归属：登录用户为自己；匿名时沿用创建支付意图的用户
	owner, err := intentOwner(id, intent)
	if err != nil {
		return nil, err
	}

	// 3) 条目
	items := req.Items
	if len(items) == 0 {
		items, err = decodeItems(intent.Metadata[metaItems])
		if err != nil {
			return nil, apperr.Payment("Payment intent carries malformed items", err)
		}
	}
	if len(items) == 0 {
		return nil, apperr.Validation("items", "items is required")
	}

	currency := intent.Currency
	if currency == "" {
		currency = s.opts.Currency
	}
	paid := payment.FromMinorUnits(intent.AmountReceived, currency)

	// 4) 同一事务内建单、写订单行、清空购物车
	var o *order.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lines, total, err := s.price(tx, items)
		if err != nil {
			return err
		}
		if !total.Equal(paid) {
			return apperr.Payment("Paid amount does not match order total",
				fmt.Errorf("paid %s, computed %s", paid.String(), total.String()))
		}
		ref := intent.ID
		built := &order.Order{
			UserID:          owner,
			Email:           intent.Email,
			TotalPrice:      paid,
			Currency:        strings.ToLower(currency),
			PaymentIntentID: &ref,
			Source:          order.SourcePayment,
			Lines:           lines,
		}
		if err := tx.Create(built).Error; err != nil {
			return err
		}
		if owner != nil {
			var c cart.Cart
			err := tx.Where("user_id = ?", *owner).First(&c).Error
			if err == nil {
				if err := gormrepo.ClearCart(tx, c.ID); err != nil {
					return fmt.Errorf("clear cart: %w", err)
				}
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("load cart: %w", err)
			}
		}
		o = built
		return nil
	})
	if err != nil {
		// 并发确认时唯一索引冲突，返回先写入的订单
		if _, isApp := apperr.As(err); !isApp {
			if existing, lookupErr := s.orders.GetByPaymentIntent(ctx, intentID); lookupErr == nil {
				return s.replay(id, existing)
			}
			if gormrepo.IsDuplicateKey(err) {
				return nil, apperr.Conflict("Payment is already being confirmed")
			}
			err = fmt.Errorf("create order: %w", err)
		}
		s.fail(order.SourcePayment, err)
		return nil, err
	}
	s.placed(ctx, o)
	return &ConfirmResult{Order: o}, nil
}

// replay 返回已存在的订单；登录用户不能读取他人的订单
func (s *OrderService) replay(id auth.Identity, existing *order.Order) (*ConfirmResult, error) {
	if !id.Anonymous() && existing.UserID != nil && *existing.UserID != id.UserID {
		return nil, apperr.Forbidden("Payment belongs to another user")
	}
	s.monitor.RecordOrder(order.SourcePayment, ResultReplayed)
	return &ConfirmResult{Order: existing, Replayed: true}, nil
}

// ConfirmIntent 网关回调触发的确认，条目与归属都来自支付意图
func (s *OrderService) ConfirmIntent(ctx context.Context, intentID string) (*ConfirmResult, error) {
	return s.ConfirmPayment(ctx, auth.Identity{}, ConfirmRequest{PaymentIntentID: intentID})
}

// CreatePaymentIntent 按商品表价格计算金额并创建支付意图
// items 为空时使用调用者的购物车（登录用户取库里的购物车，匿名取会话购物车）。
func (s *OrderService) CreatePaymentIntent(ctx context.Context, id auth.Identity, sess cart.SessionCart, items []Item, email string) (*PaymentIntentResult, error) {
	if len(items) == 0 {
		var err error
		items, err = s.cartItems(ctx, id, sess)
		if err != nil {
			return nil, err
		}
	}
	if len(items) == 0 {
		return nil, apperr.Validation("items", "Cart is empty")
	}

	_, total, err := s.price(s.db.WithContext(ctx), items)
	if err != nil {
		return nil, err
	}
	amount, err := payment.ToMinorUnits(total, s.opts.Currency)
	if err != nil {
		return nil, apperr.Validation("items", msgTotalTooLarge)
	}
	if amount <= 0 {
		return nil, apperr.Validation("items", "Order total must be greater than zero")
	}

	meta := map[string]string{metaItems: encodeItems(items)}
	if !id.Anonymous() {
		meta[metaUserID] = strconv.FormatInt(id.UserID, 10)
	}
	intent, err := s.gateway.CreateIntent(ctx, payment.CreateIntentParams{
		Amount:   amount,
		Currency: s.opts.Currency,
		Email:    strings.TrimSpace(email),
		Metadata: meta,
	})
	if err != nil {
		s.monitor.RecordPaymentError()
		return nil, err
	}
	return &PaymentIntentResult{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		Amount:          total,
		Currency:        s.opts.Currency,
	}, nil
}

func (s *OrderService) cartItems(ctx context.Context, id auth.Identity, sess cart.SessionCart) ([]Item, error) {
	var items []Item
	if id.Anonymous() {
		for pid, line := range sess {
			items = append(items, Item{ProductID: pid, Quantity: line.Quantity})
		}
		return items, nil
	}
	c, err := s.carts.GetByUser(ctx, id.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	for _, l := range c.Lines {
		items = append(items, Item{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return items, nil
}

func (s *OrderService) ListByUser(ctx context.Context, userID int64) ([]*order.Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

// ListRecent 查询最新的订单记录
func (s *OrderService) ListRecent(ctx context.Context, limit int) ([]*order.Order, error) {
	return s.orders.ListRecent(ctx, limit)
}

// price 以商品表价格为条目定价，任一商品不存在则整体失败
func (s *OrderService) price(db *gorm.DB, items []Item) ([]order.Line, decimal.Decimal, error) {
	ids := make([]int64, 0, len(items))
	for i, it := range items {
		if it.ProductID <= 0 {
			return nil, decimal.Zero, apperr.Validation(fmt.Sprintf("items[%d].product_id", i), "This field is required.")
		}
		if it.Quantity < 1 {
			return nil, decimal.Zero, apperr.Validation(fmt.Sprintf("items[%d].quantity", i), "Ensure this value is greater than or equal to 1.")
		}
		if it.Quantity > cart.MaxLineQuantity {
			return nil, decimal.Zero, apperr.Validation(fmt.Sprintf("items[%d].quantity", i), msgQuantityLimit)
		}
		ids = append(ids, it.ProductID)
	}

	var found []*product.Product
	if err := db.Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, decimal.Zero, fmt.Errorf("load products: %w", err)
	}
	byID := make(map[int64]*product.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}

	lines := make([]order.Line, 0, len(items))
	total := decimal.Zero
	for _, it := range items {
		p, ok := byID[it.ProductID]
		if !ok {
			return nil, decimal.Zero, apperr.NotFound(fmt.Sprintf("Product %d not found", it.ProductID))
		}
		lines = append(lines, snapshot(p, it.Quantity))
		total = total.Add(lineTotal(p.Price, it.Quantity))
	}
	if total.GreaterThan(order.MaxTotal) {
		return nil, decimal.Zero, apperr.Validation("items", msgTotalTooLarge)
	}
	return lines, total, nil
}

func snapshot(p *product.Product, qty int) order.Line {
	return order.Line{
		ProductID:   p.ID,
		ProductName: p.Name,
		Quantity:    qty,
		Price:       p.Price,
	}
}

func lineTotal(price decimal.Decimal, qty int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(qty)))
}

func intentOwner(id auth.Identity, intent *payment.Intent) (*int64, error) {
	var metaUser int64
	if raw := intent.Metadata[metaUserID]; raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, apperr.Payment("Payment intent carries a malformed user", err)
		}
		metaUser = n
	}
	if !id.Anonymous() {
		if metaUser != 0 && metaUser != id.UserID {
			return nil, apperr.Forbidden("Payment belongs to another user")
		}
		uid := id.UserID
		return &uid, nil
	}
	if metaUser != 0 {
		return &metaUser, nil
	}
	return nil, nil
}

// encodeItems 压缩为 "pid:qty,pid:qty"，网关 metadata 单值长度有限
func encodeItems(items []Item) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, strconv.FormatInt(it.ProductID, 10)+":"+strconv.Itoa(it.Quantity))
	}
	return strings.Join(parts, ",")
}

func decodeItems(raw string) ([]Item, error) {
	if raw == "" {
		return nil, nil
	}
	var items []Item
	for _, part := range strings.Split(raw, ",") {
		pid, qty, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("bad item %q", part)
		}
		p, err := strconv.ParseInt(pid, 10, 64)
		if err != nil {
			return nil, err
		}
		q, err := strconv.Atoi(qty)
		if err != nil {
			return nil, err
		}
		items = append(items, Item{ProductID: p, Quantity: q})
	}
	return items, nil
}

func (s *OrderService) fail(source string, err error) {
	s.monitor.RecordOrder(source, ResultFailed)
	if _, ok := apperr.As(err); !ok {
		s.monitor.RecordDBError()
		s.log.Error("order conversion failed", zap.String("source", source), zap.Error(err))
	}
}

// placed 订单提交后投递事件，失败只记日志
func (s *OrderService) placed(ctx context.Context, o *order.Order) {
	s.monitor.RecordOrder(o.Source, ResultCreated)
	s.log.Info("order placed",
		zap.Int64("order_id", o.ID),
		zap.String("source", o.Source),
		zap.String("total", o.TotalPrice.StringFixed(2)))
	if s.events == nil || s.opts.EventQueue == "" {
		return
	}
	ev := OrderPlacedEvent{
		OrderID:    o.ID,
		UserID:     o.UserID,
		Source:     o.Source,
		TotalPrice: o.TotalPrice.StringFixed(2),
		Currency:   o.Currency,
		CreatedAt:  o.CreatedAt,
	}
	if o.PaymentIntentID != nil {
		ev.PaymentIntentID = *o.PaymentIntentID
	}
	if err := s.events.Publish(ctx, s.opts.EventQueue, ev); err != nil {
		s.monitor.RecordMQError()
		s.log.Warn("publish order event failed", zap.Int64("order_id", o.ID), zap.Error(err))
	}
}
