package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// 订单来源
const (
	SourceCart    = "cart"
	SourceGuest   = "guest"
	SourcePayment = "payment"
)

// MaxTotal total_price 列 decimal(10,2) 能存下的最大金额
var MaxTotal = decimal.New(9999999999, -2)

// Order 订单模型，创建后不可变
type Order struct {
	ID              int64           `gorm:"primaryKey" json:"id"`
	UserID          *int64          `gorm:"index" json:"user"` // 游客订单为空
	Email           string          `gorm:"size:254" json:"email,omitempty"`
	TotalPrice      decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total_price"`
	Currency        string          `gorm:"size:3" json:"currency,omitempty"`
	PaymentIntentID *string         `gorm:"uniqueIndex;size:255" json:"payment_intent_id,omitempty"`
	Source          string          `gorm:"size:16;not null" json:"source"`
	Lines           []Line          `gorm:"constraint:OnDelete:CASCADE" json:"order_items"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Line 订单行快照，product_id 只做记录不做外键，商品删除不影响历史订单
type Line struct {
	ID          int64           `gorm:"primaryKey" json:"id"`
	OrderID     int64           `gorm:"index;not null" json:"order"`
	ProductID   int64           `gorm:"index;not null" json:"product_id"`
	ProductName string          `gorm:"size:100" json:"product_name"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
}

func (Line) TableName() string { return "order_lines" }

// Repository 订单仓储接口
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id int64) (*Order, error)
	GetByPaymentIntent(ctx context.Context, intentID string) (*Order, error)
	ListByUser(ctx context.Context, userID int64) ([]*Order, error)
	ListRecent(ctx context.Context, limit int) ([]*Order, error)
}
