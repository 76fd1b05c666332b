package cart

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/KumarG23/nep-back/internal/datamodels/product"
)

// MaxLineQuantity 单个商品行的数量上限
const MaxLineQuantity = 1000

// ErrQuantityLimit 合并后数量超过 MaxLineQuantity
var ErrQuantityLimit = errors.New("cart line quantity limit exceeded")

// Cart 登录用户的持久化购物车，每个用户至多一个
type Cart struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	UserID    int64     `gorm:"uniqueIndex;not null" json:"user"`
	Lines     []Line    `gorm:"constraint:OnDelete:CASCADE" json:"cart_products"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"-"`
}

// Line 购物车行，同一购物车内每个商品只有一行
type Line struct {
	ID        int64            `gorm:"primaryKey" json:"id"`
	CartID    int64            `gorm:"uniqueIndex:idx_cart_product;not null" json:"cart"`
	ProductID int64            `gorm:"uniqueIndex:idx_cart_product;not null" json:"product_id"`
	Quantity  int              `gorm:"not null" json:"quantity"`
	Product   *product.Product `gorm:"constraint:OnDelete:CASCADE" json:"product,omitempty"`
	CreatedAt time.Time        `json:"-"`
	UpdatedAt time.Time        `json:"-"`
}

func (Line) TableName() string { return "cart_lines" }

// SessionLine 匿名购物车行：数量与加入时的价格快照，下单时以商品表价格为准重新校验
type SessionLine struct {
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// SessionCart 匿名会话中保存的购物车，product id -> 行
type SessionCart map[int64]SessionLine

// Repository 购物车仓储接口
type Repository interface {
	// GetByUser 返回用户购物车（含行与商品），不存在时返回 gorm.ErrRecordNotFound
	GetByUser(ctx context.Context, userID int64) (*Cart, error)
	GetByID(ctx context.Context, id int64) (*Cart, error)
	// AddLine 按需创建购物车并锁定后合并数量
	AddLine(ctx context.Context, userID, productID int64, qty int) (*Line, error)
	// DeleteLine 只删除属于 userID 的行
	DeleteLine(ctx context.Context, userID, lineID int64) error
	Clear(ctx context.Context, cartID int64) error
}
