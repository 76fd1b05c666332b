package product

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Category 商品分类
type Category struct {
	ID   int64  `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:100;not null" json:"name"`
}

// Product 商品模型，价格为两位小数的定点数
type Product struct {
	ID          int64           `gorm:"primaryKey" json:"id"`
	Name        string          `gorm:"size:100;not null" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	CategoryID  *int64          `gorm:"index" json:"category_id"`
	Category    *Category       `gorm:"constraint:OnDelete:SET NULL" json:"category,omitempty"`
	Image       string          `gorm:"size:512" json:"image"`
	Images      []Image         `gorm:"constraint:OnDelete:CASCADE" json:"images,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Image 商品附图，StorageKey 为存储后端中的对象标识
type Image struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	ProductID  int64     `gorm:"index;not null" json:"product"`
	URL        string    `gorm:"size:512;not null" json:"image"`
	StorageKey string    `gorm:"size:512" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Image) TableName() string { return "product_images" }

// Review 商品评价
type Review struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	ProductID int64     `gorm:"index;not null" json:"product"`
	UserID    int64     `gorm:"index;not null" json:"user"`
	Username  string    `gorm:"size:150" json:"username"`
	Rating    int       `gorm:"not null" json:"rating"`
	Comment   string    `gorm:"type:text;not null" json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository 商品与分类仓储接口
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Product, error)
	// GetByIDs 批量查询，返回 id -> 商品，缺失的 id 不在结果中
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*Product, error)
	// List categoryID 为 0 时返回全部
	List(ctx context.Context, categoryID int64) ([]*Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	// Delete 删除商品及其附图、购物车行，返回被删除的附图供清理存储
	Delete(ctx context.Context, id int64) ([]Image, error)

	ListCategories(ctx context.Context) ([]*Category, error)
	GetCategory(ctx context.Context, id int64) (*Category, error)
	CreateCategory(ctx context.Context, c *Category) error
}

// ImageRepository 商品附图仓储接口
type ImageRepository interface {
	Create(ctx context.Context, img *Image) error
	GetByID(ctx context.Context, id int64) (*Image, error)
	// List productID 为 0 时返回全部
	List(ctx context.Context, productID int64) ([]*Image, error)
	Delete(ctx context.Context, id int64) error
}

// ReviewRepository 评价仓储接口
type ReviewRepository interface {
	Create(ctx context.Context, r *Review) error
	ListByProduct(ctx context.Context, productID int64) ([]*Review, error)
}
