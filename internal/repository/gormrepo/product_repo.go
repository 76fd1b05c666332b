package gormrepo

import (
	"context"

	"gorm.io/gorm"

	"github.com/KumarG23/nep-back/internal/datamodels/cart"
	"github.com/KumarG23/nep-back/internal/datamodels/product"
)

type productRepo struct {
	db *gorm.DB
}

// NewProductRepository 创建商品仓储
func NewProductRepository(db *gorm.DB) product.Repository {
	return &productRepo{db: db}
}

func (r *productRepo) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	var p product.Product
	if err := r.db.WithContext(ctx).
		Preload("Category").
		Preload("Images").
		First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *productRepo) GetByIDs(ctx context.Context, ids []int64) (map[int64]*product.Product, error) {
	out := make(map[int64]*product.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var list []*product.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, err
	}
	for _, p := range list {
		out[p.ID] = p
	}
	return out, nil
}

func (r *productRepo) List(ctx context.Context, categoryID int64) ([]*product.Product, error) {
	var list []*product.Product
	query := r.db.WithContext(ctx).Preload("Category")
	if categoryID > 0 {
		query = query.Where("category_id = ?", categoryID)
	}
	if err := query.Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *productRepo) Create(ctx context.Context, p *product.Product) error {
	return r.db.WithContext(ctx).Omit("Category", "Images").Create(p).Error
}

func (r *productRepo) Update(ctx context.Context, p *product.Product) error {
	return r.db.WithContext(ctx).
		Model(&product.Product{ID: p.ID}).
		Select("name", "description", "price", "category_id", "image", "updated_at").
		Updates(p).Error
}

func (r *productRepo) Delete(ctx context.Context, id int64) ([]product.Image, error) {
	var images []product.Image
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", id).Find(&images).Error; err != nil {
			return err
		}
		if err := tx.Where("product_id = ?", id).Delete(&product.Image{}).Error; err != nil {
			return err
		}
		if err := tx.Where("product_id = ?", id).Delete(&product.Review{}).Error; err != nil {
			return err
		}
		if err := tx.Where("product_id = ?", id).Delete(&cart.Line{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&product.Product{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return images, nil
}

func (r *productRepo) ListCategories(ctx context.Context) ([]*product.Category, error) {
	var list []*product.Category
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *productRepo) GetCategory(ctx context.Context, id int64) (*product.Category, error) {
	var c product.Category
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *productRepo) CreateCategory(ctx context.Context, c *product.Category) error {
	return r.db.WithContext(ctx).Create(c).Error
}

type imageRepo struct {
	db *gorm.DB
}

// NewImageRepository 创建商品附图仓储
func NewImageRepository(db *gorm.DB) product.ImageRepository {
	return &imageRepo{db: db}
}

func (r *imageRepo) Create(ctx context.Context, img *product.Image) error {
	return r.db.WithContext(ctx).Create(img).Error
}

func (r *imageRepo) GetByID(ctx context.Context, id int64) (*product.Image, error) {
	var img product.Image
	if err := r.db.WithContext(ctx).First(&img, id).Error; err != nil {
		return nil, err
	}
	return &img, nil
}

func (r *imageRepo) List(ctx context.Context, productID int64) ([]*product.Image, error) {
	var list []*product.Image
	query := r.db.WithContext(ctx)
	if productID > 0 {
		query = query.Where("product_id = ?", productID)
	}
	if err := query.Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *imageRepo) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&product.Image{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

type reviewRepo struct {
	db *gorm.DB
}

// NewReviewRepository 创建评价仓储
func NewReviewRepository(db *gorm.DB) product.ReviewRepository {
	return &reviewRepo{db: db}
}

func (r *reviewRepo) Create(ctx context.Context, rv *product.Review) error {
	return r.db.WithContext(ctx).Create(rv).Error
}

func (r *reviewRepo) ListByProduct(ctx context.Context, productID int64) ([]*product.Review, error) {
	var list []*product.Review
	if err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("id DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
