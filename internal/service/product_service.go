package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/KumarG23/nep-back/internal/apperr"
	"github.com/KumarG23/nep-back/internal/auth"
	"github.com/KumarG23/nep-back/internal/datamodels/product"
	"github.com/KumarG23/nep-back/internal/storage"
)

const msgProductNotFound = "Product not found"

// ProductInput 创建/更新商品参数，更新时只修改非空字段
type ProductInput struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	CategoryID  *int64           `json:"category"`
	Image       *string          `json:"image"`
}

// ProductService 商品目录：商品、分类、附图与评价
type ProductService struct {
	repo    product.Repository
	images  product.ImageRepository
	reviews product.ReviewRepository
	store   storage.Store
	log     *zap.Logger
}

func NewProductService(repo product.Repository, images product.ImageRepository, reviews product.ReviewRepository, store storage.Store, log *zap.Logger) *ProductService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProductService{repo: repo, images: images, reviews: reviews, store: store, log: log}
}

func (s *ProductService) List(ctx context.Context, categoryID int64) ([]*product.Product, error) {
	list, err := s.repo.List(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return list, nil
}

func (s *ProductService) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, msgProductNotFound, "get product")
	}
	return p, nil
}

func (s *ProductService) Create(ctx context.Context, in ProductInput) (*product.Product, error) {
	if in.Name == nil {
		return nil, apperr.Validation("name", "This field is required.")
	}
	if in.Price == nil {
		return nil, apperr.Validation("price", "This field is required.")
	}
	p := &product.Product{}
	if err := s.apply(ctx, p, in); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

func (s *ProductService) Update(ctx context.Context, id int64, in ProductInput) (*product.Product, error) {
	p, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, p, in); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *ProductService) apply(ctx context.Context, p *product.Product, in ProductInput) error {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return apperr.Validation("name", "This field may not be blank.")
		}
		if len(name) > 100 {
			return apperr.Validation("name", "Ensure this field has no more than 100 characters.")
		}
		p.Name = name
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Price != nil {
		if in.Price.IsNegative() {
			return apperr.Validation("price", "Ensure this value is greater than or equal to 0.")
		}
		if in.Price.GreaterThanOrEqual(decimal.New(1, 8)) {
			return apperr.Validation("price", "Ensure that there are no more than 10 digits in total.")
		}
		p.Price = in.Price.Round(2)
	}
	if in.CategoryID != nil {
		if *in.CategoryID == 0 {
			p.CategoryID = nil
		} else {
			if _, err := s.repo.GetCategory(ctx, *in.CategoryID); err != nil {
				return notFoundOr(err, "Category not found", "get category")
			}
			id := *in.CategoryID
			p.CategoryID = &id
		}
		p.Category = nil
	}
	if in.Image != nil {
		p.Image = *in.Image
	}
	return nil
}

// Delete 删除商品，附图与购物车行一并删除，历史订单行为快照不受影响
func (s *ProductService) Delete(ctx context.Context, id int64) error {
	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return notFoundOr(err, msgProductNotFound, "delete product")
	}
	for _, img := range removed {
		s.removeBlob(ctx, img.StorageKey)
	}
	return nil
}

func (s *ProductService) ListCategories(ctx context.Context) ([]*product.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *ProductService) CreateCategory(ctx context.Context, name string) (*product.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("name", "This field is required.")
	}
	c := &product.Category{Name: name}
	if err := s.repo.CreateCategory(ctx, c); err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

// AddImage 保存附图；商品还没有主图时以此作为主图
func (s *ProductService) AddImage(ctx context.Context, productID int64, filename string, r io.Reader) (*product.Image, error) {
	p, err := s.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, apperr.Validation("image", "Image uploads are disabled.")
	}
	obj, err := s.store.Save(ctx, filename, r)
	if err != nil {
		return nil, fmt.Errorf("save image: %w", err)
	}
	img := &product.Image{ProductID: productID, URL: obj.URL, StorageKey: obj.Key}
	if err := s.images.Create(ctx, img); err != nil {
		s.removeBlob(ctx, obj.Key)
		return nil, fmt.Errorf("create image: %w", err)
	}
	if p.Image == "" {
		url := obj.URL
		if _, err := s.Update(ctx, productID, ProductInput{Image: &url}); err != nil {
			s.log.Warn("set main image failed", zap.Int64("product_id", productID), zap.Error(err))
		}
	}
	return img, nil
}

func (s *ProductService) ListImages(ctx context.Context, productID int64) ([]*product.Image, error) {
	return s.images.List(ctx, productID)
}

func (s *ProductService) GetImage(ctx context.Context, id int64) (*product.Image, error) {
	img, err := s.images.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "Image not found", "get image")
	}
	return img, nil
}

func (s *ProductService) DeleteImage(ctx context.Context, id int64) error {
	img, err := s.GetImage(ctx, id)
	if err != nil {
		return err
	}
	if err := s.images.Delete(ctx, id); err != nil {
		return notFoundOr(err, "Image not found", "delete image")
	}
	s.removeBlob(ctx, img.StorageKey)
	return nil
}

func (s *ProductService) removeBlob(ctx context.Context, key string) {
	if s.store == nil || key == "" {
		return
	}
	if err := s.store.Delete(ctx, key); err != nil {
		s.log.Warn("remove image blob failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *ProductService) ListReviews(ctx context.Context, productID int64) ([]*product.Review, error) {
	if _, err := s.GetByID(ctx, productID); err != nil {
		return nil, err
	}
	return s.reviews.ListByProduct(ctx, productID)
}

// AddReview 登录用户评价商品，评分 1~5
func (s *ProductService) AddReview(ctx context.Context, id auth.Identity, productID int64, rating int, comment string) (*product.Review, error) {
	if id.Anonymous() {
		return nil, apperr.Unauthorized("Authentication credentials were not provided.")
	}
	if rating < 1 || rating > 5 {
		return nil, apperr.Validation("rating", "Rating must be between 1 and 5.")
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, apperr.Validation("comment", "This field is required.")
	}
	if _, err := s.GetByID(ctx, productID); err != nil {
		return nil, err
	}
	r := &product.Review{
		ProductID: productID,
		UserID:    id.UserID,
		Username:  id.Username,
		Rating:    rating,
		Comment:   comment,
	}
	if err := s.reviews.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create review: %w", err)
	}
	return r, nil
}
