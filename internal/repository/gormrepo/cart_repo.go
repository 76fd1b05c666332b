package gormrepo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/KumarG23/nep-back/internal/datamodels/cart"
)

type cartRepo struct {
	db *gorm.DB
}

// NewCartRepository 创建购物车仓储
func NewCartRepository(db *gorm.DB) cart.Repository {
	return &cartRepo{db: db}
}

func (r *cartRepo) GetByUser(ctx context.Context, userID int64) (*cart.Cart, error) {
	var c cart.Cart
	if err := r.withLines(r.db.WithContext(ctx)).
		Where("user_id = ?", userID).
		First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *cartRepo) GetByID(ctx context.Context, id int64) (*cart.Cart, error) {
	var c cart.Cart
	if err := r.withLines(r.db.WithContext(ctx)).First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *cartRepo) withLines(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Lines.Product")
}

// AddLine 同一用户的并发加购通过购物车行锁串行化，避免数量合并丢失更新
func (r *cartRepo) AddLine(ctx context.Context, userID, productID int64, qty int) (*cart.Line, error) {
	var line cart.Line
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1) 购物车不存在则创建，并发创建由 user_id 唯一索引兜底
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).Create(&cart.Cart{UserID: userID}).Error; err != nil {
			return err
		}

		// 2) 锁定购物车
		var c cart.Cart
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&c).Error; err != nil {
			return err
		}

		// 3) 合并数量
		err := tx.Where("cart_id = ? AND product_id = ?", c.ID, productID).First(&line).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			line = cart.Line{CartID: c.ID, ProductID: productID, Quantity: qty}
			return tx.Omit("Product").Create(&line).Error
		}
		if err != nil {
			return err
		}
		if line.Quantity+qty > cart.MaxLineQuantity {
			return cart.ErrQuantityLimit
		}
		line.Quantity += qty
		return tx.Model(&line).Update("quantity", line.Quantity).Error
	})
	if err != nil {
		return nil, err
	}
	return &line, nil
}

func (r *cartRepo) DeleteLine(ctx context.Context, userID, lineID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c cart.Cart
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&c).Error; err != nil {
			return err
		}
		res := tx.Where("id = ? AND cart_id = ?", lineID, c.ID).Delete(&cart.Line{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *cartRepo) Clear(ctx context.Context, cartID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return ClearCart(tx, cartID)
	})
}

// ClearCart 在调用方事务内删除购物车及其全部行
func ClearCart(tx *gorm.DB, cartID int64) error {
	if err := tx.Where("cart_id = ?", cartID).Delete(&cart.Line{}).Error; err != nil {
		return err
	}
	return tx.Delete(&cart.Cart{}, cartID).Error
}
