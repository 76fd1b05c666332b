// Package storage 商品图片的存储后端
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/KumarG23/nep-back/internal/config"
)

// Object 已保存对象：Key 用于删除，URL 返回给前端
type Object struct {
	Key string
	URL string
}

// Store 图片存储
type Store interface {
	Save(ctx context.Context, filename string, r io.Reader) (Object, error)
	Delete(ctx context.Context, key string) error
}

// New 按配置选择存储后端
func New(cfg config.MediaConfig) (Store, error) {
	switch cfg.Backend {
	case "cloudinary":
		return NewCloudinary(cfg.CloudinaryURL, cfg.Folder)
	case "fs", "":
		return NewFS(cfg.Dir, cfg.URLPrefix, cfg.Folder)
	default:
		return nil, fmt.Errorf("unsupported media backend %q", cfg.Backend)
	}
}
