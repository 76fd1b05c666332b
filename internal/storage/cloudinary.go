package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
)

// Cloudinary 云端图片存储，Key 为 public id
type Cloudinary struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinary(url, folder string) (*Cloudinary, error) {
	if url == "" {
		return nil, errors.New("cloudinary URL is required")
	}
	cld, err := cloudinary.NewFromURL(url)
	if err != nil {
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	return &Cloudinary{cld: cld, folder: folder}, nil
}

func (s *Cloudinary) Save(ctx context.Context, filename string, r io.Reader) (Object, error) {
	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	res, err := s.cld.Upload.Upload(ctx, r, uploader.UploadParams{
		PublicID:     name + "_" + uuid.NewString(),
		Folder:       s.folder,
		ResourceType: "image",
	})
	if err != nil {
		return Object{}, fmt.Errorf("upload image: %w", err)
	}
	if res.Error.Message != "" {
		return Object{}, fmt.Errorf("upload image: %s", res.Error.Message)
	}
	url := res.SecureURL
	if url == "" {
		url = strings.Replace(res.URL, "http://", "https://", 1)
	}
	return Object{Key: res.PublicID, URL: url}, nil
}

func (s *Cloudinary) Delete(ctx context.Context, key string) error {
	_, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     key,
		ResourceType: "image",
	})
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}
