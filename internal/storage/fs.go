package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FS 本地目录存储，文件通过 URLPrefix 对外提供
type FS struct {
	dir    string
	prefix string
	folder string
}

func NewFS(dir, urlPrefix, folder string) (*FS, error) {
	if err := os.MkdirAll(filepath.Join(dir, folder), 0o755); err != nil {
		return nil, err
	}
	return &FS{dir: dir, prefix: strings.TrimRight(urlPrefix, "/"), folder: folder}, nil
}

// Dir 存储根目录，供静态文件路由挂载
func (s *FS) Dir() string { return s.dir }

func (s *FS) Save(_ context.Context, filename string, r io.Reader) (Object, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	key := path.Join(s.folder, uuid.NewString()+ext)

	f, err := os.Create(filepath.Join(s.dir, filepath.FromSlash(key)))
	if err != nil {
		return Object{}, err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = os.Remove(f.Name())
		return Object{}, err
	}
	if err := f.Close(); err != nil {
		return Object{}, err
	}
	return Object{Key: key, URL: s.prefix + "/" + key}, nil
}

func (s *FS) Delete(_ context.Context, key string) error {
	clean := path.Clean("/" + key)
	err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(clean)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
