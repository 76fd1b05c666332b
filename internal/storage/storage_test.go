package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KumarG23/nep-back/internal/config"
)

func TestFSSaveDelete(t *testing.T) {
	dir := t.TempDir()
	s, err := New(config.MediaConfig{Backend: "fs", Dir: dir, URLPrefix: "/media/", Folder: "product_images"})
	require.NoError(t, err)
	ctx := context.Background()

	obj, err := s.Save(ctx, "Lokta Paper.PNG", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(obj.Key, "product_images/"))
	assert.True(t, strings.HasSuffix(obj.Key, ".png"))
	assert.Equal(t, "/media/"+obj.Key, obj.URL)

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(obj.Key)))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	require.NoError(t, s.Delete(ctx, obj.Key))
	_, err = os.Stat(filepath.Join(dir, filepath.FromSlash(obj.Key)))
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, s.Delete(ctx, obj.Key))
}

func TestFSDeleteStaysInsideDir(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(root, "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))

	s, err := NewFS(filepath.Join(root, "media"), "/media", "imgs")
	require.NoError(t, err)
	require.NoError(t, s.Delete(context.Background(), "../secret.txt"))

	_, err = os.Stat(outside)
	assert.NoError(t, err)
}

func TestUnknownBackend(t *testing.T) {
	_, err := New(config.MediaConfig{Backend: "s3"})
	assert.Error(t, err)
}

func TestCloudinaryRequiresURL(t *testing.T) {
	_, err := NewCloudinary("", "imgs")
	assert.Error(t, err)
}
