package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traceline/internal/config"
	"traceline/internal/domain"
)

func TestCleanKey(t *testing.T) {
	k, err := CleanKey("uploads//a/./b.txt")
	require.NoError(t, err)
	assert.Equal(t, "uploads/a/b.txt", k)

	for _, bad := range []string{"", "  ", "/", ".."} {
		_, err := CleanKey(bad)
		assert.True(t, errors.Is(err, domain.ErrValidation), bad)
	}
	k, err = CleanKey("../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, "etc/passwd", k)
}

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "uploads/icd.txt", strings.NewReader("hello"), 5, "text/plain"))
	ok, err := store.Exists(ctx, "uploads/icd.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, obj, err := store.Get(ctx, "uploads/icd.txt")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, int64(5), obj.Size)

	require.NoError(t, store.Put(ctx, "backups/b1.json", strings.NewReader("{}"), 2, "application/json"))
	list, err := store.List(ctx, "backups/")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "backups/b1.json", list[0].Key)

	require.NoError(t, store.Delete(ctx, "uploads/icd.txt"))
	_, _, err = store.Get(ctx, "uploads/icd.txt")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "uploads/icd.txt"), ErrNotFound)
}

func TestOpenDefaultsToLocal(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(context.Background(), config.StorageConfig{}, dir)
	require.NoError(t, err)
	_, ok := store.(*Local)
	assert.True(t, ok)
}

func TestNewMinIORequiresCredentials(t *testing.T) {
	var cfg config.StorageConfig
	cfg.MinIO.Endpoint = "localhost:9000"
	_, err := NewMinIO(cfg)
	require.Error(t, err)

	cfg.MinIO.AccessKey = "ak"
	cfg.MinIO.SecretKey = "sk"
	s, err := NewMinIO(cfg)
	require.NoError(t, err)
	assert.Equal(t, "traceline", s.bucket)
}
