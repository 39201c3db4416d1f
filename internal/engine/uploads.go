package engine

import (
	"context"
	"errors"
	"io"
	"path"
	"regexp"
	"strings"

	"traceline/internal/blob"
	"traceline/internal/domain"
)

const uploadPrefix = "uploads/"

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// UploadFile stores a document body under uploads/<uuid>-<name>.
func (e Engine) UploadFile(ctx context.Context, name string, r io.Reader, size int64, contentType string) (blob.Object, error) {
	store, err := e.blobs()
	if err != nil {
		return blob.Object{}, err
	}
	base := unsafeName.ReplaceAllString(path.Base(strings.ReplaceAll(name, "\\", "/")), "_")
	base = strings.Trim(base, "._")
	if base == "" {
		return blob.Object{}, domain.Validation("filename", "required")
	}
	key := uploadPrefix + newID() + "-" + base
	cr := &countingReader{r: r}
	if err := store.Put(ctx, key, cr, size, contentType); err != nil {
		return blob.Object{}, &domain.StorageError{Op: "store upload", Err: err}
	}
	obj := blob.Object{Key: key, Size: cr.n, ModTime: e.now().UTC(), ContentType: contentType}
	e.logger().Printf("stored upload %s (%d bytes)", key, obj.Size)
	return obj, nil
}

// OpenFile returns a stored file; the caller closes the reader.
func (e Engine) OpenFile(ctx context.Context, key string) (io.ReadCloser, blob.Object, error) {
	store, err := e.blobs()
	if err != nil {
		return nil, blob.Object{}, err
	}
	clean, err := blob.CleanKey(key)
	if err != nil {
		return nil, blob.Object{}, err
	}
	rc, obj, err := store.Get(ctx, clean)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, blob.Object{}, domain.NotFound("file", clean)
	}
	if err != nil {
		return nil, blob.Object{}, &domain.StorageError{Op: "read file", Err: err}
	}
	return rc, obj, nil
}

// countingReader records how many bytes the store consumed, since multipart
// uploads arrive without a length.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
