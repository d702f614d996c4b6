package storagesvc

import (
	"context"
	"io"
	"time"

	"github.com/kurin/blazer/b2"
	"github.com/pkg/errors"

	"github.com/trezcool/aula/core"
)

// b2Store keeps objects in a Backblaze B2 bucket.
type b2Store struct {
	bucket *b2.Bucket
}

var _ core.ObjectStore = (*b2Store)(nil)

func NewB2Store(ctx context.Context, conf *core.Config) (core.ObjectStore, error) {
	client, err := b2.NewClient(ctx, conf.Storage.B2AccountID, conf.Storage.B2AppKey)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to b2")
	}
	bucket, err := client.Bucket(ctx, conf.Storage.Bucket)
	if err != nil {
		return nil, errors.Wrap(err, "opening b2 bucket")
	}
	return &b2Store{bucket: bucket}, nil
}

func (s b2Store) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	w := s.bucket.Object(key).NewWriter(ctx).WithAttrs(&b2.Attrs{ContentType: contentType})
	if _, err := io.Copy(w, io.LimitReader(r, size)); err != nil {
		_ = w.Close()
		return core.NewExternalError("b2", err)
	}
	if err := w.Close(); err != nil {
		return core.NewExternalError("b2", err)
	}
	return nil
}

func (s b2Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.bucket.Object(key).AuthURL(ctx, ttl, "")
	if err != nil {
		return "", core.NewExternalError("b2", err)
	}
	return u.String(), nil
}

// Delete removes key; a missing object is not an error.
func (s b2Store) Delete(ctx context.Context, key string) error {
	if err := s.bucket.Object(key).Delete(ctx); err != nil && !b2.IsNotExist(err) {
		return core.NewExternalError("b2", err)
	}
	return nil
}
