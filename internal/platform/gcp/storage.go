package gcp

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/yungbote/coursegen-backend/internal/platform/logger"
)

// ObjectReader downloads source files referenced by gs:// URIs.
type ObjectReader interface {
	ReadObject(ctx context.Context, uri string, maxBytes int64) ([]byte, error)
	Close() error
}

type objectReader struct {
	log    *logger.Logger
	client *storage.Client
}

func NewObjectReader(ctx context.Context, log *logger.Logger) (ObjectReader, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	c, err := storage.NewClient(ctx, ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	return &objectReader{log: log.With("service", "gcp.ObjectReader"), client: c}, nil
}

func (r *objectReader) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func (r *objectReader) ReadObject(ctx context.Context, uri string, maxBytes int64) ([]byte, error) {
	bucket, key, err := ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	rd, err := r.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs open %s: %w", uri, err)
	}
	defer rd.Close()
	if maxBytes > 0 && rd.Attrs.Size > maxBytes {
		return nil, fmt.Errorf("gcs object %s is %d bytes, limit %d", uri, rd.Attrs.Size, maxBytes)
	}
	var src io.Reader = rd
	if maxBytes > 0 {
		src = io.LimitReader(rd, maxBytes)
	}
	b, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("gcs read %s: %w", uri, err)
	}
	return b, nil
}

func ParseGCSURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "gs://")
	if !ok {
		return "", "", fmt.Errorf("not a gs:// uri: %q", uri)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("gs:// uri needs bucket and object: %q", uri)
	}
	return bucket, key, nil
}
