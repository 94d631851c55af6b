package steps

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	types "github.com/yungbote/coursegen-backend/internal/domain/coursegen"
	"github.com/yungbote/coursegen-backend/internal/platform/gcp"
)

const DefaultMaxSourceBytes int64 = 50 << 20

// Fetcher loads source files from Cloud Storage (gs://) or the local filesystem.
type Fetcher struct {
	GCS      gcp.ObjectReader
	MaxBytes int64
}

func (f Fetcher) maxBytes() int64 {
	if f.MaxBytes > 0 {
		return f.MaxBytes
	}
	return DefaultMaxSourceBytes
}

func (f Fetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, &types.InputError{Field: "filePath", Reason: "empty"}
	}
	if strings.HasPrefix(path, "gs://") {
		if f.GCS == nil {
			return nil, &types.InputError{Field: "filePath", Reason: "gs:// sources need Cloud Storage credentials"}
		}
		b, err := f.GCS.ReadObject(ctx, path, f.maxBytes())
		if err != nil {
			return nil, types.NewProviderError("gcs", "read", err)
		}
		return b, nil
	}

	fh, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &types.InputError{Field: "filePath", Reason: fmt.Sprintf("%s does not exist", path)}
		}
		return nil, types.NewStorageError("open source", err)
	}
	defer fh.Close()
	if info, err := fh.Stat(); err == nil && info.Size() > f.maxBytes() {
		return nil, &types.InputError{Field: "filePath", Reason: fmt.Sprintf("%s is %d bytes, limit %d", path, info.Size(), f.maxBytes())}
	}
	b, err := io.ReadAll(io.LimitReader(fh, f.maxBytes()))
	if err != nil {
		return nil, types.NewStorageError("read source", err)
	}
	return b, nil
}
