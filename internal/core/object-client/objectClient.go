package objectclient

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	cfg "github.com/markdave123-py/layoutflow/internal/config"
	"github.com/markdave123-py/layoutflow/internal/core"
	"github.com/markdave123-py/layoutflow/internal/pkg/logger"
)

// NewObjectClient picks the backend named by STORAGE_TYPE.
func NewObjectClient(ctx context.Context, c *cfg.Config, log logger.ILogger) (core.ObjectClient, error) {
	switch c.StorageType {
	case "s3":
		return NewS3Client(ctx, c, log)
	case "local", "":
		return NewLocalClient(c.UploadDir)
	default:
		return nil, fmt.Errorf("unknown storage type %q", c.StorageType)
	}
}

// ObjectKey builds a collision-free key that keeps the original file name readable.
func ObjectKey(filename string) string {
	id := uuid.NewString()
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filepath.Base(filename), ext)
	base = strings.NewReplacer(" ", "_", "/", "_", "\\", "_").Replace(base)
	return fmt.Sprintf("uploads/%s/%s_%s%s", id[:2], id, base, ext)
}

// ParseLocation splits an s3:// URL or a virtual-hosted S3 https URL into
// bucket and key. ok is false for anything else, such as a local path.
// Example: https://my-bucket.s3.us-east-2.amazonaws.com/path/to/file.pdf
func ParseLocation(loc string) (bucket, key string, ok bool) {
	u, err := url.Parse(loc)
	if err != nil || u.Host == "" {
		return "", "", false
	}
	key = strings.TrimPrefix(u.Path, "/")

	switch u.Scheme {
	case "s3":
		return u.Host, key, key != ""
	case "https", "http":
		host := u.Hostname()
		i := strings.Index(host, ".s3.")
		if i <= 0 || !strings.HasSuffix(host, ".amazonaws.com") {
			return "", "", false
		}
		return host[:i], key, key != ""
	default:
		return "", "", false
	}
}
