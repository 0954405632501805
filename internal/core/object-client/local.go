package objectclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/markdave123-py/layoutflow/internal/core"
)

// LocalClient stores objects under basePath/<bucket>/<key>.
type LocalClient struct {
	basePath string
}

var _ core.ObjectClient = (*LocalClient)(nil)

func NewLocalClient(basePath string) (*LocalClient, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalClient{basePath: abs}, nil
}

func (s *LocalClient) path(bucket, key string) (string, error) {
	full := filepath.Join(s.basePath, bucket, filepath.FromSlash(key))
	if full != s.basePath && !strings.HasPrefix(full, s.basePath+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q escapes storage directory", key)
	}
	return full, nil
}

// UploadFile writes the object and returns its absolute path.
func (s *LocalClient) UploadFile(ctx context.Context, bucket, key string, data io.Reader, _ string) (string, error) {
	full, err := s.path(bucket, key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	f, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(f, data); err != nil {
		f.Close()
		os.Remove(full)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	return full, nil
}

func (s *LocalClient) DeleteFile(ctx context.Context, bucket, key string) error {
	full, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (s *LocalClient) GetFile(ctx context.Context, bucket, key string) ([]byte, error) {
	rc, err := s.GetObjectReader(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *LocalClient) GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	full, err := s.path(bucket, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("object %s/%s: %w", bucket, key, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}
