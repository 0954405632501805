package objectclient

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "github.com/markdave123-py/layoutflow/internal/config"
	"github.com/markdave123-py/layoutflow/internal/core"
	"github.com/markdave123-py/layoutflow/internal/pkg/logger"
)

func TestLocalClient_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c, err := NewLocalClient(t.TempDir())
	require.NoError(t, err)

	loc, err := c.UploadFile(ctx, "docs", "uploads/ab/report.pdf", strings.NewReader("%PDF-1.4"), "application/pdf")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(loc))
	assert.Equal(t, "report.pdf", filepath.Base(loc))

	b, err := c.GetFile(ctx, "docs", "uploads/ab/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(b))

	rc, err := c.GetObjectReader(ctx, "docs", "uploads/ab/report.pdf")
	require.NoError(t, err)
	streamed, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, b, streamed)

	require.NoError(t, c.DeleteFile(ctx, "docs", "uploads/ab/report.pdf"))
	require.NoError(t, c.DeleteFile(ctx, "docs", "uploads/ab/report.pdf"), "deleting twice is not an error")

	_, err = c.GetFile(ctx, "docs", "uploads/ab/report.pdf")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestLocalClient_RejectsEscapingKeys(t *testing.T) {
	c, err := NewLocalClient(t.TempDir())
	require.NoError(t, err)
	_, err = c.UploadFile(context.Background(), "docs", "../../etc/passwd", strings.NewReader("x"), "")
	assert.Error(t, err)
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []string
}

func (r *recordingLogger) record(module, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, module+": "+msg)
}

func (r *recordingLogger) Debug(m, msg string, _ map[string]interface{}) { r.record(m, msg) }
func (r *recordingLogger) Info(m, msg string, _ map[string]interface{}) { r.record(m, msg) }
func (r *recordingLogger) Warn(m, msg string, _ map[string]interface{}) { r.record(m, msg) }
func (r *recordingLogger) Error(m, msg string, _ map[string]interface{}) { r.record(m, msg) }
func (r *recordingLogger) Sync() error { return nil }

func TestNewObjectClient(t *testing.T) {
	c, err := NewObjectClient(context.Background(), &cfg.Config{StorageType: "local", UploadDir: t.TempDir()}, logger.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &LocalClient{}, c)

	_, err = NewObjectClient(context.Background(), &cfg.Config{StorageType: "gcs"}, logger.NewNop())
	assert.Error(t, err)

	_, err = NewObjectClient(context.Background(), &cfg.Config{StorageType: "s3", BucketName: "docs"}, logger.NewNop())
	assert.ErrorContains(t, err, "AWS_REGION")
}

func TestNewS3Client_LogsConfiguration(t *testing.T) {
	rec := &recordingLogger{}
	c, err := NewS3Client(context.Background(), &cfg.Config{
		AwsRegion: "us-east-2", BucketName: "docs", AwsAccessKey: "id", AwsSecretKey: "secret",
	}, rec)
	require.NoError(t, err)
	assert.Equal(t, "docs", c.bucketOr(""))
	assert.Equal(t, "other", c.bucketOr("other"))
	assert.Equal(t, []string{"S3Client: object storage configured"}, rec.entries)
}

func TestObjectKey(t *testing.T) {
	a := ObjectKey("my report.pdf")
	b := ObjectKey("my report.pdf")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "uploads/"))
	assert.True(t, strings.HasSuffix(a, "_my_report.pdf"))
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		in          string
		bucket, key string
		ok          bool
	}{
		{"https://my-bucket.s3.us-east-2.amazonaws.com/path/to/file.pdf", "my-bucket", "path/to/file.pdf", true},
		{"s3://docs/uploads/a.pdf", "docs", "uploads/a.pdf", true},
		{"/var/data/a.pdf", "", "", false},
		{"https://example.com/a.pdf", "", "", false},
		{"s3://docs", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			bucket, key, ok := ParseLocation(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.bucket, bucket)
				assert.Equal(t, tt.key, key)
			}
		})
	}
}
