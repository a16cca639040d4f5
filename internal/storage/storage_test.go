package storage

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-warehouse/internal/config"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestLocalStore_PutGetListDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "exports/2026/report.csv", strings.NewReader("a,b\n1,2\n")))
	require.NoError(t, s.Put(ctx, "rule-backups/hierarchy_rules_1.yaml", strings.NewReader("version: 1")))

	rc, err := s.Get(ctx, "exports/2026/report.csv")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "a,b\n1,2\n", string(data))

	keys, err := s.List(ctx, "exports/")
	require.NoError(t, err)
	assert.Equal(t, []string{"exports/2026/report.csv"}, keys)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.Delete(ctx, "exports/2026/report.csv"))
	require.NoError(t, s.Delete(ctx, "exports/2026/report.csv"), "deleting twice is fine")

	_, err = s.Get(ctx, "exports/2026/report.csv")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_KeysCannotEscapeRoot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "../../escape.txt", strings.NewReader("x")))
	assert.Equal(t, filepath.Join(s.root, "escape.txt"), s.Location("../../escape.txt"))

	assert.Error(t, s.Put(ctx, "/", strings.NewReader("x")))
}

func TestLocalStore_Overwrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k.txt", strings.NewReader("one")))
	require.NoError(t, s.Put(ctx, "k.txt", strings.NewReader("two")))

	rc, err := s.Get(ctx, "k.txt")
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "two", string(data))
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	st, err := New(ctx, config.StorageConfig{Backend: "local", LocalDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, st)

	_, err = New(ctx, config.StorageConfig{Backend: "ftp"})
	assert.Error(t, err)

	_, err = New(ctx, config.StorageConfig{Backend: "s3"})
	assert.Error(t, err, "s3 without a bucket is rejected")
}

func TestS3Store_KeysAndLocation(t *testing.T) {
	s := NewS3StoreWithClient(s3.New(s3.Options{Region: "us-west-2"}), "warehouse-archive", "/prod/")

	assert.Equal(t, "prod/exports/a.csv", s.objectKey("exports/a.csv"))
	assert.Equal(t, "prod/exports/a.csv", s.objectKey("/exports/a.csv"))
	assert.Equal(t, "s3://warehouse-archive/prod/exports/a.csv", s.Location("exports/a.csv"))
	assert.Equal(t, "warehouse-archive", s.Bucket())

	bare := NewS3StoreWithClient(s3.New(s3.Options{Region: "us-west-2"}), "b", "")
	assert.Equal(t, "exports/a.csv", bare.objectKey("exports/a.csv"))
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "text/csv", contentTypeFor("a.csv"))
	assert.Equal(t, "application/yaml", contentTypeFor("rules.yaml"))
	assert.Equal(t, "application/octet-stream", contentTypeFor("blob"))
}
