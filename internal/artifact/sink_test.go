package artifact

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var samplePDF = []byte("%PDF-1.7\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n%%EOF\n")

func TestLocalSink_SaveMemFS(t *testing.T) {
	t.Parallel()

	fs := memfs.New()
	sink, err := NewLocalFS(fs, "/exports")
	require.NoError(t, err)

	path, err := sink.Save(context.Background(), "full_export_acme_2023-12-31_x.pdf", samplePDF)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/exports", "full_export_acme_2023-12-31_x.pdf"), path)

	got, err := util.ReadFile(fs, "full_export_acme_2023-12-31_x.pdf")
	require.NoError(t, err)
	assert.Equal(t, samplePDF, got)
}

func TestLocalSink_OverwritesExisting(t *testing.T) {
	t.Parallel()

	fs := memfs.New()
	sink, err := NewLocalFS(fs, "out")
	require.NoError(t, err)

	_, err = sink.Save(context.Background(), "a.pdf", []byte("old"))
	require.NoError(t, err)
	_, err = sink.Save(context.Background(), "a.pdf", []byte("new"))
	require.NoError(t, err)

	got, err := util.ReadFile(fs, "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestLocalSink_CreatesDirOnDemand(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "exports")
	sink, err := NewLocal(dir)
	require.NoError(t, err)

	path, err := sink.Save(context.Background(), "doc.pdf", samplePDF)
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, samplePDF, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file must not be left behind")
	assert.Equal(t, "doc.pdf", entries[0].Name())
}

type failingSink struct{ err error }

func (f failingSink) Save(context.Context, string, []byte) (string, error) {
	return "", f.err
}

type recordingSink struct{ names []string }

func (r *recordingSink) Save(_ context.Context, name string, _ []byte) (string, error) {
	r.names = append(r.names, name)
	return "mirror://" + name, nil
}

func TestMirrored_MirrorFailureDoesNotFail(t *testing.T) {
	t.Parallel()

	primary := &recordingSink{}
	m := &Mirrored{Primary: primary, Mirror: failingSink{err: errors.New("bucket gone")}}

	path, err := m.Save(context.Background(), "a.pdf", samplePDF)
	require.NoError(t, err)
	assert.Equal(t, "mirror://a.pdf", path)
	assert.Equal(t, []string{"a.pdf"}, primary.names)
}

func TestMirrored_PrimaryFailureSkipsMirror(t *testing.T) {
	t.Parallel()

	mirror := &recordingSink{}
	m := &Mirrored{Primary: failingSink{err: errors.New("disk full")}, Mirror: mirror}

	_, err := m.Save(context.Background(), "a.pdf", samplePDF)
	require.Error(t, err)
	assert.Empty(t, mirror.names)
}

func TestIsPDF(t *testing.T) {
	t.Parallel()

	assert.True(t, IsPDF(samplePDF))
	assert.False(t, IsPDF([]byte(`{"error":"not found"}`)))
	assert.False(t, IsPDF(nil))
	assert.Equal(t, PDFMime, DetectMIME(samplePDF))
}

type fakePutter struct {
	bucket, key, contentType string
	body                     []byte
	err                      error
}

func (f *fakePutter) PutObject(_ context.Context, bucket, key string, r io.Reader, _ int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.err != nil {
		return minio.UploadInfo{}, f.err
	}
	f.bucket, f.key, f.contentType = bucket, key, opts.ContentType
	f.body, _ = io.ReadAll(r)
	return minio.UploadInfo{Bucket: bucket, Key: key}, nil
}

func TestMinioSink_Save(t *testing.T) {
	t.Parallel()

	putter := &fakePutter{}
	sink := &MinioSink{client: putter, bucket: "exports", prefix: "/firm-1/"}

	loc, err := sink.Save(context.Background(), "a.pdf", samplePDF)
	require.NoError(t, err)
	assert.Equal(t, "s3://exports/firm-1/a.pdf", loc)
	assert.Equal(t, "firm-1/a.pdf", putter.key)
	assert.Equal(t, PDFMime, putter.contentType)
	assert.Equal(t, samplePDF, putter.body)
}

func TestMinioSink_Error(t *testing.T) {
	t.Parallel()

	sink := &MinioSink{client: &fakePutter{err: errors.New("access denied")}, bucket: "exports"}
	_, err := sink.Save(context.Background(), "a.pdf", samplePDF)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "put object exports/a.pdf")
}

func TestNewMinio_RequiresBucket(t *testing.T) {
	t.Parallel()

	_, err := NewMinio(MinioConfig{Endpoint: "localhost:9000"})
	require.Error(t, err)

	sink, err := NewMinio(MinioConfig{Endpoint: "localhost:9000", Bucket: "b", AccessKey: "k", SecretKey: "s"})
	require.NoError(t, err)
	assert.Equal(t, "b", sink.bucket)
}
