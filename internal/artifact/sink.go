// Package artifact stores downloaded export documents.
package artifact

import (
	"context"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// PDFMime is the MIME type expected for export documents.
const PDFMime = "application/pdf"

// Sink persists a named artifact and returns where it was written.
type Sink interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// LocalSink writes artifacts into a directory through a billy filesystem.
// Each write goes to a temp file that is renamed into place, so a file
// under its final name is always complete.
type LocalSink struct {
	fs   billy.Filesystem
	root string
}

// NewLocal returns a LocalSink rooted at dir, creating dir if needed.
func NewLocal(dir string) (*LocalSink, error) {
	return NewLocalFS(osfs.New(dir), dir)
}

// NewLocalFS wraps an existing filesystem. root is only used to report paths.
func NewLocalFS(fs billy.Filesystem, root string) (*LocalSink, error) {
	if err := fs.MkdirAll(".", 0o755); err != nil {
		return nil, eris.Wrapf(err, "artifact: create output dir %s", root)
	}
	return &LocalSink{fs: fs, root: root}, nil
}

// Save implements Sink.
func (s *LocalSink) Save(_ context.Context, name string, data []byte) (string, error) {
	tmp, err := s.fs.TempFile(".", ".partial-")
	if err != nil {
		return "", eris.Wrapf(err, "artifact: create temp file for %s", name)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return "", eris.Wrapf(err, "artifact: write %s", name)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return "", eris.Wrapf(err, "artifact: close %s", name)
	}
	if err := s.fs.Rename(tmpName, name); err != nil {
		_ = s.fs.Remove(tmpName)
		return "", eris.Wrapf(err, "artifact: rename %s", name)
	}

	return filepath.Join(s.root, name), nil
}

// Mirrored saves to Primary and then copies to Mirror. The primary write
// decides the result; mirror failures are only logged.
type Mirrored struct {
	Primary Sink
	Mirror  Sink
}

// Save implements Sink.
func (m *Mirrored) Save(ctx context.Context, name string, data []byte) (string, error) {
	path, err := m.Primary.Save(ctx, name, data)
	if err != nil {
		return "", err
	}
	if m.Mirror != nil {
		if loc, mErr := m.Mirror.Save(ctx, name, data); mErr != nil {
			zap.L().Warn("artifact: mirror upload failed", zap.String("file", name), zap.Error(mErr))
		} else {
			zap.L().Debug("artifact: mirrored", zap.String("file", name), zap.String("location", loc))
		}
	}
	return path, nil
}

// DetectMIME sniffs the content type of data.
func DetectMIME(data []byte) string {
	return mimetype.Detect(data).String()
}

// IsPDF reports whether data looks like a PDF document.
func IsPDF(data []byte) bool {
	return mimetype.Detect(data).Is(PDFMime)
}
