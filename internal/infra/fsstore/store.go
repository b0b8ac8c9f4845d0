package fsstore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/childlens/bmnprep/internal/domain/port"
)

var ErrPathInvalid = errors.New("artifact path escapes store root")

// Store is a local-filesystem artifact store rooted at a directory. Writes go
// to a pending file in the destination directory that replaces the artifact
// only once fully synced; readers never see a truncated artifact.
type Store struct {
	root    string
	permF   os.FileMode
	permD   os.FileMode
	bufSize int
}

var _ port.ArtifactStore = (*Store)(nil)

func New(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("artifact store root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &Store{root: root, permF: 0o644, permD: 0o755, bufSize: 64 * 1024}, nil
}

// Path maps a store-relative name to its location on disk. Absolute names are
// returned unchanged so callers can probe inputs outside the root.
func (s *Store) Path(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(s.root, filepath.Clean(name))
}

// Exists reports whether name is a non-empty file or a directory with at
// least one entry.
func (s *Store) Exists(name string) (bool, error) {
	p := s.Path(name)
	fi, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !fi.IsDir() {
		return fi.Size() > 0, nil
	}
	f, err := os.Open(p)
	if err != nil {
		return false, err
	}
	defer f.Close()
	names, err := f.Readdirnames(1)
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return len(names) > 0, nil
}

func (s *Store) Write(ctx context.Context, name string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := s.mapPath(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), s.permD); err != nil {
		return err
	}
	return s.writeAtomic(ctx, dest, r)
}

func (s *Store) mapPath(name string) (string, error) {
	rel := filepath.Clean(name)
	if rel == "." || rel == "" || filepath.IsAbs(rel) {
		return "", ErrPathInvalid
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrPathInvalid
	}
	if vol := filepath.VolumeName(rel); vol != "" {
		return "", ErrPathInvalid
	}
	return filepath.Join(s.root, rel), nil
}

func (s *Store) writeAtomic(ctx context.Context, dest string, r io.Reader) error {
	dir := filepath.Dir(dest)
	pf, err := renameio.NewPendingFile(dest, renameio.WithTempDir(dir), renameio.WithPermissions(s.permF))
	if err != nil {
		return err
	}
	defer pf.Cleanup()

	bw := bufio.NewWriterSize(pf, s.bufSize)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return err
	}
	_ = syncDir(dir)
	return nil
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

func readerWithCtx(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
