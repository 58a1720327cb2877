package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	tempDirName  = ".tmp"
	maxKeyLength = 255
)

// Filesystem stores each blob as a single file named by its key directly
// under the root directory.
//
// Writes land in root/.tmp first and are committed with a hard link, which
// fails instead of replacing an existing file. A crash mid-upload therefore
// leaves at most a temp file, never a partial blob under a real key.
type Filesystem struct {
	root    string
	tmpDir  string
	dirMode os.FileMode
}

// NewFilesystem creates the root and temp directories if needed and removes
// temp files left over from interrupted uploads.
func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	root = filepath.Clean(root)
	fsys := &Filesystem{
		root:    root,
		tmpDir:  filepath.Join(root, tempDirName),
		dirMode: 0o755,
	}

	if err := os.MkdirAll(fsys.tmpDir, fsys.dirMode); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	entries, err := os.ReadDir(fsys.tmpDir)
	if err != nil {
		return nil, fmt.Errorf("reading temp directory: %w", err)
	}
	for _, e := range entries {
		_ = os.RemoveAll(filepath.Join(fsys.tmpDir, e.Name()))
	}

	return fsys, nil
}

var _ Storage = (*Filesystem)(nil)

// Root returns the directory blobs are stored in.
func (s *Filesystem) Root() string {
	return s.root
}

// Put streams r into a temp file, syncs it, then links it into place under key.
// Cancelling ctx stops the copy; the temp file is always removed.
func (s *Filesystem) Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	if err := validateKey(key); err != nil {
		return ObjectInfo{}, err
	}

	tmp, err := os.CreateTemp(s.tmpDir, "upload-*")
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	n, err := io.Copy(tmp, &contextReader{ctx: ctx, r: r})
	if err != nil {
		_ = tmp.Close()
		return ObjectInfo{}, fmt.Errorf("writing blob %q: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return ObjectInfo{}, fmt.Errorf("syncing blob %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return ObjectInfo{}, fmt.Errorf("closing blob %q: %w", key, err)
	}
	// Last chance to honour a cancel that arrived after the final read.
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, fmt.Errorf("writing blob %q: %w", key, err)
	}

	if err := os.Link(tmpPath, s.path(key)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ObjectInfo{}, fmt.Errorf("blob %q: %w", key, ErrObjectExists)
		}
		return ObjectInfo{}, fmt.Errorf("committing blob %q: %w", key, err)
	}
	s.syncDir()

	return ObjectInfo{
		Key:          key,
		Size:         n,
		ContentType:  opt.ContentType,
		LastModified: time.Now(),
	}, nil
}

// Get opens the blob file. A missing file is reported as ErrObjectNotFound.
func (s *Filesystem) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	if err := validateKey(key); err != nil {
		return nil, ObjectInfo{}, err
	}

	f, err := os.Open(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ObjectInfo{}, fmt.Errorf("blob %q: %w", key, ErrObjectNotFound)
		}
		return nil, ObjectInfo{}, fmt.Errorf("open blob %q: %w", key, err)
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, ObjectInfo{}, fmt.Errorf("stat blob %q: %w", key, err)
	}

	return f, ObjectInfo{
		Key:          key,
		Size:         st.Size(),
		LastModified: st.ModTime(),
	}, nil
}

// Delete removes the blob file. A missing file is reported as ErrObjectNotFound.
func (s *Filesystem) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := os.Remove(s.path(key)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("blob %q: %w", key, ErrObjectNotFound)
		}
		return fmt.Errorf("delete blob %q: %w", key, err)
	}
	return nil
}

func (s *Filesystem) path(key string) string {
	return filepath.Join(s.root, key)
}

// syncDir flushes the directory entry created by a commit. Best effort: not
// every platform supports fsync on directories.
func (s *Filesystem) syncDir() {
	d, err := os.Open(s.root)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// validateKey accepts flat names made of letters, digits, '.', '_' and '-'.
// Keys may not start with '.', which also rules out "." and "..".
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty key: %w", ErrInvalidKey)
	}
	if len(key) > maxKeyLength {
		return fmt.Errorf("key longer than %d bytes: %w", maxKeyLength, ErrInvalidKey)
	}
	if strings.HasPrefix(key, ".") {
		return fmt.Errorf("key %q starts with a dot: %w", key, ErrInvalidKey)
	}
	for i, r := range key {
		if !IsSafeKeyChar(r) {
			return fmt.Errorf("invalid character %q at position %d: %w", r, i, ErrInvalidKey)
		}
	}
	return nil
}

// IsSafeKeyChar reports whether r may appear in a blob key.
func IsSafeKeyChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
		r == '-' || r == '_' || r == '.'
}

// contextReader fails the next Read once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
