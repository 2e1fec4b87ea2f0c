package upload

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"captchad/internal/common/fsutil"
	"captchad/pkg/types"
)

const maxNameLen = 64

// Store writes uploaded images to uniquely named files in one directory. The
// directory is shared by concurrent requests; names never collide, so no locking.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore creates dir if needed and returns a Store rooted there.
func NewStore(dir string) (*Store, error) {
	if err := fsutil.EnsureDir(dir); err != nil {
		return nil, err
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// Dir returns the directory transient files are written to.
func (s *Store) Dir() string { return s.dir }

// TransientFile is one request's image on disk. Callers must Remove it.
type TransientFile struct {
	Path string
	Size int64
}

// Save persists img as <unixnano>-<random>-<sanitized name>. The file is
// created exclusively; a partial write is removed before returning.
func (s *Store) Save(img types.UploadedImage) (*TransientFile, error) {
	name := strconv.FormatInt(s.now().UnixNano(), 10) + "-" + uuid.NewString()[:8] + "-" + SanitizeFilename(img.Filename)
	path := filepath.Join(s.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create transient file: %w", err)
	}
	n, werr := f.Write(img.Data)
	cerr := f.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write transient file %s: %w", path, werr)
	}
	return &TransientFile{Path: path, Size: int64(n)}, nil
}

// Remove deletes the file. Removing an already-removed file is not an error.
func (f *TransientFile) Remove() error {
	if f == nil || f.Path == "" {
		return nil
	}
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// SanitizeFilename reduces a client-supplied name to a safe base name:
// no directories, only [A-Za-z0-9._-], at most 64 bytes, never empty.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(filepath.Clean("/" + name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if len(out) > maxNameLen {
		ext := filepath.Ext(out)
		if len(ext) > 10 {
			ext = ""
		}
		out = out[:maxNameLen-len(ext)] + ext
	}
	if out == "" || out == "_" {
		return "upload"
	}
	return out
}
