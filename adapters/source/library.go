package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Skryldev/photoreel/core"
	apperrors "github.com/Skryldev/photoreel/errors"
	"github.com/Skryldev/photoreel/utils"
)

// Library reads photos from a directory tree.  A LibraryID is a slash
// separated path relative to the root.
type Library struct {
	rootDir   string
	maxBytes  int64
	chunkSize int
}

// NewLibrary creates a Library rooted at dir.  The directory must exist.
func NewLibrary(dir string, maxBytes int64, chunkSize int) (*Library, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("library: resolve %s: %w", dir, err)
	}
	st, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("library: stat %s: %w", abs, err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("library: %s is not a directory", abs)
	}
	return &Library{rootDir: abs, maxBytes: maxBytes, chunkSize: chunkSize}, nil
}

// Root returns the absolute library root.
func (l *Library) Root() string { return l.rootDir }

func (l *Library) absPath(id core.LibraryID) (string, error) {
	rel := filepath.FromSlash(string(id))
	if rel == "" || filepath.IsAbs(rel) || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q escapes the library", apperrors.ErrInvalidSource, string(id))
	}
	return filepath.Join(l.rootDir, rel), nil
}

func (l *Library) FetchLibrary(ctx context.Context, id core.LibraryID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryFetch, "library.fetch", err)
	}
	path, err := l.absPath(id)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryFetch, "library.fetch", err)
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.New(apperrors.CategoryFetch, "library.fetch",
				fmt.Errorf("%w: %s", apperrors.ErrNotFound, id))
		}
		return nil, apperrors.Wrap(apperrors.CategoryFetch, "library.fetch.open", err)
	}
	defer f.Close()

	data, err := utils.ReadAll(ctx, f, l.maxBytes, l.chunkSize)
	if err != nil {
		if errors.Is(err, utils.ErrLimitExceeded) {
			return nil, apperrors.New(apperrors.CategoryFetch, "library.fetch",
				fmt.Errorf("%w: %s larger than %d bytes", apperrors.ErrTooLarge, id, l.maxBytes))
		}
		return nil, apperrors.Wrap(apperrors.CategoryFetch, "library.fetch.read", err)
	}
	return data, nil
}

// List returns every regular file under the root whose extension is in
// exts (case-insensitive, with dot), sorted lexically.  An empty exts
// matches all files.
func (l *Library) List(exts ...string) ([]core.LibraryID, error) {
	want := make(map[string]bool, len(exts))
	for _, e := range exts {
		want[strings.ToLower(e)] = true
	}
	var out []core.LibraryID
	err := filepath.WalkDir(l.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if len(want) > 0 && !want[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(l.rootDir, path)
		if err != nil {
			return err
		}
		out = append(out, core.LibraryID(filepath.ToSlash(rel)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("library: walk %s: %w", l.rootDir, err)
	}
	return out, nil
}

var _ core.LibraryFetcher = (*Library)(nil)
