// internal/worktree/worktree.go
package worktree

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"folio/internal/validation"
	"folio/shared/utils"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FileEntry is one file of the working tree as seen by status
type FileEntry struct {
	Path    string    `json:"path"`
	Content []byte    `json:"-"`
	Hash    string    `json:"hash"`
	Size    int64     `json:"size"`
	Staged  bool      `json:"staged"`
	Dirty   bool      `json:"dirty"`
	ModTime time.Time `json:"mod_time"`
}

// DefaultIgnore lists directory names that are never part of the tree
var DefaultIgnore = []string{validation.MetaDir, ".git", "node_modules"}

// racyWindow is how old a file's mtime must be before its hash is cached.
// Files touched more recently than this are always rehashed, since a second
// write inside the filesystem's timestamp granularity could keep the same
// mtime and size.
const racyWindow = 2 * time.Second

type cacheEntry struct {
	modTime time.Time
	size    int64
	hash    string
}

// Options configures a Worktree
type Options struct {
	CacheSize int
	Ignore    []string
	Logger    *zap.Logger
}

// Worktree gives path-safe access to the files under a repository root.
// Paths passed in and returned are forward-slash and relative to the root.
type Worktree struct {
	root   string
	ignore map[string]bool
	cache  *lru.Cache[string, cacheEntry]
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Worktree rooted at root
func New(root string, opts Options) (*Worktree, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 4096
	}
	if opts.Ignore == nil {
		opts.Ignore = DefaultIgnore
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	cache, err := lru.New[string, cacheEntry](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating hash cache: %w", err)
	}

	ignore := make(map[string]bool, len(opts.Ignore)+1)
	ignore[validation.MetaDir] = true
	for _, name := range opts.Ignore {
		ignore[name] = true
	}

	return &Worktree{
		root:   abs,
		ignore: ignore,
		cache:  cache,
		logger: opts.Logger,
		now:    time.Now,
	}, nil
}

// Root returns the absolute root directory
func (w *Worktree) Root() string {
	return w.root
}

// ShouldIgnore reports whether a relative path falls under an ignored name
func (w *Worktree) ShouldIgnore(rel string) bool {
	if rel == "" || rel == "." {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if w.ignore[part] {
			return true
		}
	}
	return false
}

func (w *Worktree) abs(rel string) string {
	return filepath.Join(w.root, filepath.FromSlash(rel))
}

// Walk returns the sorted relative paths of all regular files
func (w *Worktree) Walk(ctx context.Context) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(w.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(w.root, p)
		if err != nil {
			return err
		}
		if w.ShouldIgnore(rel) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			paths = append(paths, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", w.root, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Exists reports whether rel is a regular file
func (w *Worktree) Exists(rel string) bool {
	info, err := os.Lstat(w.abs(rel))
	return err == nil && info.Mode().IsRegular()
}

// Read returns the content of rel. A missing file yields an error matching
// fs.ErrNotExist.
func (w *Worktree) Read(rel string) ([]byte, error) {
	data, err := os.ReadFile(w.abs(rel))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rel, err)
	}
	return data, nil
}

// Entry reads rel into a FileEntry. Staged and Dirty are left for the caller.
func (w *Worktree) Entry(rel string) (*FileEntry, error) {
	info, err := os.Lstat(w.abs(rel))
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", rel, err)
	}
	data, err := w.Read(rel)
	if err != nil {
		return nil, err
	}
	hash := utils.HashContent(data)
	w.remember(rel, info, hash)

	return &FileEntry{
		Path:    rel,
		Content: data,
		Hash:    hash,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Hash returns the content hash of rel, from the cache when the file's
// mtime and size are unchanged.
func (w *Worktree) Hash(rel string) (string, error) {
	info, err := os.Lstat(w.abs(rel))
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", rel, err)
	}
	if e, ok := w.cache.Get(rel); ok && e.size == info.Size() && e.modTime.Equal(info.ModTime()) {
		return e.hash, nil
	}

	data, err := w.Read(rel)
	if err != nil {
		return "", err
	}
	hash := utils.HashContent(data)
	w.remember(rel, info, hash)
	return hash, nil
}

func (w *Worktree) remember(rel string, info fs.FileInfo, hash string) {
	if w.now().Sub(info.ModTime()) < racyWindow {
		w.cache.Remove(rel)
		return
	}
	w.cache.Add(rel, cacheEntry{modTime: info.ModTime(), size: info.Size(), hash: hash})
}

// Invalidate drops any cached hash for rel
func (w *Worktree) Invalidate(rel string) {
	w.cache.Remove(rel)
}

// HashAll hashes paths in parallel. Paths that vanish in the meantime are
// left out of the result.
func (w *Worktree) HashAll(ctx context.Context, paths []string) (map[string]string, error) {
	hashes := make([]string, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, rel := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			h, err := w.Hash(rel)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			hashes[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make(map[string]string, len(paths))
	for i, rel := range paths {
		if hashes[i] != "" {
			result[rel] = hashes[i]
		}
	}
	return result, nil
}

// Scan walks the tree and hashes every file
func (w *Worktree) Scan(ctx context.Context) (map[string]string, error) {
	paths, err := w.Walk(ctx)
	if err != nil {
		return nil, err
	}
	return w.HashAll(ctx, paths)
}

// Write replaces rel with data, creating parent directories
func (w *Worktree) Write(rel string, data []byte) error {
	if w.ShouldIgnore(rel) {
		return fmt.Errorf("refusing to write ignored path %s", rel)
	}
	target := w.abs(rel)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", rel, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".folio-tmp-*")
	if err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}

	w.Invalidate(rel)
	return nil
}

// Remove deletes rel and any parent directories left empty. Removing a
// missing file is not an error.
func (w *Worktree) Remove(rel string) error {
	w.Invalidate(rel)
	if err := os.Remove(w.abs(rel)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", rel, err)
	}

	for dir := filepath.Dir(w.abs(rel)); dir != w.root && strings.HasPrefix(dir, w.root); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			break
		}
	}
	return nil
}

// Materialize makes the tracked part of the working tree equal to files:
// every path in tracked that is absent from files is removed, and every
// entry of files is written.
func (w *Worktree) Materialize(ctx context.Context, tracked []string, files map[string][]byte) error {
	for _, rel := range tracked {
		if _, keep := files[rel]; keep {
			continue
		}
		if err := w.Remove(rel); err != nil {
			return err
		}
	}

	for _, rel := range utils.SortedKeys(files) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.Write(rel, files[rel]); err != nil {
			return err
		}
	}

	w.logger.Debug("materialized working tree",
		zap.String("root", w.root),
		zap.Int("files", len(files)))
	return nil
}
