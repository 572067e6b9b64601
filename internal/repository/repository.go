// internal/repository/repository.go
package repository

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"folio/internal/branch"
	branchstore "folio/internal/branch/storage"
	commitstore "folio/internal/commit/storage"
	"folio/internal/config"
	"folio/internal/content"
	"folio/internal/diff"
	"folio/internal/errors"
	"folio/internal/safe"
	"folio/internal/storage"
	"folio/internal/transport"
	"folio/internal/validation"
	"folio/internal/worktree"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const (
	dbDir      = "db"
	objectsDir = "objects"
)

// State is where a repository sits in its lifecycle
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitialized   State = "initialized" // unborn HEAD, nothing in the working tree
	StateClean         State = "clean"
	StateDirty         State = "dirty"
)

// Options configures how a repository is opened
type Options struct {
	DefaultBranch string
	Author        string
	CacheSize     int
	Compress      bool
	ContextLines  int

	// Store replaces the default badger-backed content store
	Store content.Store
	// Fetcher is used by Clone; defaults to transport.NewMulti()
	Fetcher transport.Fetcher
	Logger  *zap.Logger
	Clock   func() time.Time
	// Watch keeps the hash cache in sync with fsnotify events
	Watch bool
}

// OptionsFromConfig maps the config file onto repository options
func OptionsFromConfig(cfg *config.Config, logger *zap.Logger) Options {
	return Options{
		DefaultBranch: cfg.Repository.DefaultBranch,
		Author:        cfg.Author(),
		CacheSize:     cfg.Content.CacheSize,
		Compress:      cfg.Content.Compress,
		ContextLines:  diff.DefaultContextLines,
		Logger:        logger,
		Watch:         cfg.Repository.Watch,
	}
}

func (o *Options) defaults() {
	if o.DefaultBranch == "" {
		o.DefaultBranch = "main"
	}
	if o.Author == "" {
		o.Author = "folio <folio@localhost>"
	}
	if o.CacheSize <= 0 {
		o.CacheSize = 1000
	}
	if o.ContextLines <= 0 {
		o.ContextLines = diff.DefaultContextLines
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// Repository is one version-controlled working tree. All methods are safe
// for concurrent use: mutations are serialized and readers see a consistent
// snapshot.
type Repository struct {
	mu sync.RWMutex

	root     string
	db       *badger.DB
	blobs    content.Store
	safe     *safe.Safe // owned blob store, nil when injected
	commits  *commitstore.Store
	branches *branchstore.Store
	staged   *storage.BadgerStore
	wt       *worktree.Worktree
	watcher  *worktree.Watcher
	differ   *diff.Engine
	opts     Options
	logger   *zap.Logger
	closed   bool
}

// IsRepository reports whether path holds an initialized repository
func IsRepository(path string) bool {
	info, err := os.Stat(filepath.Join(path, validation.MetaDir))
	return err == nil && info.IsDir()
}

// FindRoot searches path and its parents for a repository
func FindRoot(path string) (string, error) {
	dir, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		if IsRepository(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.NotInitialized(path)
		}
		dir = parent
	}
}

// Init creates an empty repository at path with a single unborn default
// branch. It fails with AlreadyInitialized when path already holds one.
func Init(path string, opts Options) (*Repository, error) {
	opts.defaults()
	if err := validation.ValidateBranchName(opts.DefaultBranch); err != nil {
		return nil, err
	}

	root, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.ValidationError("invalid repository path", path)
	}
	if IsRepository(root) {
		return nil, errors.AlreadyInitialized(root)
	}

	meta := filepath.Join(root, validation.MetaDir)
	if err := os.MkdirAll(meta, 0755); err != nil {
		return nil, errors.Internal("creating repository metadata", err)
	}

	r, err := open(root, opts)
	if err != nil {
		os.RemoveAll(meta)
		return nil, err
	}

	now := opts.Clock()
	err = r.db.Update(func(txn *badger.Txn) error {
		if err := r.branches.CreateTxn(txn, &branch.Branch{
			Name:      opts.DefaultBranch,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		return r.branches.SetHeadTxn(txn, branch.Head{Branch: opts.DefaultBranch})
	})
	if err != nil {
		r.Close()
		os.RemoveAll(meta)
		return nil, errors.Internal("writing initial HEAD", err)
	}

	r.logger.Info("initialized repository",
		zap.String("root", root),
		zap.String("branch", opts.DefaultBranch))
	return r, nil
}

// Open opens an existing repository at path
func Open(path string, opts Options) (*Repository, error) {
	opts.defaults()
	root, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.ValidationError("invalid repository path", path)
	}
	if !IsRepository(root) {
		return nil, errors.NotInitialized(root)
	}

	r, err := open(root, opts)
	if err != nil {
		return nil, err
	}
	if _, err := r.branches.GetHead(); err != nil {
		r.Close()
		return nil, errors.Internal("repository has no HEAD", err)
	}
	return r, nil
}

func open(root string, opts Options) (*Repository, error) {
	meta := filepath.Join(root, validation.MetaDir)

	dbOpts := badger.DefaultOptions(filepath.Join(meta, dbDir))
	dbOpts.Logger = nil
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, errors.Internal("opening repository database", err)
	}

	r := &Repository{
		root:     root,
		db:       db,
		commits:  commitstore.NewStore(db),
		branches: branchstore.NewStore(db),
		staged:   storage.NewBadgerStore(db, "staged"),
		differ:   diff.NewEngine(opts.ContextLines),
		opts:     opts,
		logger:   opts.Logger.With(zap.String("repo", root)),
	}
	r.branches.SetClock(opts.Clock)

	r.blobs = opts.Store
	if r.blobs == nil {
		s, err := safe.New(db, safe.Options{
			Root:      filepath.Join(meta, objectsDir),
			CacheSize: opts.CacheSize,
			Compress:  opts.Compress,
		})
		if err != nil {
			db.Close()
			return nil, errors.ContentStore("opening content store", err)
		}
		r.safe = s
		r.blobs = s
	}

	r.wt, err = worktree.New(root, worktree.Options{Logger: r.logger})
	if err != nil {
		r.Close()
		return nil, errors.Internal("opening working tree", err)
	}

	if opts.Watch {
		r.watcher, err = r.wt.Watch(nil)
		if err != nil {
			// status still works without the watcher, it just rehashes more
			r.logger.Warn("file watcher unavailable", zap.Error(err))
		}
	}
	return r, nil
}

// Root returns the absolute working tree root
func (r *Repository) Root() string {
	return r.root
}

// Close releases the database and content store. It is safe to call twice.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if r.watcher != nil {
		r.watcher.Close()
	}
	if r.safe != nil {
		r.safe.Close()
	}
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

func (r *Repository) checkOpen() error {
	if r.closed {
		return errors.NotInitialized(r.root)
	}
	return nil
}

// HeadInfo describes what HEAD points at
type HeadInfo struct {
	Branch   string `json:"branch,omitempty"`
	Commit   string `json:"commit,omitempty"` // empty when unborn
	Detached bool   `json:"detached"`
}

// Head returns the current branch and commit
func (r *Repository) Head() (HeadInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return HeadInfo{}, err
	}
	return r.head()
}

func (r *Repository) head() (HeadInfo, error) {
	h, err := r.branches.GetHead()
	if err != nil {
		return HeadInfo{}, errors.Internal("reading HEAD", err)
	}
	if h.IsDetached() {
		return HeadInfo{Commit: h.Detached, Detached: true}, nil
	}

	b, err := r.branches.Get(h.Branch)
	if err != nil {
		return HeadInfo{}, errors.Internal("reading current branch "+h.Branch, err)
	}
	return HeadInfo{Branch: b.Name, Commit: b.Target}, nil
}

// internalErr keeps typed errors as they are and wraps anything else
func internalErr(msg string, err error) error {
	var typed *errors.Error
	if stderrors.As(err, &typed) {
		return err
	}
	return errors.Internal(msg, err)
}
