package repository

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"folio/internal/branch"
	"folio/internal/commit"
	"folio/internal/errors"
	"folio/internal/transport"
	"folio/internal/validation"
	"folio/internal/worktree"
	shared "folio/shared/types"
	"folio/shared/utils"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// RemoteName is the name clone gives the remote it copied from
const RemoteName = "origin"

// Clone fetches the default branch of url and creates a repository at path
// from it. Nothing touches the disk until the fetch has completed; any
// failure after that removes what was created. path must be missing or an
// empty directory.
func Clone(ctx context.Context, url, path string, opts Options) (*Repository, error) {
	opts.defaults()
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = transport.NewMulti()
	}

	root, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.ValidationError("invalid repository path", path)
	}
	if IsRepository(root) {
		return nil, errors.AlreadyInitialized(root)
	}
	existed, err := checkCloneTarget(root)
	if err != nil {
		return nil, err
	}

	snap, err := fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, transportErr("fetching "+url, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Transport("clone cancelled", err)
	}
	files, err := snapshotFiles(snap, opts.Logger)
	if err != nil {
		return nil, err
	}

	name := snap.Branch
	if validation.ValidateBranchName(name) != nil {
		name = opts.DefaultBranch
	}
	opts.DefaultBranch = name

	r, err := Init(root, opts)
	if err != nil {
		removeClone(root, existed)
		return nil, err
	}
	if err := r.importSnapshot(ctx, url, name, snap, files); err != nil {
		r.Close()
		removeClone(root, existed)
		return nil, err
	}

	r.logger.Info("cloned repository",
		zap.String("url", url),
		zap.String("branch", name),
		zap.Int("files", len(files)))
	return r, nil
}

func transportErr(msg string, err error) error {
	if errors.TypeOf(err) == errors.ErrorTypeTransport {
		return err
	}
	return errors.Transport(msg, err)
}

// checkCloneTarget reports whether root already exists; it must be empty
func checkCloneTarget(root string) (bool, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.ValidationError("clone destination is not a readable directory", root)
	}
	if len(entries) > 0 {
		return true, errors.ValidationError("clone destination exists and is not empty", root)
	}
	return true, nil
}

// removeClone deletes what a failed clone created under root
func removeClone(root string, existed bool) {
	if !existed {
		os.RemoveAll(root)
		return
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, e := range entries {
		os.RemoveAll(filepath.Join(root, e.Name()))
	}
}

// snapshotFiles validates the paths of a fetched snapshot. Paths escaping
// the root are a transport error; paths under ignored directories are
// dropped.
func snapshotFiles(snap *shared.Snapshot, logger *zap.Logger) (map[string][]byte, error) {
	files := make(map[string][]byte, len(snap.Files))
	for p, data := range snap.Files {
		clean, err := validation.NormalizePath(p)
		if err != nil || clean != p {
			return nil, errors.Transport("remote snapshot contains invalid path "+p, err)
		}
		files[p] = data
	}

	ignored := make(map[string]bool, len(worktree.DefaultIgnore))
	for _, name := range worktree.DefaultIgnore {
		ignored[name] = true
	}
	for p := range files {
		for _, part := range strings.Split(p, "/") {
			if ignored[part] {
				logger.Debug("skipping ignored path from snapshot", zap.String("path", p))
				delete(files, p)
				break
			}
		}
	}
	return files, nil
}

func (r *Repository) importSnapshot(ctx context.Context, url, name string, snap *shared.Snapshot, files map[string][]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ref := &branch.RemoteRef{Name: RemoteName + "/" + name, URL: url, FetchedAt: r.opts.Clock()}

	var tree *commit.Tree
	var c *commit.Commit
	if !snap.Empty() {
		paths := utils.SortedKeys(files)
		blobs := make([][]byte, len(paths))
		entries := make(map[string]string, len(paths))
		for i, p := range paths {
			blobs[i] = files[p]
			entries[p] = utils.HashContent(files[p])
		}
		if err := r.putBlobs(paths, blobs, entries); err != nil {
			return err
		}

		tree = commit.NewTree(entries)
		c = &commit.Commit{
			Message:   snap.Message,
			Author:    snap.Author,
			Timestamp: time.Unix(0, snap.Timestamp),
			Tree:      tree.Hash,
			Paths:     paths,
		}
		if c.Message == "" {
			c.Message = "Clone of " + url
		}
		if c.Author == "" {
			c.Author = r.opts.Author
		}
		if snap.Timestamp == 0 {
			c.Timestamp = r.opts.Clock()
		}
		c.Seal()
		ref.Target = c.Hash

		if err := r.wt.Materialize(ctx, nil, files); err != nil {
			return errors.Internal("writing working tree", err)
		}
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		if c != nil {
			if err := r.commits.PutTreeTxn(txn, tree); err != nil {
				return err
			}
			if err := r.commits.PutTxn(txn, c); err != nil {
				return err
			}
		}
		if err := r.branches.PutRemoteTxn(txn, ref); err != nil {
			return err
		}
		b, err := r.branches.GetTxn(txn, name)
		if err != nil {
			return err
		}
		b.Target = ref.Target
		b.Upstream = ref.Name
		return r.branches.PutTxn(txn, b)
	})
	if err != nil {
		return errors.Internal("recording cloned commit", err)
	}
	return nil
}
