package repository

import (
	"context"
	"strings"

	"folio/internal/branch"
	"folio/internal/commit"
	"folio/internal/errors"
	"folio/shared/utils"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// CommitOptions adjusts a single commit
type CommitOptions struct {
	// Paths, when set, are staged and committed on their own; anything else
	// on the stage stays staged.
	Paths []string
	// AllowEmpty permits a commit without net changes
	AllowEmpty bool
	// Author overrides the configured author
	Author string
}

// batchPutter is implemented by content stores that can write several
// blobs as one unit.
type batchPutter interface {
	PutBatch(blobs [][]byte) ([]string, error)
}

// releaser is implemented by reference-counted content stores
type releaser interface {
	Delete(hash string) error
}

// Commit records the staged changes (or opts.Paths) as a new commit on the
// current branch and returns its hash. Blobs go to the content store first;
// the tree, commit, branch move and stage update are then written in one
// database transaction, so a failure at any point leaves the repository
// as it was.
func (r *Repository) Commit(ctx context.Context, message string, opts CommitOptions) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", errors.EmptyCommitMessage()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpen(); err != nil {
		return "", err
	}

	ws, err := r.workState(ctx)
	if err != nil {
		return "", err
	}

	var selected []string
	if len(opts.Paths) > 0 {
		selected, err = ws.expandAll(opts.Paths)
		if err != nil {
			return "", err
		}
	} else {
		selected = utils.SortedKeys(ws.staged)
	}

	entries := make(map[string]string, len(ws.tree.Entries))
	for p, h := range ws.tree.Entries {
		entries[p] = h
	}

	var touched []string
	var blobPaths []string
	var blobs [][]byte
	for _, p := range selected {
		old, inHead := ws.tree.Entries[p]
		if _, onDisk := ws.files[p]; !onDisk {
			if inHead {
				delete(entries, p)
				touched = append(touched, p)
			}
			continue
		}

		data, err := r.wt.Read(p)
		if err != nil {
			return "", internalErr("reading "+p, err)
		}
		h := utils.HashContent(data)
		if inHead && h == old {
			continue
		}
		entries[p] = h
		touched = append(touched, p)
		blobPaths = append(blobPaths, p)
		blobs = append(blobs, data)
	}

	if len(touched) == 0 && !opts.AllowEmpty {
		return "", errors.NothingToCommit()
	}

	if err := r.putBlobs(blobPaths, blobs, entries); err != nil {
		return "", err
	}

	author := opts.Author
	if author == "" {
		author = r.opts.Author
	}
	tree := commit.NewTree(entries)
	c := &commit.Commit{
		Message:   message,
		Author:    author,
		Timestamp: r.opts.Clock(),
		Tree:      tree.Hash,
		Paths:     touched,
	}
	if ws.head.Commit != "" {
		c.Parents = []string{ws.head.Commit}
	}
	c.Seal()

	err = r.db.Update(func(txn *badger.Txn) error {
		if err := r.commits.PutTreeTxn(txn, tree); err != nil {
			return err
		}
		if err := r.commits.PutTxn(txn, c); err != nil {
			return err
		}
		if err := r.advanceHeadTxn(txn, ws.head, c.Hash); err != nil {
			return err
		}
		return r.unstageTxn(txn, selected)
	})
	if err != nil {
		r.releaseBlobs(blobPaths, entries)
		return "", errors.Internal("recording commit", err)
	}

	r.logger.Info("created commit",
		zap.String("hash", c.Hash),
		zap.String("branch", ws.head.Branch),
		zap.Int("paths", len(touched)))
	return c.Hash, nil
}

// putBlobs writes file contents to the content store and checks that the
// store agrees with the hashes already placed in the tree.
func (r *Repository) putBlobs(paths []string, blobs [][]byte, entries map[string]string) error {
	if len(blobs) == 0 {
		return nil
	}

	var hashes []string
	if bp, ok := r.blobs.(batchPutter); ok {
		var err error
		hashes, err = bp.PutBatch(blobs)
		if err != nil {
			return errors.ContentStore("writing blobs", err)
		}
	} else {
		hashes = make([]string, len(blobs))
		for i, blob := range blobs {
			h, err := r.blobs.Put(blob)
			if err != nil {
				return errors.ContentStore("writing "+paths[i], err)
			}
			hashes[i] = h
		}
	}

	for i, p := range paths {
		if hashes[i] != entries[p] {
			return errors.ContentStore("content store returned unexpected hash for "+p, nil)
		}
	}
	return nil
}

// releaseBlobs drops the references putBlobs took for paths after the
// commit that needed them failed to persist.
func (r *Repository) releaseBlobs(paths []string, entries map[string]string) {
	rel, ok := r.blobs.(releaser)
	if !ok {
		return
	}
	for _, p := range paths {
		if err := rel.Delete(entries[p]); err != nil {
			r.logger.Warn("releasing blob after failed commit",
				zap.String("path", p),
				zap.String("hash", entries[p]),
				zap.Error(err))
		}
	}
}

// advanceHeadTxn points the current branch (or the detached HEAD) at hash
func (r *Repository) advanceHeadTxn(txn *badger.Txn, head HeadInfo, hash string) error {
	if head.Detached {
		return r.branches.SetHeadTxn(txn, branch.Head{Detached: hash})
	}
	b, err := r.branches.GetTxn(txn, head.Branch)
	if err != nil {
		return err
	}
	b.Target = hash
	return r.branches.PutTxn(txn, b)
}

// readTree loads every blob of tree, failing on the first store error
func (r *Repository) readTree(ctx context.Context, tree *commit.Tree) (map[string][]byte, error) {
	return r.readBlobs(ctx, tree.Entries, utils.SortedKeys(tree.Entries))
}

// committed returns the HEAD content of p, or PathNotFound
func (r *Repository) committed(ws *workState, p string) ([]byte, error) {
	h, ok := ws.tree.Entries[p]
	if !ok {
		return nil, errors.PathNotFound(p)
	}
	data, err := r.blobs.Get(h)
	if err != nil {
		return nil, errors.ContentStore("reading "+p, err)
	}
	return data, nil
}
