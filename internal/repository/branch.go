package repository

import (
	"context"
	stderrors "errors"
	"runtime"

	"folio/internal/branch"
	commitstore "folio/internal/commit/storage"
	"folio/internal/errors"
	"folio/internal/storage"
	"folio/internal/validation"
	"folio/shared/utils"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// resolve turns a revision into a commit hash. Branch names win over
// remote refs, which win over hashes and unique hash prefixes. "HEAD" is the
// current commit. An unborn branch resolves to "".
func (r *Repository) resolve(rev string) (string, error) {
	if rev == "HEAD" {
		head, err := r.head()
		if err != nil {
			return "", err
		}
		if head.Commit == "" {
			return "", errors.UnknownRevision(rev)
		}
		return head.Commit, nil
	}

	if b, err := r.branches.Get(rev); err == nil {
		return b.Target, nil
	} else if !stderrors.Is(err, storage.ErrNotFound) {
		return "", errors.Internal("reading branch "+rev, err)
	}

	if ref, err := r.branches.GetRemote(rev); err == nil {
		return ref.Target, nil
	} else if !stderrors.Is(err, storage.ErrNotFound) {
		return "", errors.Internal("reading remote ref "+rev, err)
	}

	hash, err := r.commits.Resolve(rev)
	switch {
	case err == nil:
		return hash, nil
	case stderrors.Is(err, storage.ErrNotFound), stderrors.Is(err, commitstore.ErrAmbiguous):
		return "", errors.UnknownRevision(rev)
	default:
		return "", errors.Internal("resolving "+rev, err)
	}
}

// Resolve expands rev to a full commit hash
func (r *Repository) Resolve(rev string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return "", err
	}
	hash, err := r.resolve(rev)
	if err == nil && hash == "" {
		return "", errors.UnknownRevision(rev)
	}
	return hash, err
}

// CreateBranch adds a branch at startPoint, or at HEAD when startPoint is
// empty. Creating from an unborn HEAD yields another unborn branch.
func (r *Repository) CreateBranch(name, startPoint string) (*branch.Branch, error) {
	if err := validation.ValidateBranchName(name); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	var target string
	if startPoint == "" {
		head, err := r.head()
		if err != nil {
			return nil, err
		}
		target = head.Commit
	} else {
		var err error
		if target, err = r.resolve(startPoint); err != nil {
			return nil, err
		}
	}

	b := &branch.Branch{Name: name, Target: target}
	if err := r.branches.Create(b); err != nil {
		if stderrors.Is(err, storage.ErrExists) {
			return nil, errors.DuplicateBranch(name)
		}
		return nil, errors.Internal("creating branch "+name, err)
	}

	r.logger.Info("created branch", zap.String("branch", name), zap.String("target", target))
	return r.branches.Get(name)
}

// SwitchBranch checks out name. It refuses with UncommittedChanges while
// anything in the working tree differs from HEAD, then writes the target
// tree, moves HEAD and clears the stage.
func (r *Repository) SwitchBranch(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpen(); err != nil {
		return err
	}

	b, err := r.branches.Get(name)
	if stderrors.Is(err, storage.ErrNotFound) {
		return errors.UnknownRevision(name)
	} else if err != nil {
		return errors.Internal("reading branch "+name, err)
	}

	ws, err := r.workState(ctx)
	if err != nil {
		return err
	}
	if !ws.head.Detached && ws.head.Branch == name {
		return nil
	}

	if err := r.checkout(ctx, ws, b.Target, branch.Head{Branch: name}); err != nil {
		return err
	}
	r.logger.Info("switched branch", zap.String("branch", name), zap.String("target", b.Target))
	return nil
}

// CheckoutDetached checks out a commit without a branch
func (r *Repository) CheckoutDetached(ctx context.Context, rev string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpen(); err != nil {
		return "", err
	}

	hash, err := r.resolve(rev)
	if err != nil {
		return "", err
	}
	if hash == "" {
		return "", errors.UnknownRevision(rev)
	}

	ws, err := r.workState(ctx)
	if err != nil {
		return "", err
	}
	if err := r.checkout(ctx, ws, hash, branch.Head{Detached: hash}); err != nil {
		return "", err
	}
	r.logger.Info("detached HEAD", zap.String("commit", hash))
	return hash, nil
}

// checkout materializes target into the working tree and points HEAD at
// head. Every blob is read before the first file is touched.
func (r *Repository) checkout(ctx context.Context, ws *workState, target string, head branch.Head) error {
	if changes := ws.changes(); len(changes) > 0 {
		return errors.UncommittedChanges(utils.SortedKeys(changes))
	}

	tree, err := r.commits.TreeOf(target)
	if err != nil {
		return internalErr("reading target tree", err)
	}

	var write []string
	for p, h := range tree.Entries {
		if ws.files[p] != h {
			write = append(write, p)
		}
	}
	files, err := r.readBlobs(ctx, tree.Entries, write)
	if err != nil {
		return err
	}

	var remove []string
	for p := range ws.tree.Entries {
		if _, ok := tree.Entries[p]; !ok {
			remove = append(remove, p)
		}
	}

	if err := r.wt.Materialize(ctx, remove, files); err != nil {
		r.restore(ws, tree.Entries)
		return errors.Internal("writing working tree", err)
	}

	staged := utils.SortedKeys(ws.staged)
	err = r.db.Update(func(txn *badger.Txn) error {
		if err := r.branches.SetHeadTxn(txn, head); err != nil {
			return err
		}
		return r.unstageTxn(txn, staged)
	})
	if err != nil {
		r.restore(ws, tree.Entries)
		return errors.Internal("updating HEAD", err)
	}
	return nil
}

// restore puts the HEAD tree of ws back after a failed checkout towards
// target, dropping any target files already written.
func (r *Repository) restore(ws *workState, target map[string]string) {
	ctx := context.Background()
	files, err := r.readTree(ctx, ws.tree)
	if err == nil {
		tracked := make([]string, 0, len(target))
		for p := range target {
			tracked = append(tracked, p)
		}
		err = r.wt.Materialize(ctx, tracked, files)
	}
	if err != nil {
		r.logger.Error("restoring working tree after failed checkout", zap.Error(err))
	}
}

// readBlobs fetches the blobs for paths from the content store in parallel
func (r *Repository) readBlobs(ctx context.Context, entries map[string]string, paths []string) (map[string][]byte, error) {
	data := make([][]byte, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			blob, err := r.blobs.Get(entries[p])
			if err != nil {
				return errors.ContentStore("reading "+p, err)
			}
			data[i] = blob
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	files := make(map[string][]byte, len(paths))
	for i, p := range paths {
		files[p] = data[i]
	}
	return files, nil
}

// DeleteBranch removes the branch pointer. Commits stay in the database.
func (r *Repository) DeleteBranch(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpen(); err != nil {
		return err
	}

	head, err := r.branches.GetHead()
	if err != nil {
		return errors.Internal("reading HEAD", err)
	}
	if head.Branch == name {
		return errors.CannotDeleteCurrentBranch(name)
	}

	if err := r.branches.Delete(name); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.UnknownRevision(name)
		}
		return errors.Internal("deleting branch "+name, err)
	}

	r.logger.Info("deleted branch", zap.String("branch", name))
	return nil
}

// ListBranches returns every local branch sorted by name, with Current set
// on the checked-out one and Ahead/Behind computed against the upstream.
func (r *Repository) ListBranches() ([]*branch.Branch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	head, err := r.branches.GetHead()
	if err != nil {
		return nil, errors.Internal("reading HEAD", err)
	}
	branches, err := r.branches.List()
	if err != nil {
		return nil, errors.Internal("listing branches", err)
	}

	for _, b := range branches {
		b.Current = head.Branch == b.Name
		if b.Upstream == "" {
			continue
		}
		upstream, err := r.resolve(b.Upstream)
		if err != nil {
			r.logger.Warn("upstream does not resolve",
				zap.String("branch", b.Name),
				zap.String("upstream", b.Upstream),
				zap.Error(err))
			continue
		}
		b.Ahead, b.Behind, err = r.commits.AheadBehind(b.Target, upstream)
		if err != nil {
			return nil, errors.Internal("counting commits for "+b.Name, err)
		}
	}
	return branches, nil
}

// SetUpstream records which branch or remote ref name tracks. An empty
// upstream clears it.
func (r *Repository) SetUpstream(name, upstream string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpen(); err != nil {
		return err
	}

	b, err := r.branches.Get(name)
	if stderrors.Is(err, storage.ErrNotFound) {
		return errors.UnknownRevision(name)
	} else if err != nil {
		return errors.Internal("reading branch "+name, err)
	}

	if upstream != "" {
		if _, err := r.resolve(upstream); err != nil {
			return err
		}
	}
	b.Upstream = upstream
	if err := r.branches.Put(b); err != nil {
		return errors.Internal("updating branch "+name, err)
	}
	return nil
}

// RemoteRefs lists the remote-tracking refs recorded by clone
func (r *Repository) RemoteRefs() ([]*branch.RemoteRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	refs, err := r.branches.ListRemotes()
	if err != nil {
		return nil, errors.Internal("listing remote refs", err)
	}
	return refs, nil
}
