package repository

import (
	"context"
	"sort"
	"strings"

	"folio/internal/commit"
	"folio/internal/validation"
	"folio/internal/worktree"
	shared "folio/shared/types"
	"folio/shared/utils"

	"go.uber.org/zap"
)

// workState is a consistent view of HEAD, the stage and the working tree,
// taken under the repository lock.
type workState struct {
	head   HeadInfo
	tree   *commit.Tree
	files  map[string]string // working tree path -> content hash
	staged map[string]bool
}

// changes returns every path whose working tree state differs from HEAD
func (ws *workState) changes() map[string]shared.ChangeStatus {
	out := make(map[string]shared.ChangeStatus)
	for p, h := range ws.files {
		old, ok := ws.tree.Entries[p]
		switch {
		case !ok:
			out[p] = shared.StatusAdded
		case old != h:
			out[p] = shared.StatusModified
		}
	}
	for p := range ws.tree.Entries {
		if _, ok := ws.files[p]; !ok {
			out[p] = shared.StatusDeleted
		}
	}
	return out
}

// known reports whether p exists in the working tree or in HEAD
func (ws *workState) known(p string) bool {
	if _, ok := ws.files[p]; ok {
		return true
	}
	_, ok := ws.tree.Entries[p]
	return ok
}

// under returns the known paths inside directory dir
func (ws *workState) under(dir string) []string {
	prefix := dir + "/"
	seen := make(map[string]bool)
	for p := range ws.files {
		if strings.HasPrefix(p, prefix) {
			seen[p] = true
		}
	}
	for p := range ws.tree.Entries {
		if strings.HasPrefix(p, prefix) {
			seen[p] = true
		}
	}
	return utils.SortedKeys(seen)
}

func (r *Repository) workState(ctx context.Context) (*workState, error) {
	head, err := r.head()
	if err != nil {
		return nil, err
	}
	tree, err := r.commits.TreeOf(head.Commit)
	if err != nil {
		return nil, internalErr("reading HEAD tree", err)
	}
	files, err := r.wt.Scan(ctx)
	if err != nil {
		return nil, internalErr("scanning working tree", err)
	}
	staged, err := r.stagedSet()
	if err != nil {
		return nil, err
	}
	ws := &workState{head: head, tree: tree, files: files, staged: staged}
	r.pruneStaged(ws)
	return ws, nil
}

// pruneStaged drops staged paths that are neither on disk nor in HEAD, such
// as a new file staged and then deleted. Otherwise the entry would come back
// as staged if the file were recreated.
func (r *Repository) pruneStaged(ws *workState) {
	var stale []string
	for p := range ws.staged {
		if !ws.known(p) {
			stale = append(stale, p)
			delete(ws.staged, p)
		}
	}
	if len(stale) == 0 {
		return
	}
	// concurrent readers may race to delete the same entries; losing is fine
	if err := r.unstage(stale); err != nil {
		r.logger.Debug("pruning stale staged paths", zap.Strings("paths", stale), zap.Error(err))
		return
	}
	r.logger.Debug("pruned stale staged paths", zap.Strings("paths", stale))
}

// Status compares the working tree against HEAD. With filters, only paths
// equal to or under one of them are reported. The result is sorted by path.
func (r *Repository) Status(ctx context.Context, filters ...string) ([]shared.FileChangeSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	match, err := pathMatcher(filters)
	if err != nil {
		return nil, err
	}

	ws, err := r.workState(ctx)
	if err != nil {
		return nil, err
	}

	changes := ws.changes()
	summaries := make([]shared.FileChangeSummary, 0, len(changes))
	for _, p := range utils.SortedKeys(changes) {
		if !match(p) {
			continue
		}
		summaries = append(summaries, shared.FileChangeSummary{
			Path:   p,
			Status: changes[p],
			Staged: ws.staged[p],
		})
	}
	return summaries, nil
}

// State reports the lifecycle state of the repository
func (r *Repository) State(ctx context.Context) (State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return StateUninitialized, nil
	}

	ws, err := r.workState(ctx)
	if err != nil {
		return "", err
	}
	switch {
	case len(ws.changes()) > 0:
		return StateDirty, nil
	case ws.head.Commit == "":
		return StateInitialized, nil
	default:
		return StateClean, nil
	}
}

// StateAt reports the state of the repository at path without keeping it
// open.
func StateAt(ctx context.Context, path string, opts Options) (State, error) {
	if !IsRepository(path) {
		return StateUninitialized, nil
	}
	r, err := Open(path, opts)
	if err != nil {
		return "", err
	}
	defer r.Close()
	return r.State(ctx)
}

// Entries lists the working tree and HEAD-only paths as FileEntries.
// Content is only filled for files present on disk.
func (r *Repository) Entries(ctx context.Context) ([]worktree.FileEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	ws, err := r.workState(ctx)
	if err != nil {
		return nil, err
	}
	changes := ws.changes()

	paths := make(map[string]bool, len(ws.files)+len(ws.tree.Entries))
	for p := range ws.files {
		paths[p] = true
	}
	for p := range ws.tree.Entries {
		paths[p] = true
	}

	entries := make([]worktree.FileEntry, 0, len(paths))
	for _, p := range utils.SortedKeys(paths) {
		var entry worktree.FileEntry
		if _, onDisk := ws.files[p]; onDisk {
			e, err := r.wt.Entry(p)
			if err != nil {
				return nil, internalErr("reading "+p, err)
			}
			entry = *e
		} else {
			entry = worktree.FileEntry{Path: p, Hash: ws.tree.Entries[p]}
		}
		_, entry.Dirty = changes[p]
		entry.Staged = ws.staged[p]
		entries = append(entries, entry)
	}
	return entries, nil
}

// pathMatcher builds a predicate for "p is one of filters or under one"
func pathMatcher(filters []string) (func(string) bool, error) {
	if len(filters) == 0 {
		return func(string) bool { return true }, nil
	}

	clean := make([]string, 0, len(filters))
	for _, f := range filters {
		n, err := validation.NormalizePath(f)
		if err != nil {
			return nil, err
		}
		clean = append(clean, n)
	}
	sort.Strings(clean)

	return func(p string) bool {
		for _, f := range clean {
			if p == f || strings.HasPrefix(p, f+"/") {
				return true
			}
		}
		return false
	}, nil
}
