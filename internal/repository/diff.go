package repository

import (
	"bytes"
	"context"

	"folio/internal/diff"
	"folio/internal/errors"
	shared "folio/shared/types"
	"folio/shared/utils"
)

// Diff describes how one file changed between two states
type Diff struct {
	Path       string              `json:"path"`
	Type       shared.ChangeStatus `json:"type"`
	OldContent []byte              `json:"old_content,omitempty"`
	NewContent []byte              `json:"new_content,omitempty"`
	Binary     bool                `json:"binary"`
	Hunks      []diff.Hunk         `json:"hunks"`
}

// isBinary uses the usual heuristic: a NUL byte anywhere in the content
func isBinary(data []byte) bool {
	return bytes.IndexByte(data, 0) >= 0
}

func (r *Repository) fileDiff(p string, status shared.ChangeStatus, old, cur []byte) Diff {
	d := Diff{Path: p, Type: status, OldContent: old, NewContent: cur}
	if isBinary(old) || isBinary(cur) {
		d.Binary = true
		return d
	}
	d.Hunks = r.differ.Hunks(string(old), string(cur))
	return d
}

// Diff compares the working tree with HEAD, optionally restricted to a
// path or directory. Binary files are reported without hunks.
func (r *Repository) Diff(ctx context.Context, filters ...string) ([]Diff, error) {
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
	diffs := make([]Diff, 0, len(changes))
	for _, p := range utils.SortedKeys(changes) {
		if !match(p) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var old, cur []byte
		if changes[p] != shared.StatusAdded {
			if old, err = r.committed(ws, p); err != nil {
				return nil, err
			}
		}
		if changes[p] != shared.StatusDeleted {
			if cur, err = r.wt.Read(p); err != nil {
				return nil, internalErr("reading "+p, err)
			}
		}
		diffs = append(diffs, r.fileDiff(p, changes[p], old, cur))
	}
	return diffs, nil
}

// treeDiffs diffs two committed trees
func (r *Repository) treeDiffs(ctx context.Context, oldTree, newTree map[string]string, match func(string) bool) ([]Diff, error) {
	paths := make(map[string]shared.ChangeStatus)
	for p, h := range newTree {
		old, ok := oldTree[p]
		switch {
		case !ok:
			paths[p] = shared.StatusAdded
		case old != h:
			paths[p] = shared.StatusModified
		}
	}
	for p := range oldTree {
		if _, ok := newTree[p]; !ok {
			paths[p] = shared.StatusDeleted
		}
	}

	var diffs []Diff
	for _, p := range utils.SortedKeys(paths) {
		if match != nil && !match(p) {
			continue
		}
		var old, cur []byte
		var err error
		if h, ok := oldTree[p]; ok {
			if old, err = r.blobs.Get(h); err != nil {
				return nil, errors.ContentStore("reading "+p, err)
			}
		}
		if h, ok := newTree[p]; ok {
			if cur, err = r.blobs.Get(h); err != nil {
				return nil, errors.ContentStore("reading "+p, err)
			}
		}
		diffs = append(diffs, r.fileDiff(p, paths[p], old, cur))
	}
	return diffs, nil
}

// Discard restores paths to their HEAD content. Files unknown to HEAD are
// deleted. Discarded paths are also unstaged.
func (r *Repository) Discard(ctx context.Context, paths ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpen(); err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.ValidationError("no paths given", nil)
	}

	ws, err := r.workState(ctx)
	if err != nil {
		return err
	}
	resolved, err := ws.expandAll(paths)
	if err != nil {
		return err
	}

	var restore []string
	var remove []string
	for _, p := range resolved {
		if _, ok := ws.tree.Entries[p]; ok {
			if ws.files[p] != ws.tree.Entries[p] {
				restore = append(restore, p)
			}
		} else {
			remove = append(remove, p)
		}
	}

	files, err := r.readBlobs(ctx, ws.tree.Entries, restore)
	if err != nil {
		return err
	}
	if err := r.wt.Materialize(ctx, remove, files); err != nil {
		return errors.Internal("restoring working tree", err)
	}

	return r.unstage(resolved)
}
