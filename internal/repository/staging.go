package repository

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"folio/internal/errors"
	"folio/internal/storage"
	"folio/internal/validation"
	"folio/shared/utils"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// stagedEntry marks a path as selected for the next commit. The content is
// read when the commit is made, not when the path is staged.
type stagedEntry struct {
	Path     string    `json:"path"`
	StagedAt time.Time `json:"staged_at"`
}

func (e *stagedEntry) GetID() string {
	return e.Path
}

func (r *Repository) stagedSet() (map[string]bool, error) {
	ids, err := r.staged.IDs()
	if err != nil {
		return nil, errors.Internal("reading staged paths", err)
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

func (r *Repository) unstageTxn(txn *badger.Txn, paths []string) error {
	for _, p := range paths {
		if err := r.staged.DeleteTxn(txn, p); err != nil && !stderrors.Is(err, storage.ErrNotFound) {
			return err
		}
	}
	return nil
}

// expand resolves one caller path against the state: a file known to the
// working tree or HEAD stands for itself, a directory for the known files
// inside it.
func (ws *workState) expand(raw string) ([]string, error) {
	p, err := validation.NormalizePath(raw)
	if err != nil {
		return nil, err
	}
	if ws.known(p) {
		return []string{p}, nil
	}
	if inside := ws.under(p); len(inside) > 0 {
		return inside, nil
	}
	return nil, errors.PathNotFound(p)
}

func (ws *workState) expandAll(raw []string) ([]string, error) {
	seen := make(map[string]bool)
	for _, r := range raw {
		paths, err := ws.expand(r)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			seen[p] = true
		}
	}
	return utils.SortedKeys(seen), nil
}

// Stage marks paths for the next commit. A path deleted from the working
// tree but present in HEAD stages its deletion. Staging an unchanged or
// already staged path is allowed and changes nothing.
func (r *Repository) Stage(ctx context.Context, paths ...string) error {
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
	return r.stage(ws, resolved)
}

func (r *Repository) stage(ws *workState, paths []string) error {
	now := r.opts.Clock()
	err := r.db.Update(func(txn *badger.Txn) error {
		for _, p := range paths {
			if ws.staged[p] {
				continue
			}
			if err := r.staged.PutTxn(txn, &stagedEntry{Path: p, StagedAt: now}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Internal("staging paths", err)
	}

	r.logger.Debug("staged paths", zap.Strings("paths", paths))
	return nil
}

// StageAll stages every path that differs from HEAD
func (r *Repository) StageAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpen(); err != nil {
		return err
	}

	ws, err := r.workState(ctx)
	if err != nil {
		return err
	}
	return r.stage(ws, utils.SortedKeys(ws.changes()))
}

// Unstage removes paths from the stage. Paths that are not staged are
// ignored.
func (r *Repository) Unstage(ctx context.Context, paths ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpen(); err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.ValidationError("no paths given", nil)
	}

	staged, err := r.stagedSet()
	if err != nil {
		return err
	}

	var drop []string
	for _, raw := range paths {
		p, err := validation.NormalizePath(raw)
		if err != nil {
			return err
		}
		for s := range staged {
			if s == p || strings.HasPrefix(s, p+"/") {
				drop = append(drop, s)
			}
		}
	}

	return r.unstage(drop)
}

// UnstageAll clears the stage
func (r *Repository) UnstageAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOpen(); err != nil {
		return err
	}

	staged, err := r.stagedSet()
	if err != nil {
		return err
	}
	return r.unstage(utils.SortedKeys(staged))
}

func (r *Repository) unstage(paths []string) error {
	if err := r.db.Update(func(txn *badger.Txn) error {
		return r.unstageTxn(txn, paths)
	}); err != nil {
		return errors.Internal("unstaging paths", err)
	}
	return nil
}
