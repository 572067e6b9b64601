package repository

import (
	"context"

	"folio/internal/commit"
	"folio/internal/errors"
	"folio/internal/validation"
	shared "folio/shared/types"
	"folio/shared/utils"
)

// Log returns history from HEAD, newest first. limit <= 0 means all. With
// paths, only commits that touched one of them (or a file under one of
// them) are returned.
func (r *Repository) Log(limit int, paths ...string) ([]*commit.Commit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	clean := make([]string, 0, len(paths))
	for _, p := range paths {
		n, err := validation.NormalizePath(p)
		if err != nil {
			return nil, err
		}
		clean = append(clean, n)
	}

	head, err := r.head()
	if err != nil {
		return nil, err
	}
	commits, err := r.commits.History(head.Commit, clean, limit)
	if err != nil {
		return nil, errors.Internal("walking history", err)
	}
	return commits, nil
}

// Compare diffs two stored blobs. An empty hash stands for no content, so
// Compare("", h) reports h as added.
func (r *Repository) Compare(oldHash, newHash string) (*Diff, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	if oldHash == "" && newHash == "" {
		return nil, errors.ValidationError("at least one blob hash is required", nil)
	}

	old, err := r.blob(oldHash)
	if err != nil {
		return nil, err
	}
	cur, err := r.blob(newHash)
	if err != nil {
		return nil, err
	}

	status := shared.StatusModified
	switch {
	case oldHash == "":
		status = shared.StatusAdded
	case newHash == "":
		status = shared.StatusDeleted
	}
	d := r.fileDiff("", status, old, cur)
	return &d, nil
}

// blob reads hash from the content store; "" reads as no content
func (r *Repository) blob(hash string) ([]byte, error) {
	if hash == "" {
		return nil, nil
	}
	if !utils.IsHash(hash) {
		return nil, errors.ValidationError("invalid blob hash", hash)
	}
	if !r.blobs.Exists(hash) {
		return nil, errors.UnknownRevision(hash)
	}
	data, err := r.blobs.Get(hash)
	if err != nil {
		return nil, errors.ContentStore("reading blob "+hash, err)
	}
	return data, nil
}

// CommitDetail is a commit with the file diffs it introduced
type CommitDetail struct {
	Commit *commit.Commit `json:"commit"`
	Diffs  []Diff         `json:"diffs"`
}

// Show returns the commit named by rev and its changes against the first
// parent.
func (r *Repository) Show(ctx context.Context, rev string) (*CommitDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	hash, err := r.resolve(rev)
	if err != nil {
		return nil, err
	}
	if hash == "" {
		return nil, errors.UnknownRevision(rev)
	}
	c, err := r.commits.Get(hash)
	if err != nil {
		return nil, errors.Internal("reading commit", err)
	}

	tree, err := r.commits.GetTree(c.Tree)
	if err != nil {
		return nil, errors.Internal("reading tree", err)
	}
	parent, err := r.commits.TreeOf(c.Parent())
	if err != nil {
		return nil, errors.Internal("reading parent tree", err)
	}

	diffs, err := r.treeDiffs(ctx, parent.Entries, tree.Entries, nil)
	if err != nil {
		return nil, err
	}
	return &CommitDetail{Commit: c, Diffs: diffs}, nil
}

// Snapshot returns the tip of the current branch with every file, the
// shape clone transports exchange.
func (r *Repository) Snapshot(ctx context.Context) (*shared.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	head, err := r.head()
	if err != nil {
		return nil, err
	}
	snap := &shared.Snapshot{Branch: head.Branch, Files: map[string][]byte{}}
	if head.Commit == "" {
		return snap, nil
	}

	c, err := r.commits.Get(head.Commit)
	if err != nil {
		return nil, errors.Internal("reading HEAD commit", err)
	}
	tree, err := r.commits.GetTree(c.Tree)
	if err != nil {
		return nil, errors.Internal("reading HEAD tree", err)
	}
	files, err := r.readTree(ctx, tree)
	if err != nil {
		return nil, err
	}

	snap.Message = c.Message
	snap.Author = c.Author
	snap.Timestamp = c.Timestamp.UnixNano()
	snap.Files = files
	return snap, nil
}
