package transport

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"

	"folio/internal/errors"
	shared "folio/shared/types"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	gittransport "github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/memory"
	"go.uber.org/zap"
)

// Git fetches the default branch tip of a Git remote into memory
type Git struct {
	logger *zap.Logger
}

func NewGit(logger *zap.Logger) *Git {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Git{logger: logger}
}

func (g *Git) Fetch(ctx context.Context, url string) (*shared.Snapshot, error) {
	repo, err := git.CloneContext(ctx, memory.NewStorage(), nil, &git.CloneOptions{
		URL:          url,
		SingleBranch: true,
		Depth:        1,
		Tags:         git.NoTags,
	})
	if stderrors.Is(err, gittransport.ErrEmptyRemoteRepository) {
		g.logger.Info("remote repository is empty", zap.String("url", url))
		return &shared.Snapshot{Files: map[string][]byte{}}, nil
	}
	if err != nil {
		return nil, errors.Transport("cloning "+url, err)
	}

	snap, err := snapshotFromRepo(repo)
	if err != nil {
		return nil, errors.Transport("reading "+url, err)
	}

	g.logger.Debug("fetched git snapshot",
		zap.String("url", url),
		zap.String("branch", snap.Branch),
		zap.Int("files", len(snap.Files)))
	return snap, nil
}

// snapshotFromRepo reads the tree of HEAD. Submodules are skipped; symlinks
// are kept with their target as content.
func snapshotFromRepo(repo *git.Repository) (*shared.Snapshot, error) {
	ref, err := repo.Head()
	if stderrors.Is(err, plumbing.ErrReferenceNotFound) {
		return &shared.Snapshot{Files: map[string][]byte{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}

	c, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("reading commit %s: %w", ref.Hash(), err)
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("reading tree: %w", err)
	}

	files := make(map[string][]byte)
	err = tree.Files().ForEach(func(f *object.File) error {
		if f.Mode == filemode.Submodule {
			return nil
		}
		r, err := f.Reader()
		if err != nil {
			return fmt.Errorf("opening %s: %w", f.Name, err)
		}
		defer r.Close()

		data, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("reading %s: %w", f.Name, err)
		}
		files[f.Name] = data
		return nil
	})
	if err != nil {
		return nil, err
	}

	snap := &shared.Snapshot{
		Message:   c.Message,
		Author:    fmt.Sprintf("%s <%s>", c.Author.Name, c.Author.Email),
		Timestamp: c.Author.When.UnixNano(),
		Files:     files,
	}
	if ref.Name().IsBranch() {
		snap.Branch = ref.Name().Short()
	}
	return snap, nil
}
