// Package transport fetches the snapshot a clone starts from.
package transport

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"folio/internal/errors"
	shared "folio/shared/types"
)

// Fetcher retrieves the tip of a remote's default branch. Implementations
// report failures as TransportError.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*shared.Snapshot, error)
}

// Multi routes a URL to the HTTP or Git fetcher. URLs served by another
// folio instance go to HTTP; git, ssh, scp-style, *.git and local git
// repositories go to Git.
type Multi struct {
	HTTP Fetcher
	Git  Fetcher
}

// NewMulti returns a Multi with the default fetchers
func NewMulti() *Multi {
	return &Multi{
		HTTP: NewHTTP(nil),
		Git:  NewGit(nil),
	}
}

func (m *Multi) Fetch(ctx context.Context, rawURL string) (*shared.Snapshot, error) {
	f, err := m.route(rawURL)
	if err != nil {
		return nil, err
	}
	return f.Fetch(ctx, rawURL)
}

func (m *Multi) route(rawURL string) (Fetcher, error) {
	if rawURL == "" {
		return nil, errors.Transport("remote URL is empty", nil)
	}

	if isGitURL(rawURL) {
		return m.Git, nil
	}
	if u, err := url.Parse(rawURL); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return m.HTTP, nil
	}
	return nil, errors.Transport("unsupported remote URL "+rawURL, nil)
}

func isGitURL(rawURL string) bool {
	switch {
	case strings.HasSuffix(strings.TrimSuffix(rawURL, "/"), ".git"):
		return true
	case strings.HasPrefix(rawURL, "git://"), strings.HasPrefix(rawURL, "ssh://"),
		strings.HasPrefix(rawURL, "git+ssh://"), strings.HasPrefix(rawURL, "file://"):
		return true
	case strings.HasPrefix(rawURL, "git@"):
		return true
	}

	// a local directory holding a git repository
	if _, err := os.Stat(filepath.Join(rawURL, ".git")); err == nil {
		return true
	}
	return false
}
