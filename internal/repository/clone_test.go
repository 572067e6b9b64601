package repository

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"folio/internal/errors"
	"folio/internal/transport"
	shared "folio/shared/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	snap *shared.Snapshot
	err  error
	urls []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*shared.Snapshot, error) {
	f.urls = append(f.urls, url)
	if f.err != nil {
		return nil, f.err
	}
	return f.snap, nil
}

func cloneOptions(f transport.Fetcher) Options {
	opts := testOptions()
	opts.Fetcher = f
	return opts
}

func TestClone(t *testing.T) {
	ctx := context.Background()
	when := time.Date(2023, 5, 4, 3, 2, 1, 0, time.UTC)
	f := &fakeFetcher{snap: &shared.Snapshot{
		Branch:    "trunk",
		Message:   "upstream tip",
		Author:    "Remote <remote@example.com>",
		Timestamp: when.UnixNano(),
		Files: map[string][]byte{
			"README.md":          []byte("# hi\n"),
			"src/main.go":        []byte("package main\n"),
			"node_modules/x.js":  []byte("ignored"),
			".hidden/config.txt": []byte("tracked"),
		},
	}}

	dest := filepath.Join(t.TempDir(), "clone")
	r, err := Clone(ctx, "https://example.com/repo", dest, cloneOptions(f))
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []string{"https://example.com/repo"}, f.urls)
	assert.Equal(t, "# hi\n", readFile(t, r, "README.md"))
	assert.Equal(t, "package main\n", readFile(t, r, "src/main.go"))
	assert.Equal(t, "tracked", readFile(t, r, ".hidden/config.txt"))
	assert.False(t, fileExists(r, "node_modules/x.js"))

	head, err := r.Head()
	require.NoError(t, err)
	assert.Equal(t, "trunk", head.Branch)

	log, err := r.Log(0)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, head.Commit, log[0].Hash)
	assert.Equal(t, "upstream tip", log[0].Message)
	assert.Equal(t, "Remote <remote@example.com>", log[0].Author)
	assert.True(t, when.Equal(log[0].Timestamp))

	status, err := r.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, status)

	refs, err := r.RemoteRefs()
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "origin/trunk", refs[0].Name)
	assert.Equal(t, head.Commit, refs[0].Target)
	assert.Equal(t, "https://example.com/repo", refs[0].URL)

	commitFile(t, r, "README.md", "# changed\n", "local work")
	branches, err := r.ListBranches()
	require.NoError(t, err)
	require.Len(t, branches, 1)
	assert.Equal(t, "origin/trunk", branches[0].Upstream)
	assert.Equal(t, 1, branches[0].Ahead)
	assert.Equal(t, 0, branches[0].Behind)

	hash, err := r.Resolve("origin/trunk")
	require.NoError(t, err)
	assert.Equal(t, log[0].Hash, hash)
}

func TestClone_EmptyRemote(t *testing.T) {
	f := &fakeFetcher{snap: &shared.Snapshot{Branch: "main", Files: map[string][]byte{}}}
	dest := filepath.Join(t.TempDir(), "empty")

	r, err := Clone(context.Background(), "https://example.com/empty", dest, cloneOptions(f))
	require.NoError(t, err)
	defer r.Close()

	head, err := r.Head()
	require.NoError(t, err)
	assert.Equal(t, "main", head.Branch)
	assert.Empty(t, head.Commit)

	state, err := r.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateInitialized, state)
}

func TestClone_DefaultsMissingMetadata(t *testing.T) {
	f := &fakeFetcher{snap: &shared.Snapshot{Files: map[string][]byte{"a.txt": []byte("a")}}}
	dest := filepath.Join(t.TempDir(), "bare")

	r, err := Clone(context.Background(), "https://example.com/bare", dest, cloneOptions(f))
	require.NoError(t, err)
	defer r.Close()

	head, err := r.Head()
	require.NoError(t, err)
	assert.Equal(t, "main", head.Branch)

	log, err := r.Log(0)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, "Clone of https://example.com/bare", log[0].Message)
	assert.Equal(t, testAuthor, log[0].Author)
}

func TestClone_FetchFailureLeavesNothing(t *testing.T) {
	f := &fakeFetcher{err: stderrors.New("connection refused")}
	dest := filepath.Join(t.TempDir(), "clone")

	_, err := Clone(context.Background(), "https://unreachable.invalid", dest, cloneOptions(f))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTransport)

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestClone_InvalidSnapshotLeavesNothing(t *testing.T) {
	for _, bad := range []string{"../escape.txt", "/abs.txt", "a/../b.txt", ".folio/db/x"} {
		t.Run(bad, func(t *testing.T) {
			f := &fakeFetcher{snap: &shared.Snapshot{
				Branch:  "main",
				Message: "evil",
				Files:   map[string][]byte{"ok.txt": []byte("ok"), bad: []byte("x")},
			}}
			dest := t.TempDir()

			_, err := Clone(context.Background(), "https://example.com/evil", dest, cloneOptions(f))
			assert.ErrorIs(t, err, errors.ErrTransport)

			entries, err := os.ReadDir(dest)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestClone_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &fakeFetcher{snap: &shared.Snapshot{Branch: "main", Message: "m", Files: map[string][]byte{"a": []byte("a")}}}
	dest := filepath.Join(t.TempDir(), "clone")

	_, err := Clone(ctx, "https://example.com/repo", dest, cloneOptions(f))
	assert.ErrorIs(t, err, errors.ErrTransport)
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestClone_Destination(t *testing.T) {
	f := &fakeFetcher{snap: &shared.Snapshot{Branch: "main"}}

	busy := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(busy, "file"), []byte("x"), 0644))
	_, err := Clone(context.Background(), "https://example.com/repo", busy, cloneOptions(f))
	assert.ErrorIs(t, err, errors.ErrValidation)
	assert.Empty(t, f.urls, "nothing fetched for a bad destination")

	existing := setupTestRepo(t)
	_, err = Clone(context.Background(), "https://example.com/repo", existing.Root(), cloneOptions(f))
	assert.ErrorIs(t, err, errors.ErrAlreadyInitialized)
}

func TestClone_FromFolioServer(t *testing.T) {
	source := setupTestRepo(t)
	commitFile(t, source, "a.txt", "from the server", "served")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != transport.SnapshotPath {
			http.NotFound(w, req)
			return
		}
		snap, err := source.Snapshot(req.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(snap)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "copy")
	r, err := Clone(context.Background(), srv.URL, dest, cloneOptions(transport.NewHTTP(nil)))
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, "from the server", readFile(t, r, "a.txt"))

	want, err := source.Log(1)
	require.NoError(t, err)
	got, err := r.Log(1)
	require.NoError(t, err)
	assert.Equal(t, want[0].Hash, got[0].Hash, "same content, author and time give the same commit")
}
