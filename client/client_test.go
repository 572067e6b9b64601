package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"folio/internal/api"
	"folio/internal/errors"
	"folio/internal/repository"
	shared "folio/shared/types"
	"folio/shared/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestClient(t *testing.T) (*Client, *repository.Repository) {
	t.Helper()
	repo, err := repository.Init(t.TempDir(), repository.Options{Author: "Client <client@example.com>"})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	mux := http.NewServeMux()
	api.NewHandler(repo, nil).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return New(srv.URL + "/"), repo
}

func TestClient_Workflow(t *testing.T) {
	ctx := context.Background()
	c, repo := setupTestClient(t)
	require.NoError(t, os.WriteFile(filepath.Join(repo.Root(), "a.txt"), []byte("hello\n"), 0644))

	status, err := c.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status, 1)
	assert.Equal(t, "a.txt", status[0].Path)

	require.NoError(t, c.Stage(ctx, "a.txt"))
	hash, err := c.Commit(ctx, api.CommitRequest{Message: "first"})
	require.NoError(t, err)
	assert.Len(t, hash, 64)

	log, err := c.Log(ctx, 10)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, hash, log[0].Hash)

	detail, err := c.Show(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, "first", detail.Commit.Message)

	b, err := c.CreateBranch(ctx, "topic", "")
	require.NoError(t, err)
	assert.Equal(t, hash, b.Target)

	head, err := c.Switch(ctx, "topic")
	require.NoError(t, err)
	assert.Equal(t, "topic", head.Branch)

	branches, err := c.Branches(ctx)
	require.NoError(t, err)
	assert.Len(t, branches, 2)

	require.NoError(t, os.WriteFile(filepath.Join(repo.Root(), "a.txt"), []byte("changed\n"), 0644))
	diffs, err := c.Diff(ctx, "a.txt")
	require.NoError(t, err)
	require.Len(t, diffs, 1)

	require.NoError(t, c.Discard(ctx, "a.txt"))
	status, err = c.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, status)

	_, err = c.Switch(ctx, "main")
	require.NoError(t, err)
	require.NoError(t, c.DeleteBranch(ctx, "topic"))
}

func TestClient_LogByPathAndCompare(t *testing.T) {
	ctx := context.Background()
	c, repo := setupTestClient(t)
	write := func(rel, data string) {
		t.Helper()
		p := filepath.Join(repo.Root(), filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(data), 0644))
	}

	write("a.txt", "one\n")
	require.NoError(t, c.Stage(ctx, "a.txt"))
	first, err := c.Commit(ctx, api.CommitRequest{Message: "a"})
	require.NoError(t, err)

	write("lib/b.txt", "b\n")
	require.NoError(t, c.StageAll(ctx))
	_, err = c.Commit(ctx, api.CommitRequest{Message: "b"})
	require.NoError(t, err)

	log, err := c.Log(ctx, 0, "a.txt")
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, first, log[0].Hash)

	log, err = c.Log(ctx, 0, "lib")
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, "b", log[0].Message)

	all, err := c.Log(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	d, err := c.Compare(ctx, utils.HashContent([]byte("one\n")), "")
	require.NoError(t, err)
	assert.Equal(t, shared.StatusDeleted, d.Type)
	assert.Equal(t, []byte("one\n"), d.OldContent)

	_, err = c.Compare(ctx, "", "")
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestClient_TypedErrors(t *testing.T) {
	ctx := context.Background()
	c, _ := setupTestClient(t)

	err := c.Stage(ctx, "missing.txt")
	assert.ErrorIs(t, err, errors.ErrPathNotFound)
	assert.Equal(t, 404, errors.HTTPStatus(err))

	_, err = c.Commit(ctx, api.CommitRequest{Message: ""})
	assert.ErrorIs(t, err, errors.ErrEmptyCommitMessage)

	err = c.DeleteBranch(ctx, "main")
	assert.ErrorIs(t, err, errors.ErrCannotDeleteCurrentBranch)

	_, err = c.CreateBranch(ctx, "main", "")
	assert.ErrorIs(t, err, errors.ErrDuplicateBranch)
}

func TestClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Status(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
