// Package client talks to a folio HTTP server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"folio/internal/api"
	"folio/internal/branch"
	"folio/internal/commit"
	"folio/internal/errors"
	"folio/internal/repository"
	shared "folio/shared/types"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
	}
}

// Status returns the changed paths, optionally restricted to filters
func (c *Client) Status(ctx context.Context, filters ...string) ([]shared.FileChangeSummary, error) {
	var out []shared.FileChangeSummary
	err := c.do(ctx, http.MethodGet, "/api/status"+pathQuery(filters), nil, &out)
	return out, err
}

func (c *Client) Diff(ctx context.Context, filters ...string) ([]repository.Diff, error) {
	var out []repository.Diff
	err := c.do(ctx, http.MethodGet, "/api/diff"+pathQuery(filters), nil, &out)
	return out, err
}

func (c *Client) Stage(ctx context.Context, paths ...string) error {
	return c.do(ctx, http.MethodPost, "/api/stage", api.PathsRequest{Paths: paths}, nil)
}

func (c *Client) StageAll(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/stage", api.PathsRequest{All: true}, nil)
}

func (c *Client) Unstage(ctx context.Context, paths ...string) error {
	return c.do(ctx, http.MethodPost, "/api/unstage", api.PathsRequest{Paths: paths}, nil)
}

func (c *Client) Discard(ctx context.Context, paths ...string) error {
	return c.do(ctx, http.MethodPost, "/api/discard", api.PathsRequest{Paths: paths}, nil)
}

// Commit records the staged changes and returns the new commit hash
func (c *Client) Commit(ctx context.Context, req api.CommitRequest) (string, error) {
	var out api.CommitResponse
	if err := c.do(ctx, http.MethodPost, "/api/commits", req, &out); err != nil {
		return "", err
	}
	return out.Hash, nil
}

// Log returns history from HEAD, restricted to commits touching paths
// when any are given.
func (c *Client) Log(ctx context.Context, limit int, paths ...string) ([]*commit.Commit, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if len(paths) > 0 {
		q["path"] = paths
	}
	path := "/api/commits"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []*commit.Commit
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Compare diffs two stored blobs by hash
func (c *Client) Compare(ctx context.Context, oldHash, newHash string) (*repository.Diff, error) {
	q := url.Values{"old": {oldHash}, "new": {newHash}}
	var out repository.Diff
	if err := c.do(ctx, http.MethodGet, "/api/compare?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Show(ctx context.Context, rev string) (*repository.CommitDetail, error) {
	var out repository.CommitDetail
	if err := c.do(ctx, http.MethodGet, "/api/commits/"+url.PathEscape(rev), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Branches(ctx context.Context) ([]*branch.Branch, error) {
	var out []*branch.Branch
	err := c.do(ctx, http.MethodGet, "/api/branches", nil, &out)
	return out, err
}

func (c *Client) CreateBranch(ctx context.Context, name, startPoint string) (*branch.Branch, error) {
	var out branch.Branch
	req := api.BranchRequest{Name: name, StartPoint: startPoint}
	if err := c.do(ctx, http.MethodPost, "/api/branches", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteBranch(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/api/branches/"+url.PathEscape(name), nil, nil)
}

// Switch checks out a branch and returns the new HEAD
func (c *Client) Switch(ctx context.Context, name string) (*repository.HeadInfo, error) {
	var out repository.HeadInfo
	if err := c.do(ctx, http.MethodPost, "/api/switch", api.SwitchRequest{Branch: name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Head(ctx context.Context) (*repository.HeadInfo, error) {
	var out repository.HeadInfo
	if err := c.do(ctx, http.MethodGet, "/api/head", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func pathQuery(filters []string) string {
	if len(filters) == 0 {
		return ""
	}
	q := url.Values{"path": filters}
	return "?" + q.Encode()
}

// do sends body as JSON and decodes the response into out. Error responses
// come back as *errors.Error so callers can match them with errors.Is.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr errors.Error
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Type == "" {
			return fmt.Errorf("unexpected status: %s", resp.Status)
		}
		apiErr.Code = resp.StatusCode
		return &apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
