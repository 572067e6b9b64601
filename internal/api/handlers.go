package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"folio/internal/branch"
	"folio/internal/commit"
	"folio/internal/errors"
	"folio/internal/logging"
	"folio/internal/repository"
	"folio/internal/worktree"
	shared "folio/shared/types"

	"go.uber.org/zap"
)

// Repository is the part of *repository.Repository the HTTP surface uses
type Repository interface {
	Head() (repository.HeadInfo, error)
	Status(ctx context.Context, filters ...string) ([]shared.FileChangeSummary, error)
	Entries(ctx context.Context) ([]worktree.FileEntry, error)
	Diff(ctx context.Context, filters ...string) ([]repository.Diff, error)
	Stage(ctx context.Context, paths ...string) error
	StageAll(ctx context.Context) error
	Unstage(ctx context.Context, paths ...string) error
	UnstageAll(ctx context.Context) error
	Discard(ctx context.Context, paths ...string) error
	Commit(ctx context.Context, message string, opts repository.CommitOptions) (string, error)
	Log(limit int, paths ...string) ([]*commit.Commit, error)
	Compare(oldHash, newHash string) (*repository.Diff, error)
	Show(ctx context.Context, rev string) (*repository.CommitDetail, error)
	ListBranches() ([]*branch.Branch, error)
	CreateBranch(name, startPoint string) (*branch.Branch, error)
	DeleteBranch(name string) error
	SwitchBranch(ctx context.Context, name string) error
	CheckoutDetached(ctx context.Context, rev string) (string, error)
	Snapshot(ctx context.Context) (*shared.Snapshot, error)
}

// Handler serves a single repository over JSON
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handler{repo: repo, logger: logger}
}

// Register adds every route to mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/head", h.Head)
	mux.HandleFunc("GET /api/status", h.Status)
	mux.HandleFunc("GET /api/files", h.Files)
	mux.HandleFunc("GET /api/diff", h.Diff)
	mux.HandleFunc("GET /api/compare", h.Compare)
	mux.HandleFunc("POST /api/stage", h.Stage)
	mux.HandleFunc("POST /api/unstage", h.Unstage)
	mux.HandleFunc("POST /api/discard", h.Discard)
	mux.HandleFunc("GET /api/commits", h.Log)
	mux.HandleFunc("POST /api/commits", h.Commit)
	mux.HandleFunc("GET /api/commits/{rev}", h.Show)
	mux.HandleFunc("GET /api/branches", h.ListBranches)
	mux.HandleFunc("POST /api/branches", h.CreateBranch)
	mux.HandleFunc("DELETE /api/branches/{name}", h.DeleteBranch)
	mux.HandleFunc("POST /api/switch", h.Switch)
	mux.HandleFunc("GET /api/snapshot", h.Snapshot)
}

// PathsRequest is the body of stage, unstage and discard
type PathsRequest struct {
	Paths []string `json:"paths"`
	All   bool     `json:"all,omitempty"`
}

type CommitRequest struct {
	Message    string   `json:"message"`
	Paths      []string `json:"paths,omitempty"`
	AllowEmpty bool     `json:"allow_empty,omitempty"`
	Author     string   `json:"author,omitempty"`
}

type CommitResponse struct {
	Hash string `json:"hash"`
}

type BranchRequest struct {
	Name       string `json:"name"`
	StartPoint string `json:"start_point,omitempty"`
}

// SwitchRequest names a branch, or a revision to check out detached
type SwitchRequest struct {
	Branch string `json:"branch,omitempty"`
	Rev    string `json:"rev,omitempty"`
}

func (h *Handler) Head(w http.ResponseWriter, r *http.Request) {
	head, err := h.repo.Head()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, head)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.repo.Status(r.Context(), r.URL.Query()["path"]...)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) Files(w http.ResponseWriter, r *http.Request) {
	entries, err := h.repo.Entries(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) Diff(w http.ResponseWriter, r *http.Request) {
	diffs, err := h.repo.Diff(r.Context(), r.URL.Query()["path"]...)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, diffs)
}

// Compare diffs the blobs named by the old and new query parameters
func (h *Handler) Compare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	d, err := h.repo.Compare(q.Get("old"), q.Get("new"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) Stage(w http.ResponseWriter, r *http.Request) {
	var req PathsRequest
	if !h.decode(w, r, &req) {
		return
	}

	var err error
	if req.All {
		err = h.repo.StageAll(r.Context())
	} else {
		err = h.repo.Stage(r.Context(), req.Paths...)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Unstage(w http.ResponseWriter, r *http.Request) {
	var req PathsRequest
	if !h.decode(w, r, &req) {
		return
	}

	var err error
	if req.All {
		err = h.repo.UnstageAll(r.Context())
	} else {
		err = h.repo.Unstage(r.Context(), req.Paths...)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Discard(w http.ResponseWriter, r *http.Request) {
	var req PathsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.repo.Discard(r.Context(), req.Paths...); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	var req CommitRequest
	if !h.decode(w, r, &req) {
		return
	}

	hash, err := h.repo.Commit(r.Context(), req.Message, repository.CommitOptions{
		Paths:      req.Paths,
		AllowEmpty: req.AllowEmpty,
		Author:     req.Author,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CommitResponse{Hash: hash})
}

func (h *Handler) Log(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, r, errors.ValidationError("limit must be a non-negative integer", raw))
			return
		}
		limit = n
	}

	commits, err := h.repo.Log(limit, r.URL.Query()["path"]...)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if commits == nil {
		commits = []*commit.Commit{}
	}
	writeJSON(w, http.StatusOK, commits)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	detail, err := h.repo.Show(r.Context(), r.PathValue("rev"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) ListBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := h.repo.ListBranches()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, branches)
}

func (h *Handler) CreateBranch(w http.ResponseWriter, r *http.Request) {
	var req BranchRequest
	if !h.decode(w, r, &req) {
		return
	}

	b, err := h.repo.CreateBranch(req.Name, req.StartPoint)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *Handler) DeleteBranch(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeleteBranch(r.PathValue("name")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Switch(w http.ResponseWriter, r *http.Request) {
	var req SwitchRequest
	if !h.decode(w, r, &req) {
		return
	}

	var err error
	switch {
	case req.Branch != "" && req.Rev != "":
		err = errors.ValidationError("give either branch or rev, not both", nil)
	case req.Branch != "":
		err = h.repo.SwitchBranch(r.Context(), req.Branch)
	case req.Rev != "":
		_, err = h.repo.CheckoutDetached(r.Context(), req.Rev)
	default:
		err = errors.ValidationError("branch or rev is required", nil)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	head, err := h.repo.Head()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, head)
}

// Snapshot serves the current branch tip to cloning peers
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.repo.Snapshot(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, r, errors.ValidationError("invalid request body", err.Error()))
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	log := h.logger.WithRequestID(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		log.Debug("request rejected", zap.String("path", r.URL.Path), zap.Error(err))
	}

	body := &errors.Error{Type: errors.TypeOf(err), Message: err.Error()}
	var e *errors.Error
	if stderrors.As(err, &e) {
		body.Details = e.Details
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
