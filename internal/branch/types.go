package branch

import (
	"strings"
	"time"
)

// Branch is a named, movable pointer to a commit. An empty Target means the
// branch is unborn. Current, Ahead and Behind are computed when listing.
type Branch struct {
	Name      string    `json:"name"`
	Target    string    `json:"target"`
	Current   bool      `json:"current"`
	Upstream  string    `json:"upstream,omitempty"`
	Ahead     int       `json:"ahead"`
	Behind    int       `json:"behind"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Branch) Unborn() bool {
	return b.Target == ""
}

// RemoteRef records where a remote branch pointed when last fetched
type RemoteRef struct {
	Name      string    `json:"name"` // origin/main
	Target    string    `json:"target"`
	URL       string    `json:"url"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Remote splits a remote ref name into remote and branch parts
func (r *RemoteRef) Remote() (remote, branch string) {
	remote, branch, _ = strings.Cut(r.Name, "/")
	return remote, branch
}

// Head says what the working tree is checked out at: a branch by name, or a
// commit directly when detached.
type Head struct {
	Branch   string `json:"branch,omitempty"`
	Detached string `json:"detached,omitempty"`
}

func (h Head) IsDetached() bool {
	return h.Branch == ""
}

// Box defines the interface for branch storage operations
type Box interface {
	Create(b *Branch) error
	Get(name string) (*Branch, error)
	Put(b *Branch) error
	Delete(name string) error
	List() ([]*Branch, error)

	GetHead() (Head, error)
	SetHead(h Head) error

	PutRemote(r *RemoteRef) error
	GetRemote(name string) (*RemoteRef, error)
	ListRemotes() ([]*RemoteRef, error)
}
