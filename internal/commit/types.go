package commit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"folio/shared/utils"
)

// Commit is an immutable snapshot record. Its Hash is derived from the
// other fields (except Paths) so equal content always yields an equal hash.
type Commit struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
	Parents   []string  `json:"parents"`
	Tree      string    `json:"tree"`
	Paths     []string  `json:"paths,omitempty"` // paths touched relative to the first parent
}

// Tree maps repository-relative paths to blob hashes
type Tree struct {
	Hash    string            `json:"hash"`
	Entries map[string]string `json:"entries"`
}

// Box defines the interface for commit storage operations
type Box interface {
	Get(hash string) (*Commit, error)
	Put(c *Commit) error
	GetTree(hash string) (*Tree, error)
	PutTree(t *Tree) error

	// Resolve expands a full hash or unique prefix to a commit hash
	Resolve(rev string) (string, error)
	Log(from string, limit int) ([]*Commit, error)
	History(from string, paths []string, limit int) ([]*Commit, error)
	AheadBehind(local, upstream string) (ahead, behind int, err error)
}

// NewTree builds a tree over a copy of entries and seals its hash
func NewTree(entries map[string]string) *Tree {
	copied := make(map[string]string, len(entries))
	for p, h := range entries {
		copied[p] = h
	}
	return &Tree{Hash: TreeHash(copied), Entries: copied}
}

// TreeHash hashes the sorted "path NUL blob LF" records of entries
func TreeHash(entries map[string]string) string {
	h := sha256.New()
	for _, p := range utils.SortedKeys(entries) {
		io.WriteString(h, p)
		h.Write([]byte{0})
		io.WriteString(h, entries[p])
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ComputeHash hashes a canonical encoding of the commit. Every field is
// tagged and length-prefixed, so no two commits share an encoding.
func (c *Commit) ComputeHash() string {
	h := sha256.New()
	field := func(name, value string) {
		fmt.Fprintf(h, "%s %d\n%s\n", name, len(value), value)
	}

	field("tree", c.Tree)
	for _, p := range c.Parents {
		field("parent", p)
	}
	field("author", c.Author)
	field("timestamp", c.Timestamp.UTC().Format(time.RFC3339Nano))
	field("message", c.Message)

	return hex.EncodeToString(h.Sum(nil))
}

// Seal normalizes the timestamp and sets Hash
func (c *Commit) Seal() {
	c.Timestamp = c.Timestamp.UTC()
	c.Hash = c.ComputeHash()
}

// Verify reports whether Hash matches the content
func (c *Commit) Verify() bool {
	return c.Hash == c.ComputeHash()
}

// Short returns the abbreviated hash
func (c *Commit) Short() string {
	if len(c.Hash) > 8 {
		return c.Hash[:8]
	}
	return c.Hash
}

func (c *Commit) IsMerge() bool {
	return len(c.Parents) > 1
}

// Parent returns the first parent, or "" for a root commit
func (c *Commit) Parent() string {
	if len(c.Parents) == 0 {
		return ""
	}
	return c.Parents[0]
}

// Touches reports whether the commit changed any of paths, or anything
// under one of them.
func (c *Commit) Touches(paths ...string) bool {
	for _, touched := range c.Paths {
		for _, p := range paths {
			if touched == p || strings.HasPrefix(touched, p+"/") {
				return true
			}
		}
	}
	return false
}
