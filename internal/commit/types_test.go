package commit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func sampleCommit() *Commit {
	return &Commit{
		Message:   "initial",
		Author:    "Dev <dev@example.com>",
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC),
		Parents:   []string{"p1"},
		Tree:      "t1",
	}
}

func TestCommitHash_Deterministic(t *testing.T) {
	a, b := sampleCommit(), sampleCommit()
	a.Seal()
	b.Seal()
	assert.Equal(t, a.Hash, b.Hash)
	assert.Len(t, a.Hash, 64)
	assert.True(t, a.Verify())

	// Paths are informational
	b.Paths = []string{"x"}
	assert.Equal(t, a.Hash, b.ComputeHash())

	// Time zone does not matter, the instant does
	c := sampleCommit()
	c.Timestamp = c.Timestamp.In(time.FixedZone("X", 3600))
	c.Seal()
	assert.Equal(t, a.Hash, c.Hash)
}

func TestCommitHash_FieldsMatter(t *testing.T) {
	base := sampleCommit()
	base.Seal()

	mutations := map[string]func(c *Commit){
		"message":   func(c *Commit) { c.Message = "other" },
		"author":    func(c *Commit) { c.Author = "Someone" },
		"timestamp": func(c *Commit) { c.Timestamp = c.Timestamp.Add(time.Nanosecond) },
		"tree":      func(c *Commit) { c.Tree = "t2" },
		"parents":   func(c *Commit) { c.Parents = append(c.Parents, "p2") },
		"no parent": func(c *Commit) { c.Parents = nil },
		"shifted":   func(c *Commit) { c.Message, c.Author = c.Author, c.Message },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			c := sampleCommit()
			mutate(c)
			c.Seal()
			assert.NotEqual(t, base.Hash, c.Hash)
		})
	}
}

func TestCommit_Verify(t *testing.T) {
	c := sampleCommit()
	c.Seal()
	c.Message = "tampered"
	assert.False(t, c.Verify())
}

func TestCommit_Helpers(t *testing.T) {
	c := sampleCommit()
	c.Seal()
	assert.Equal(t, c.Hash[:8], c.Short())
	assert.Equal(t, "p1", c.Parent())
	assert.False(t, c.IsMerge())

	c.Parents = []string{"a", "b"}
	assert.True(t, c.IsMerge())

	root := &Commit{}
	assert.Equal(t, "", root.Parent())
}

func TestCommit_Touches(t *testing.T) {
	c := &Commit{Paths: []string{"docs/guide.md", "main.go"}}

	assert.True(t, c.Touches("main.go"))
	assert.True(t, c.Touches("docs"))
	assert.True(t, c.Touches("docs/guide.md"))
	assert.True(t, c.Touches("other", "main.go"))
	assert.False(t, c.Touches("doc"))
	assert.False(t, c.Touches("main"))
	assert.False(t, (&Commit{}).Touches("main.go"))
}

func TestTreeHash(t *testing.T) {
	a := NewTree(map[string]string{"a.txt": "h1", "b/c.txt": "h2"})
	b := NewTree(map[string]string{"b/c.txt": "h2", "a.txt": "h1"})
	assert.Equal(t, a.Hash, b.Hash)

	c := NewTree(map[string]string{"a.txt": "h1", "b/c.txt": "h3"})
	assert.NotEqual(t, a.Hash, c.Hash)

	// path/blob boundaries are unambiguous
	d := NewTree(map[string]string{"ab": "c"})
	e := NewTree(map[string]string{"a": "bc"})
	assert.NotEqual(t, d.Hash, e.Hash)

	empty := NewTree(nil)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", empty.Hash)
	assert.NotNil(t, empty.Entries)
}

func TestNewTree_Copies(t *testing.T) {
	entries := map[string]string{"a": "1"}
	tree := NewTree(entries)
	entries["a"] = "2"
	assert.Equal(t, "1", tree.Entries["a"])
}
