// Package shared holds the shapes exchanged between the repository core and
// its callers (API handlers, client, CLI).
package shared

// ChangeStatus describes how a working-tree file differs from HEAD
type ChangeStatus string

const (
	StatusAdded    ChangeStatus = "added"
	StatusModified ChangeStatus = "modified"
	StatusDeleted  ChangeStatus = "deleted"
)

// FileChangeSummary is one line of `status` output
type FileChangeSummary struct {
	Path   string       `json:"path"`
	Status ChangeStatus `json:"status"`
	Staged bool         `json:"staged"`
}

// Snapshot is the tree of a single branch tip as exchanged by clone
// transports.
type Snapshot struct {
	Branch    string            `json:"branch"`
	Message   string            `json:"message,omitempty"`
	Author    string            `json:"author,omitempty"`
	Timestamp int64             `json:"timestamp,omitempty"` // unix nanoseconds
	Files     map[string][]byte `json:"files"`
}

// Empty reports whether the snapshot describes an unborn branch
func (s *Snapshot) Empty() bool {
	return s == nil || (s.Message == "" && len(s.Files) == 0)
}
