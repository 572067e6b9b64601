// internal/diff/diff.go
package diff

import (
	"strings"
)

const (
	// MaxHunkLines caps the number of lines a single hunk may hold
	MaxHunkLines = 50
	// DefaultContextLines is the number of unchanged lines kept around a change
	DefaultContextLines = 3

	// resyncWindow bounds how far ahead the scanner looks for matching lines
	// after a mismatch.
	resyncWindow = 256
)

// Line represents a single line in a diff with its type and content
type Line struct {
	Type    LineType `json:"type"`
	Content string   `json:"content"`
	OldNum  int      `json:"old_num,omitempty"` // 1-based, 0 for additions
	NewNum  int      `json:"new_num,omitempty"` // 1-based, 0 for deletions
}

// LineType indicates whether a line was added, removed, or is context
type LineType int

const (
	Context LineType = iota
	Addition
	Deletion
)

func (t LineType) String() string {
	switch t {
	case Addition:
		return "add"
	case Deletion:
		return "del"
	default:
		return "context"
	}
}

// MarshalText makes LineType read as context/add/del in JSON
func (t LineType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *LineType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "add":
		*t = Addition
	case "del":
		*t = Deletion
	default:
		*t = Context
	}
	return nil
}

// Hunk represents a continuous section of changes. Starts are 1-based cursor
// positions at the moment the hunk was opened.
type Hunk struct {
	OldStart int    `json:"old_start"`
	OldLines int    `json:"old_lines"`
	NewStart int    `json:"new_start"`
	NewLines int    `json:"new_lines"`
	Lines    []Line `json:"lines"`
}

// DiffResult contains the complete diff information
type DiffResult struct {
	Hunks []Hunk `json:"hunks"`
	Stats Stats  `json:"stats"`
}

type Stats struct {
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
	Changes   int `json:"changes"`
}

// Engine provides diffing capabilities
type Engine struct {
	contextLines int
	maxHunkLines int
}

// NewEngine creates a new diff engine with specified context lines
func NewEngine(contextLines int) *Engine {
	if contextLines < 0 {
		contextLines = 0
	}
	return &Engine{
		contextLines: contextLines,
		maxHunkLines: MaxHunkLines,
	}
}

var defaultEngine = NewEngine(DefaultContextLines)

// Lines diffs two texts with the default engine
func Lines(oldText, newText string) []Hunk {
	return defaultEngine.Hunks(oldText, newText)
}

// Diff generates a line-by-line diff between two contents
func (e *Engine) Diff(oldContent, newContent []byte) *DiffResult {
	result := &DiffResult{Hunks: e.Hunks(string(oldContent), string(newContent))}

	for _, hunk := range result.Hunks {
		for _, line := range hunk.Lines {
			switch line.Type {
			case Addition:
				result.Stats.Additions++
			case Deletion:
				result.Stats.Deletions++
			}
		}
	}
	result.Stats.Changes = result.Stats.Additions + result.Stats.Deletions

	return result
}

// Hunks returns the hunks transforming oldText into newText. Identical
// inputs produce no hunks.
func (e *Engine) Hunks(oldText, newText string) []Hunk {
	if oldText == newText {
		return nil
	}
	ops := scan(SplitLines(oldText), SplitLines(newText))
	return e.group(ops)
}

// SplitLines splits text on '\n'. Empty text has no lines; a trailing
// newline yields a final empty line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// JoinLines is the inverse of SplitLines
func JoinLines(lines []string) string {
	return strings.Join(lines, "\n")
}

// op is one step of the edit script; oldIdx/newIdx are the 0-based cursors
// before the step is applied.
type op struct {
	kind   LineType
	text   string
	oldIdx int
	newIdx int
}

// scan walks both line arrays in lockstep. Matching lines become context; on
// a mismatch it looks for the nearest point where the two sides line up
// again and emits the skipped old lines as deletions followed by the skipped
// new lines as additions.
func scan(oldLines, newLines []string) []op {
	ops := make([]op, 0, max(len(oldLines), len(newLines)))
	i, j := 0, 0

	emit := func(kind LineType, text string) {
		ops = append(ops, op{kind: kind, text: text, oldIdx: i, newIdx: j})
		switch kind {
		case Context:
			i++
			j++
		case Deletion:
			i++
		case Addition:
			j++
		}
	}

	for i < len(oldLines) || j < len(newLines) {
		switch {
		case i < len(oldLines) && j < len(newLines) && oldLines[i] == newLines[j]:
			emit(Context, oldLines[i])
		case j >= len(newLines):
			emit(Deletion, oldLines[i])
		case i >= len(oldLines):
			emit(Addition, newLines[j])
		default:
			dels, adds := resync(oldLines, newLines, i, j)
			for k := 0; k < dels; k++ {
				emit(Deletion, oldLines[i])
			}
			for k := 0; k < adds; k++ {
				emit(Addition, newLines[j])
			}
		}
	}
	return ops
}

// resync finds the smallest (dels+adds) such that
// oldLines[i+dels] == newLines[j+adds]. Both cursors must be in range and
// pointing at different lines.
func resync(oldLines, newLines []string, i, j int) (dels, adds int) {
	remOld, remNew := len(oldLines)-i, len(newLines)-j

	for d := 1; d <= resyncWindow && d < remOld+remNew; d++ {
		for x := 0; x <= d; x++ {
			y := d - x
			if x >= remOld || y >= remNew {
				continue
			}
			if oldLines[i+x] == newLines[j+y] {
				return x, y
			}
		}
	}

	// Nothing lines up again: drain both sides, or replace one line at a time
	// when the remainder is too long to have been searched exhaustively.
	if remOld+remNew <= resyncWindow {
		return remOld, remNew
	}
	return 1, 1
}

// group turns the edit script into hunks: each change keeps up to
// contextLines unchanged lines on either side, nearby changes merge, and a
// hunk is split once it reaches maxHunkLines.
func (e *Engine) group(ops []op) []Hunk {
	keep := make([]bool, len(ops))
	for idx, o := range ops {
		if o.kind == Context {
			continue
		}
		lo := max(0, idx-e.contextLines)
		hi := min(len(ops)-1, idx+e.contextLines)
		for k := lo; k <= hi; k++ {
			keep[k] = true
		}
	}

	var hunks []Hunk
	var cur *Hunk
	changed := false

	flush := func() {
		if cur != nil && changed {
			hunks = append(hunks, *cur)
		}
		cur, changed = nil, false
	}

	for idx, o := range ops {
		if !keep[idx] {
			flush()
			continue
		}
		if cur != nil && len(cur.Lines) >= e.maxHunkLines {
			flush()
		}
		if cur == nil {
			cur = &Hunk{OldStart: o.oldIdx + 1, NewStart: o.newIdx + 1}
		}

		line := Line{Type: o.kind, Content: o.text}
		switch o.kind {
		case Context:
			line.OldNum, line.NewNum = o.oldIdx+1, o.newIdx+1
			cur.OldLines++
			cur.NewLines++
		case Deletion:
			line.OldNum = o.oldIdx + 1
			cur.OldLines++
			changed = true
		case Addition:
			line.NewNum = o.newIdx + 1
			cur.NewLines++
			changed = true
		}
		cur.Lines = append(cur.Lines, line)
	}
	flush()

	return hunks
}
