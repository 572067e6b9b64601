package diff

import (
	"fmt"
	"strings"
)

// Apply replays hunks produced from old and returns the new text. Context and
// deleted lines must match old exactly.
func Apply(old string, hunks []Hunk) (string, error) {
	src := SplitLines(old)
	out := make([]string, 0, len(src))
	pos := 0

	for n, h := range hunks {
		start := h.OldStart - 1
		if h.OldLines == 0 && start > len(src) {
			return "", fmt.Errorf("hunk %d: start %d beyond end of input", n, h.OldStart)
		}
		if start < pos {
			return "", fmt.Errorf("hunk %d: overlaps previous hunk", n)
		}
		out = append(out, src[pos:min(start, len(src))]...)
		pos = start

		for _, line := range h.Lines {
			switch line.Type {
			case Context, Deletion:
				if pos >= len(src) || src[pos] != line.Content {
					return "", fmt.Errorf("hunk %d: line %d does not match", n, pos+1)
				}
				if line.Type == Context {
					out = append(out, line.Content)
				}
				pos++
			case Addition:
				out = append(out, line.Content)
			}
		}
	}
	if pos < len(src) {
		out = append(out, src[pos:]...)
	}

	if len(out) == 0 {
		return "", nil
	}
	return JoinLines(out), nil
}

// Format renders the result as unified diff text
func (r *DiffResult) Format(oldName, newName string) string {
	if len(r.Hunks) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "--- %s\n+++ %s\n", oldName, newName)
	for _, h := range r.Hunks {
		b.WriteString(h.Header())
		b.WriteByte('\n')
		for _, line := range h.Lines {
			switch line.Type {
			case Addition:
				b.WriteByte('+')
			case Deletion:
				b.WriteByte('-')
			default:
				b.WriteByte(' ')
			}
			b.WriteString(line.Content)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Header returns the @@ line for the hunk
func (h Hunk) Header() string {
	return fmt.Sprintf("@@ -%d,%d +%d,%d @@", h.OldStart, h.OldLines, h.NewStart, h.NewLines)
}
