package diff

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numbered(prefix string, n int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return lines
}

// checkHunks verifies the counts in every hunk agree with its lines
func checkHunks(t *testing.T, hunks []Hunk) {
	t.Helper()
	for _, h := range hunks {
		var oldCount, newCount int
		changed := false
		for _, l := range h.Lines {
			switch l.Type {
			case Context:
				oldCount++
				newCount++
			case Deletion:
				oldCount++
				changed = true
			case Addition:
				newCount++
				changed = true
			}
		}
		assert.Equal(t, h.OldLines, oldCount, "old line count")
		assert.Equal(t, h.NewLines, newCount, "new line count")
		assert.LessOrEqual(t, len(h.Lines), MaxHunkLines)
		assert.True(t, changed, "hunk without changes")
	}
}

func TestLines_Identical(t *testing.T) {
	assert.Nil(t, Lines("", ""))
	assert.Nil(t, Lines("a\nb\nc", "a\nb\nc"))
}

func TestLines_EmptyOld(t *testing.T) {
	hunks := Lines("", "a\nb")
	require.Len(t, hunks, 1)

	h := hunks[0]
	assert.Equal(t, 1, h.OldStart)
	assert.Equal(t, 0, h.OldLines)
	assert.Equal(t, 1, h.NewStart)
	assert.Equal(t, 2, h.NewLines)
	assert.Equal(t, []Line{
		{Type: Addition, Content: "a", NewNum: 1},
		{Type: Addition, Content: "b", NewNum: 2},
	}, h.Lines)
}

func TestLines_EmptyNew(t *testing.T) {
	hunks := Lines("a\nb", "")
	require.Len(t, hunks, 1)

	h := hunks[0]
	assert.Equal(t, 1, h.OldStart)
	assert.Equal(t, 2, h.OldLines)
	assert.Equal(t, 0, h.NewLines)
	for _, l := range h.Lines {
		assert.Equal(t, Deletion, l.Type)
	}
}

func TestLines_SingleModification(t *testing.T) {
	hunks := Lines("a\nb\nc", "a\nx\nc")
	require.Len(t, hunks, 1)

	h := hunks[0]
	assert.Equal(t, 1, h.OldStart)
	assert.Equal(t, 3, h.OldLines)
	assert.Equal(t, 1, h.NewStart)
	assert.Equal(t, 3, h.NewLines)

	var kinds []LineType
	for _, l := range h.Lines {
		kinds = append(kinds, l.Type)
	}
	assert.Equal(t, []LineType{Context, Deletion, Addition, Context}, kinds)
	assert.Equal(t, "b", h.Lines[1].Content)
	assert.Equal(t, "x", h.Lines[2].Content)
}

func TestLines_TrailingNewline(t *testing.T) {
	hunks := Lines("a\n", "a\nb\n")
	require.Len(t, hunks, 1)
	checkHunks(t, hunks)

	out, err := Apply("a\n", hunks)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", out)
}

func TestLines_SeparateHunks(t *testing.T) {
	oldLines := numbered("l", 20)
	newLines := append([]string(nil), oldLines...)
	newLines[1] = "X"
	newLines[17] = "Y"

	hunks := Lines(JoinLines(oldLines), JoinLines(newLines))
	require.Len(t, hunks, 2)
	checkHunks(t, hunks)

	assert.Equal(t, 1, hunks[0].OldStart)
	assert.Equal(t, 5, hunks[0].OldLines)
	assert.Equal(t, 5, hunks[0].NewLines)

	assert.Equal(t, 15, hunks[1].OldStart)
	assert.Equal(t, 15, hunks[1].NewStart)
	assert.Equal(t, 6, hunks[1].OldLines)
	assert.Equal(t, 6, hunks[1].NewLines)
}

func TestLines_HunkCap(t *testing.T) {
	newText := JoinLines(numbered("n", 120))
	hunks := Lines("", newText)
	require.Len(t, hunks, 3)
	checkHunks(t, hunks)

	assert.Equal(t, 50, hunks[0].NewLines)
	assert.Equal(t, 50, hunks[1].NewLines)
	assert.Equal(t, 20, hunks[2].NewLines)
	assert.Equal(t, 51, hunks[1].NewStart)

	out, err := Apply("", hunks)
	require.NoError(t, err)
	assert.Equal(t, newText, out)
}

func TestLines_NoResyncPossible(t *testing.T) {
	oldText := JoinLines(numbered("old", 300))
	newText := JoinLines(numbered("new", 300))

	hunks := Lines(oldText, newText)
	checkHunks(t, hunks)

	out, err := Apply(oldText, hunks)
	require.NoError(t, err)
	assert.Equal(t, newText, out)
}

func TestApply_RoundTrip(t *testing.T) {
	cases := []struct {
		name     string
		old, new string
	}{
		{"insert middle", "a\nb\nc", "a\nb\nnew\nc"},
		{"delete middle", "a\nb\nc\nd", "a\nd"},
		{"replace all", "a\nb", "c\nd\ne"},
		{"swap", "a\nb", "b\na"},
		{"append", "a", "a\nb\nc"},
		{"prepend", "c", "a\nb\nc"},
		{"blank lines", "\n\n\n", "\nx\n\n"},
		{"to empty", "a\nb\nc", ""},
		{"from empty", "", "x"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			hunks := Lines(tt.old, tt.new)
			checkHunks(t, hunks)

			out, err := Apply(tt.old, hunks)
			require.NoError(t, err)
			assert.Equal(t, tt.new, out)
		})
	}
}

func TestApply_RandomEdits(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	words := []string{"alpha", "beta", "gamma", "delta", "", "}", "return nil"}

	for round := 0; round < 200; round++ {
		var oldLines, newLines []string
		for i := rng.Intn(80); i > 0; i-- {
			oldLines = append(oldLines, words[rng.Intn(len(words))])
		}
		for _, l := range oldLines {
			switch rng.Intn(6) {
			case 0:
				// drop
			case 1:
				newLines = append(newLines, l, words[rng.Intn(len(words))])
			case 2:
				newLines = append(newLines, words[rng.Intn(len(words))])
			default:
				newLines = append(newLines, l)
			}
		}

		oldText, newText := JoinLines(oldLines), JoinLines(newLines)
		hunks := Lines(oldText, newText)
		checkHunks(t, hunks)

		out, err := Apply(oldText, hunks)
		require.NoError(t, err, "round %d", round)
		require.Equal(t, newText, out, "round %d", round)
	}
}

func TestApply_Mismatch(t *testing.T) {
	hunks := Lines("a\nb\nc", "a\nx\nc")
	_, err := Apply("a\nz\nc", hunks)
	assert.Error(t, err)
}

func TestEngine_Diff(t *testing.T) {
	e := NewEngine(1)
	result := e.Diff([]byte("a\nb\nc\nd"), []byte("a\nB\nc\nd\ne"))

	assert.Equal(t, 2, result.Stats.Additions)
	assert.Equal(t, 1, result.Stats.Deletions)
	assert.Equal(t, 3, result.Stats.Changes)

	text := result.Format("a/file.txt", "b/file.txt")
	assert.True(t, strings.HasPrefix(text, "--- a/file.txt\n+++ b/file.txt\n"))
	assert.Contains(t, text, "-b\n")
	assert.Contains(t, text, "+B\n")
	assert.Contains(t, text, "+e\n")
}

func TestEngine_ZeroContext(t *testing.T) {
	e := NewEngine(0)
	hunks := e.Hunks("a\nb\nc", "a\nx\nc")
	require.Len(t, hunks, 1)
	assert.Equal(t, 2, hunks[0].OldStart)
	assert.Len(t, hunks[0].Lines, 2)
}
