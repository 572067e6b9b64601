package main

import (
	"fmt"
	"os"
	"strings"

	"folio/internal/branch"
	"folio/internal/commit"
	"folio/internal/diff"
	"folio/internal/errors"
	"folio/internal/repository"
	shared "folio/shared/types"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	blue   = color.New(color.FgBlue).SprintFunc()

	hashColor = color.New(color.FgYellow).SprintFunc()
)

func short(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

func shortOrUnborn(hash string) string {
	if hash == "" {
		return "(no commits)"
	}
	return hashColor(short(hash))
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func statusMark(s shared.ChangeStatus) string {
	switch s {
	case shared.StatusAdded:
		return blue("A")
	case shared.StatusDeleted:
		return red("D")
	default:
		return yellow("M")
	}
}

func printStatus(head repository.HeadInfo, status []shared.FileChangeSummary) {
	if head.Detached {
		fmt.Printf("HEAD detached at %s\n", hashColor(short(head.Commit)))
	} else {
		fmt.Printf("On branch %s\n", head.Branch)
	}
	if head.Commit == "" {
		fmt.Println("No commits yet")
	}

	var staged, unstaged []shared.FileChangeSummary
	for _, s := range status {
		if s.Staged {
			staged = append(staged, s)
		} else {
			unstaged = append(unstaged, s)
		}
	}

	if len(status) == 0 {
		fmt.Println("Nothing to commit, working tree clean")
		return
	}

	if len(staged) > 0 {
		fmt.Println("\nChanges to be committed:")
		fmt.Println("  (use \"folio unstage <path>...\" to unstage)")
		for _, s := range staged {
			fmt.Printf("\t%s %s %s\n", green("✓"), statusMark(s.Status), s.Path)
		}
	}
	if len(unstaged) > 0 {
		fmt.Println("\nChanges not staged for commit:")
		fmt.Println("  (use \"folio stage <path>...\" to include in the next commit)")
		for _, s := range unstaged {
			fmt.Printf("\t  %s %s\n", statusMark(s.Status), s.Path)
		}
	}
	fmt.Println()
}

func printDiff(d repository.Diff) {
	if d.Binary {
		fmt.Printf("Binary file %s differs\n", d.Path)
		return
	}
	oldName, newName := "a/"+d.Path, "b/"+d.Path
	switch d.Type {
	case shared.StatusAdded:
		oldName = "/dev/null"
	case shared.StatusDeleted:
		newName = "/dev/null"
	}
	result := &diff.DiffResult{Hunks: d.Hunks}
	printColoredDiff(result.Format(oldName, newName))
}

func printColoredDiff(text string) {
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	header := color.New(color.FgCyan)
	file := color.New(color.Bold)

	for _, line := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
		switch {
		case line == "":
			fmt.Println()
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
			file.Println(line)
		case strings.HasPrefix(line, "@@"):
			header.Println(line)
		case strings.HasPrefix(line, "+"):
			added.Println(line)
		case strings.HasPrefix(line, "-"):
			removed.Println(line)
		default:
			fmt.Println(line)
		}
	}
}

func printCommit(c *commit.Commit) {
	fmt.Printf("%s %s\n", hashColor("commit"), hashColor(c.Hash))
	if c.IsMerge() {
		parents := make([]string, len(c.Parents))
		for i, p := range c.Parents {
			parents[i] = short(p)
		}
		fmt.Printf("Merge:  %s\n", strings.Join(parents, " "))
	}
	fmt.Printf("Author: %s\n", c.Author)
	fmt.Printf("Date:   %s\n\n", c.Timestamp.Local().Format("Mon Jan 2 15:04:05 2006 -0700"))
	for _, line := range strings.Split(c.Message, "\n") {
		fmt.Printf("    %s\n", line)
	}
	fmt.Println()
}

func printBranches(branches []*branch.Branch) {
	for _, b := range branches {
		mark := "  "
		name := b.Name
		if b.Current {
			mark = green("* ")
			name = green(b.Name)
		}
		line := fmt.Sprintf("%s%s %s", mark, name, shortOrUnborn(b.Target))
		if b.Upstream != "" {
			line += fmt.Sprintf(" [%s: ahead %d, behind %d]", b.Upstream, b.Ahead, b.Behind)
		}
		fmt.Println(line)
	}
}

func printError(err error) {
	msg := err.Error()
	if t := errors.TypeOf(err); t != errors.ErrorTypeInternal {
		msg = fmt.Sprintf("%s (%s)", msg, strings.ToLower(string(t)))
	}
	fmt.Fprintln(os.Stderr, red("error:"), msg)
}
