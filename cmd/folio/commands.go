package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"folio/internal/repository"

	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Create an empty repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			r, err := repository.Init(dir, options())
			if err != nil {
				return err
			}
			defer r.Close()

			head, err := r.Head()
			if err != nil {
				return err
			}
			fmt.Printf("Initialized empty repository in %s on branch %s\n", r.Root(), head.Branch)
			return nil
		},
	}
}

func newCloneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clone [url] [path]",
		Short: "Copy the default branch of a remote into a new repository",
		Long: `Clone fetches the tip of a remote's default branch and creates a new
repository from it. The remote may be another folio server or a Git
repository. Without a url, repository.remote from the config is used.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := cfg.Repository.Remote
			if len(args) > 0 {
				url = args[0]
			}
			if url == "" {
				return fmt.Errorf("no url given and repository.remote is not configured")
			}
			dest := strings.TrimSuffix(filepath.Base(url), ".git")
			if len(args) > 1 {
				dest = args[1]
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			r, err := repository.Clone(ctx, url, dest, options())
			if err != nil {
				return err
			}
			defer r.Close()

			head, err := r.Head()
			if err != nil {
				return err
			}
			fmt.Printf("Cloned %s into %s (branch %s)\n", url, r.Root(), head.Branch)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [paths...]",
		Short: "Show changes between the working tree and HEAD",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(func(ctx context.Context, r *repository.Repository) error {
				head, err := r.Head()
				if err != nil {
					return err
				}
				status, err := r.Status(ctx, args...)
				if err != nil {
					return err
				}
				printStatus(head, status)
				return nil
			})
		},
	}
}

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff [paths...]",
		Short: "Show line changes in the working tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(func(ctx context.Context, r *repository.Repository) error {
				diffs, err := r.Diff(ctx, args...)
				if err != nil {
					return err
				}
				for _, d := range diffs {
					printDiff(d)
				}
				return nil
			})
		},
	}
}

func newStageCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "stage [paths...]",
		Short: "Mark paths for the next commit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("specify paths to stage or use --all")
			}
			return withRepo(func(ctx context.Context, r *repository.Repository) error {
				if all {
					return r.StageAll(ctx)
				}
				return r.Stage(ctx, args...)
			})
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "stage every change")
	return cmd
}

func newUnstageCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "unstage [paths...]",
		Short: "Remove paths from the next commit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("specify paths to unstage or use --all")
			}
			return withRepo(func(ctx context.Context, r *repository.Repository) error {
				if all {
					return r.UnstageAll(ctx)
				}
				return r.Unstage(ctx, args...)
			})
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "clear the stage")
	return cmd
}

func newDiscardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discard <paths...>",
		Short: "Restore paths to their committed content",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(func(ctx context.Context, r *repository.Repository) error {
				return r.Discard(ctx, args...)
			})
		},
	}
}

func newCommitCmd() *cobra.Command {
	var opts repository.CommitOptions
	var message string
	cmd := &cobra.Command{
		Use:   "commit [paths...]",
		Short: "Record staged changes",
		Long: `Commit records the staged changes on the current branch. With paths,
exactly those paths are committed and the rest of the stage is kept.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Paths = args
			return withRepo(func(ctx context.Context, r *repository.Repository) error {
				hash, err := r.Commit(ctx, message, opts)
				if err != nil {
					return err
				}
				head, err := r.Head()
				if err != nil {
					return err
				}
				where := head.Branch
				if head.Detached {
					where = "detached HEAD"
				}
				fmt.Printf("[%s %s] %s\n", where, hashColor(short(hash)), firstLine(message))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	cmd.Flags().BoolVar(&opts.AllowEmpty, "allow-empty", false, "commit even when nothing changed")
	cmd.Flags().StringVar(&opts.Author, "author", "", "override the configured author")
	return cmd
}

func newLogCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "log [paths...]",
		Short: "Show commit history from HEAD",
		Long: `Log lists commits reachable from HEAD, newest first. With paths, only
commits that changed one of them (or anything beneath a directory) are shown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(func(ctx context.Context, r *repository.Repository) error {
				commits, err := r.Log(limit, args...)
				if err != nil {
					return err
				}
				if len(commits) == 0 {
					fmt.Println("No commits yet")
					return nil
				}
				for _, c := range commits {
					printCommit(c)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "max-count", "n", 0, "limit the number of commits")
	return cmd
}

func newCompareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <old-blob> <new-blob>",
		Short: "Diff two stored blobs by hash",
		Long: `Compare diffs two blobs from the content store. Pass "" for either side
to show the other as wholly added or deleted.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(func(ctx context.Context, r *repository.Repository) error {
				d, err := r.Compare(args[0], args[1])
				if err != nil {
					return err
				}
				d.Path = short(args[0])
				if args[1] != "" {
					d.Path = short(args[1])
				}
				printDiff(*d)
				return nil
			})
		},
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <rev>",
		Short: "Show a commit and its changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(func(ctx context.Context, r *repository.Repository) error {
				detail, err := r.Show(ctx, args[0])
				if err != nil {
					return err
				}
				printCommit(detail.Commit)
				for _, d := range detail.Diffs {
					printDiff(d)
				}
				return nil
			})
		},
	}
}

func newBranchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branch",
		Short: "List, create or delete branches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(func(ctx context.Context, r *repository.Repository) error {
				branches, err := r.ListBranches()
				if err != nil {
					return err
				}
				printBranches(branches)
				return nil
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create <name> [start-point]",
		Short: "Create a branch at HEAD or at start-point",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start := ""
			if len(args) == 2 {
				start = args[1]
			}
			return withRepo(func(ctx context.Context, r *repository.Repository) error {
				b, err := r.CreateBranch(args[0], start)
				if err != nil {
					return err
				}
				fmt.Printf("Created branch %s at %s\n", b.Name, shortOrUnborn(b.Target))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a branch pointer",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(func(ctx context.Context, r *repository.Repository) error {
				if err := r.DeleteBranch(args[0]); err != nil {
					return err
				}
				fmt.Printf("Deleted branch %s\n", args[0])
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "upstream <name> [upstream]",
		Short: "Set or clear the branch a branch is compared against",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			upstream := ""
			if len(args) == 2 {
				upstream = args[1]
			}
			return withRepo(func(ctx context.Context, r *repository.Repository) error {
				return r.SetUpstream(args[0], upstream)
			})
		},
	})
	return cmd
}

func newSwitchCmd() *cobra.Command {
	var detach bool
	cmd := &cobra.Command{
		Use:   "switch <branch>",
		Short: "Check out a branch, or a commit with --detach",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(func(ctx context.Context, r *repository.Repository) error {
				if detach {
					hash, err := r.CheckoutDetached(ctx, args[0])
					if err != nil {
						return err
					}
					fmt.Printf("HEAD is now at %s (detached)\n", hashColor(short(hash)))
					return nil
				}
				if err := r.SwitchBranch(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Switched to branch %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&detach, "detach", false, "check out a revision without a branch")
	return cmd
}
