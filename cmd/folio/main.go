package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"folio/internal/config"
	"folio/internal/repository"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "Folio is a small local version control system",
	Long: `Folio tracks a working directory: stage changes, record commits,
and move between branches. Metadata lives in the .folio directory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		zcfg := zap.NewDevelopmentConfig()
		if !verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		}
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.Path(), "config file (JSON or YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")

	rootCmd.AddCommand(
		newInitCmd(),
		newCloneCmd(),
		newStatusCmd(),
		newDiffCmd(),
		newStageCmd(),
		newUnstageCmd(),
		newDiscardCmd(),
		newCommitCmd(),
		newLogCmd(),
		newCompareCmd(),
		newShowCmd(),
		newBranchCmd(),
		newSwitchCmd(),
	)
}

func options() repository.Options {
	return repository.OptionsFromConfig(cfg, logger)
}

// openRepo opens the repository containing the current directory
func openRepo() (*repository.Repository, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting current directory: %w", err)
	}
	root, err := repository.FindRoot(cwd)
	if err != nil {
		return nil, err
	}
	return repository.Open(root, options())
}

// withRepo runs fn against the current repository and closes it afterwards
func withRepo(fn func(ctx context.Context, r *repository.Repository) error) error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return fn(ctx, r)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}
