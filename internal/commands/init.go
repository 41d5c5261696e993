package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/passbook-dev/passbook/internal/codec"
	"github.com/passbook-dev/passbook/internal/config"
	"github.com/passbook-dev/passbook/internal/gitops"
	"github.com/passbook-dev/passbook/internal/model"
)

func newInitCommand(a *app) *cobra.Command {
	var withGit bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Create passbook.yaml and an empty store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			hash, err := runInit(absDir, withGit)
			if err != nil {
				return err
			}
			if hash != "" {
				printf(cmd, "Initialized passbook at %s (%s)\n", absDir, hash)
			} else {
				printf(cmd, "Initialized passbook at %s\n", absDir)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withGit, "git", false, "initialize a git repository and commit every store change")

	return cmd
}

// runInit writes the default config and an empty store into dir. With
// withGit it also creates a repository and commits both files.
func runInit(dir string, withGit bool) (string, error) {
	cfgPath := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(cfgPath); err == nil {
		return "", fmt.Errorf("%s already exists", cfgPath)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating directory: %w", err)
	}

	cfg := config.Default()
	cfg.Git.AutoCommit = withGit
	if err := config.Save(cfgPath, cfg); err != nil {
		return "", fmt.Errorf("writing config: %w", err)
	}

	file := codec.NewFile(filepath.Join(dir, cfg.Store.Path))
	if !file.Exists() {
		if err := file.Flush(model.State{}); err != nil {
			return "", fmt.Errorf("writing store: %w", err)
		}
	}

	if !withGit {
		return "", nil
	}
	if err := gitops.Init(dir); err != nil {
		return "", err
	}
	author := gitops.Author{Name: cfg.Git.AuthorName, Email: cfg.Git.AuthorEmail}
	if _, err := gitops.Commit(dir, config.FileName, "init: passbook config", author); err != nil {
		return "", fmt.Errorf("initial commit: %w", err)
	}
	hash, err := gitops.Commit(dir, cfg.Store.Path, "init: empty store", author)
	if err != nil {
		return "", fmt.Errorf("initial commit: %w", err)
	}
	return hash, nil
}
