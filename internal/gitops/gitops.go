package gitops

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/passbook-dev/passbook/internal/bank"
	"github.com/passbook-dev/passbook/internal/model"
)

// Author identifies who commits store changes.
type Author struct {
	Name  string
	Email string
}

func (a Author) env() []string {
	return append(os.Environ(),
		"GIT_AUTHOR_NAME="+a.Name,
		"GIT_AUTHOR_EMAIL="+a.Email,
		"GIT_COMMITTER_NAME="+a.Name,
		"GIT_COMMITTER_EMAIL="+a.Email,
	)
}

// Init initializes a new git repository at dir.
func Init(dir string) error {
	cmd := exec.Command("git", "init", "--quiet")
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git init: %s: %w", out, err)
	}
	return nil
}

// IsRepo reports whether dir is inside a git repository.
func IsRepo(dir string) bool {
	cmd := exec.Command("git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = dir
	out, err := cmd.Output()
	return err == nil && strings.TrimSpace(string(out)) == "true"
}

// HasChanges reports whether path differs from what HEAD records,
// including when it is untracked.
func HasChanges(dir, path string) (bool, error) {
	cmd := exec.Command("git", "status", "--porcelain", "--", path)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("git status: %w", err)
	}
	return len(strings.TrimSpace(string(out))) > 0, nil
}

// Commit stages path and commits it alone. Returns the short commit hash.
func Commit(dir, path, message string, author Author) (string, error) {
	add := exec.Command("git", "add", "--", path)
	add.Dir = dir
	if out, err := add.CombinedOutput(); err != nil {
		return "", fmt.Errorf("git add: %s: %w", out, err)
	}

	commit := exec.Command("git", "commit", "--quiet", "-m", message, "--", path)
	commit.Dir = dir
	commit.Env = author.env()
	if out, err := commit.CombinedOutput(); err != nil {
		return "", fmt.Errorf("git commit: %s: %w", out, err)
	}

	rev := exec.Command("git", "rev-parse", "--short", "HEAD")
	rev.Dir = dir
	out, err := rev.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Committer wraps a Flusher and commits the store file after every
// successful flush that changed it.
type Committer struct {
	next   bank.Flusher
	dir    string
	path   string
	author Author
	last   string
}

// NewCommitter returns a Committer for the store file at path. The file's
// directory must be inside a git work tree.
func NewCommitter(next bank.Flusher, path string, author Author) *Committer {
	return &Committer{
		next:   next,
		dir:    filepath.Dir(path),
		path:   filepath.Base(path),
		author: author,
	}
}

// Flush implements bank.Flusher.
func (c *Committer) Flush(state model.State) error {
	if err := c.next.Flush(state); err != nil {
		return err
	}
	changed, err := HasChanges(c.dir, c.path)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	hash, err := Commit(c.dir, c.path, commitMessage(state), c.author)
	if err != nil {
		return err
	}
	c.last = hash
	return nil
}

// LastCommit returns the hash of the most recent commit made, if any.
func (c *Committer) LastCommit() string { return c.last }

func commitMessage(state model.State) string {
	movements := 0
	for _, a := range state.Accounts {
		movements += len(a.Movements)
	}
	return fmt.Sprintf("passbook: %d clients, %d accounts, %d movements",
		len(state.Clients), len(state.Accounts), movements)
}
