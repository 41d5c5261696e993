package gitops

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passbook-dev/passbook/internal/codec"
	"github.com/passbook-dev/passbook/internal/model"
)

var testAuthor = Author{Name: "Test Author", Email: "test@example.com"}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func gitLog(t *testing.T, dir, format string) string {
	t.Helper()
	log := exec.Command("git", "log", "--format="+format)
	log.Dir = dir
	out, err := log.Output()
	require.NoError(t, err)
	return strings.TrimSpace(string(out))
}

func TestInit(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	require.NoError(t, Init(dir))

	_, err := os.Stat(filepath.Join(dir, ".git"))
	require.NoError(t, err, ".git directory should exist")
}

func TestIsRepo(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	assert.False(t, IsRepo(dir), "empty dir should not be a repo")

	require.NoError(t, Init(dir))
	assert.True(t, IsRepo(dir), "initialized dir should be a repo")
}

func TestCommit(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	require.NoError(t, Init(dir))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "store.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644))

	changed, err := HasChanges(dir, "store.json")
	require.NoError(t, err)
	assert.True(t, changed)

	hash, err := Commit(dir, "store.json", "first", testAuthor)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	assert.Equal(t, "first", gitLog(t, dir, "%s"))
	assert.Equal(t, "Test Author <test@example.com>", gitLog(t, dir, "%an <%ae>"))

	changed, err = HasChanges(dir, "store.json")
	require.NoError(t, err)
	assert.False(t, changed)

	// Only the store file is committed.
	changed, err = HasChanges(dir, "unrelated.txt")
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestCommitter(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	require.NoError(t, Init(dir))

	path := filepath.Join(dir, "store.json")
	c := NewCommitter(codec.NewFile(path), path, testAuthor)

	state := model.State{Clients: []model.Client{{Identifier: "alice", DisplayName: "alice"}}}
	require.NoError(t, c.Flush(state))
	first := c.LastCommit()
	assert.NotEmpty(t, first)
	assert.Equal(t, "passbook: 1 clients, 0 accounts, 0 movements", gitLog(t, dir, "%s"))

	state.Clients = append(state.Clients, model.Client{Identifier: "bob", DisplayName: "bob"})
	require.NoError(t, c.Flush(state))
	assert.NotEqual(t, first, c.LastCommit())

	lines := strings.Split(gitLog(t, dir, "%h"), "\n")
	assert.Len(t, lines, 2)
}

type errFlusher struct{}

func (errFlusher) Flush(model.State) error { return errors.New("disk full") }

func TestCommitter_PropagatesFlushError(t *testing.T) {
	c := NewCommitter(errFlusher{}, filepath.Join(t.TempDir(), "store.json"), testAuthor)
	assert.ErrorContains(t, c.Flush(model.State{}), "disk full")
	assert.Empty(t, c.LastCommit())
}
