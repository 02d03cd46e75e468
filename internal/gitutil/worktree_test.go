package gitutil

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		require.NoError(t, cmd.Run(), "git %v", args)
	}
	run("init", "-b", "main")
	run("config", "user.email", "test@kagan.local")
	run("config", "user.name", "kagan test")
	require.NoError(t, writeFile(filepath.Join(dir, "README.md"), "hello\n"))
	run("add", "README.md")
	run("commit", "-m", "initial commit")
	return dir
}

func TestAdapter_CreateAndRelease(t *testing.T) {
	repo := initTestRepo(t)
	adapter := New(repo)
	worktreePath := filepath.Join(t.TempDir(), "ws1")

	res, err := adapter.Create(context.Background(), worktreePath, "kagan/ws1", "main")
	require.NoError(t, err)
	assert.True(t, res.Succeeded(), res.Stderr)

	res, err = adapter.Release(context.Background(), worktreePath, true)
	require.NoError(t, err)
	assert.True(t, res.Succeeded(), res.Stderr)
}

func TestAdapter_GetFilesChangedOnBase(t *testing.T) {
	repo := initTestRepo(t)
	adapter := New(repo)
	worktreePath := filepath.Join(t.TempDir(), "ws2")

	_, err := adapter.Create(context.Background(), worktreePath, "kagan/ws2", "main")
	require.NoError(t, err)

	require.NoError(t, writeFile(filepath.Join(worktreePath, "feature.txt"), "new feature\n"))
	cmd := exec.Command("git", "add", "feature.txt")
	cmd.Dir = worktreePath
	require.NoError(t, cmd.Run())
	cmd = exec.Command("git", "commit", "-m", "add feature")
	cmd.Dir = worktreePath
	require.NoError(t, cmd.Run())

	res, err := adapter.GetFilesChangedOnBase(context.Background(), worktreePath, "main")
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "feature.txt")
}

func TestAdapter_ListKaganBranchesAndDelete(t *testing.T) {
	repo := initTestRepo(t)
	adapter := New(repo)
	worktreePath := filepath.Join(t.TempDir(), "ws3")

	_, err := adapter.Create(context.Background(), worktreePath, "kagan/ws3", "main")
	require.NoError(t, err)

	res, err := adapter.ListKaganBranches(context.Background())
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "kagan/ws3")

	_, err = adapter.Release(context.Background(), worktreePath, true)
	require.NoError(t, err)

	res, err = adapter.DeleteBranch(context.Background(), "kagan/ws3")
	require.NoError(t, err)
	assert.True(t, res.Succeeded(), res.Stderr)
}

func TestIsConflict(t *testing.T) {
	assert.True(t, IsConflict(CommandResult{Stdout: "CONFLICT (content): Merge conflict in a.go"}))
	assert.False(t, IsConflict(CommandResult{Stdout: "Already up to date."}))
}

func TestParseConflictFiles(t *testing.T) {
	out := "Auto-merging src/a.go\nCONFLICT (content): Merge conflict in src/a.go\nCONFLICT (content): Merge conflict in src/b.go\n"
	files := ParseConflictFiles(CommandResult{Stdout: out})
	assert.Equal(t, []string{"src/a.go", "src/b.go"}, files)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
