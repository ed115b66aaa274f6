package repotools

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type staticResolver struct{ path string }

func (s staticResolver) RepoPath(ctx context.Context, projectID string) (string, error) {
	if projectID == "" {
		return "", os.ErrInvalid
	}
	return s.path, nil
}

func newGitRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = root
		require.NoError(t, cmd.Run())
	}
	run("init", "-q")
	run("config", "user.email", "a@b.c")
	run("config", "user.name", "tester")
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("hello"), 0o644))
	run("add", ".")
	run("commit", "-q", "-m", "initial")
	return root
}

func TestListFiles_ReturnsRelativePaths(t *testing.T) {
	root := newGitRepo(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "x"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "x", "junk.js"), []byte("x"), 0o644))

	rt := New(staticResolver{root})
	out, err := rt.ListFiles(context.Background(), json.RawMessage(`{"project_id":"p1"}`))
	require.NoError(t, err)

	var res listFilesResult
	require.NoError(t, json.Unmarshal(out, &res))
	require.Contains(t, res.Files, "README.md")
	for _, f := range res.Files {
		require.NotContains(t, f, "node_modules")
	}
	require.False(t, res.Truncated)
}

func TestListFiles_TruncatesAtMaxFiles(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "f"+string(rune('a'+i))+".txt"), []byte("x"), 0o644))
	}
	rt := New(staticResolver{root})
	out, err := rt.ListFiles(context.Background(), json.RawMessage(`{"project_id":"p1","max_files":3}`))
	require.NoError(t, err)

	var res listFilesResult
	require.NoError(t, json.Unmarshal(out, &res))
	require.Len(t, res.Files, 3)
	require.True(t, res.Truncated)
}

func TestReadFile_TruncationBoundary(t *testing.T) {
	root := t.TempDir()
	content := "0123456789"
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.txt"), []byte(content), 0o644))
	rt := New(staticResolver{root})

	out, err := rt.ReadFile(context.Background(), json.RawMessage(`{"project_id":"p1","path":"f.txt","max_bytes":10}`))
	require.NoError(t, err)
	var res readFileResult
	require.NoError(t, json.Unmarshal(out, &res))
	require.False(t, res.Truncated)
	require.Equal(t, content, res.Content)

	out, err = rt.ReadFile(context.Background(), json.RawMessage(`{"project_id":"p1","path":"f.txt","max_bytes":9}`))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(out, &res))
	require.True(t, res.Truncated)
	require.Equal(t, 10, res.TotalSize)
}

func TestReadFile_BinaryDetection(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "bin.dat"), []byte{0x00, 0x01, 0x02}, 0o644))
	rt := New(staticResolver{root})

	out, err := rt.ReadFile(context.Background(), json.RawMessage(`{"project_id":"p1","path":"bin.dat"}`))
	require.NoError(t, err)
	var res readFileResult
	require.NoError(t, json.Unmarshal(out, &res))
	require.True(t, res.Binary)
	require.Empty(t, res.Content)
	require.Equal(t, 3, res.TotalSize)
}

func TestReadFile_PathEscapeViaSymlink(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("nope"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "escape")))

	rt := New(staticResolver{root})
	_, err := rt.ReadFile(context.Background(), json.RawMessage(`{"project_id":"p1","path":"escape/secret.txt"}`))
	require.Error(t, err)
}

func TestGitStatusAndLog(t *testing.T) {
	root := newGitRepo(t)
	rt := New(staticResolver{root})

	out, err := rt.GitStatus(context.Background(), json.RawMessage(`{"project_id":"p1"}`))
	require.NoError(t, err)
	var statusRes gitStatusResult
	require.NoError(t, json.Unmarshal(out, &statusRes))

	out, err = rt.GitLogShort(context.Background(), json.RawMessage(`{"project_id":"p1","max_commits":5}`))
	require.NoError(t, err)
	var logRes gitLogResult
	require.NoError(t, json.Unmarshal(out, &logRes))
	require.Len(t, logRes.Log, 1)
}

func TestRunCommand_DetectsNpmFromLockfile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "package-lock.json"), []byte("{}"), 0o644))
	runner, err := detectRunner(root)
	require.NoError(t, err)
	require.Equal(t, "npm", runner)
}

func TestRunCommand_UnsupportedRunnerKindIsDisallowed(t *testing.T) {
	_, err := buildArgv("npm", KindBuild)
	require.NoError(t, err)
	_, err = buildArgv("made-up", KindTests)
	require.Error(t, err)
}

func TestRunCommand_NoLockfileIsDisallowed(t *testing.T) {
	root := t.TempDir()
	_, err := detectRunner(root)
	require.Error(t, err)
}
