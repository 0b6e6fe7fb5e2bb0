package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"quarry/pkg/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type workspace struct {
	root   string
	docs   string
	config string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	root := t.TempDir()
	docs := filepath.Join(root, "docs")
	testutils.CreateTree(t, docs, map[string]string{
		"archive/":   "",
		"report.pdf": "report",
		"notes.md":   "notes",
	})

	cfg := fmt.Sprintf(`
catalog:
  directories:
    - path: %s
      depth: 0
  bookmarks:
    - name: Go Documentation
      url: https://go.dev/doc
cache:
  dir: %s
learning:
  backend: json
  path: %s
logging:
  level: error
`, docs, filepath.Join(root, "cache"), filepath.Join(root, "learning.json"))
	path := filepath.Join(root, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return workspace{root: root, docs: docs, config: path}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return testutils.StripANSI(out.String()), err
}

func TestSearchCommand(t *testing.T) {
	ws := newWorkspace(t)
	out, err := execute(t, "search", "report", "-c", ws.config)
	require.NoError(t, err)
	assert.Contains(t, out, "report.pdf")

	out, err = execute(t, "search", "go doc", "-c", ws.config)
	require.NoError(t, err)
	assert.Contains(t, out, "Go Documentation")
}

func TestActionsCommand(t *testing.T) {
	ws := newWorkspace(t)
	out, err := execute(t, "actions", "archive", "-c", ws.config)
	require.NoError(t, err)
	assert.Contains(t, out, "Item: archive")
	assert.Contains(t, out, "Open Folder")
	assert.Contains(t, out, "Move To...")
}

func TestRunMovesIntoFolder(t *testing.T) {
	ws := newWorkspace(t)
	out, err := execute(t, "run", "report", "move to", "archive", "-c", ws.config)
	require.NoError(t, err)
	assert.Contains(t, out, "Done")

	assert.FileExists(t, filepath.Join(ws.docs, "archive", "report.pdf"))
	assert.NoFileExists(t, filepath.Join(ws.docs, "report.pdf"))

	out, err = execute(t, "stats", "-c", ws.config)
	require.NoError(t, err)
	assert.Contains(t, out, "file:"+filepath.Join(ws.docs, "report.pdf"), "the activation was learned")
}

func TestRunDryRun(t *testing.T) {
	ws := newWorkspace(t)
	_, err := execute(t, "run", "report", "move to", "archive", "--dry-run", "-c", ws.config)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(ws.docs, "report.pdf"))
}

func TestRunNeedsObject(t *testing.T) {
	ws := newWorkspace(t)
	_, err := execute(t, "run", "report", "move to", "-c", ws.config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "an object is required")
}

func TestRunOpensFolder(t *testing.T) {
	ws := newWorkspace(t)
	testutils.WriteFile(t, filepath.Join(ws.docs, "archive", "old.txt"), "x")

	out, err := execute(t, "run", "archive", "open folder", "-c", ws.config)
	require.NoError(t, err)
	assert.Contains(t, out, "old.txt")
}

func TestRescanCommand(t *testing.T) {
	ws := newWorkspace(t)
	out, err := execute(t, "rescan", "docs", "-c", ws.config)
	require.NoError(t, err)
	assert.Contains(t, out, "1 sources")

	_, err = execute(t, "rescan", "missing", "-c", ws.config)
	assert.Error(t, err)
}

func TestConfigCommands(t *testing.T) {
	ws := newWorkspace(t)

	out, err := execute(t, "config", "show", "-c", ws.config)
	require.NoError(t, err)
	assert.Contains(t, out, ws.docs)

	fresh := filepath.Join(ws.root, "fresh", "config.yaml")
	_, err = execute(t, "config", "init", "--theme", "dark", "-c", fresh)
	require.NoError(t, err)
	assert.FileExists(t, fresh)

	_, err = execute(t, "config", "init", "-c", fresh)
	assert.Error(t, err, "init refuses to overwrite")

	out, err = execute(t, "config", "path", "-c", fresh)
	require.NoError(t, err)
	assert.Contains(t, out, fresh)
}
