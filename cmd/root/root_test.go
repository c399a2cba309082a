package root

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := Execute(context.Background(), strings.NewReader(""), &out, &out, "version")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "ramcp version")
}

func TestUnknownCommand_PrintsUsage(t *testing.T) {
	t.Parallel()

	var out, errOut bytes.Buffer
	err := Execute(context.Background(), strings.NewReader(""), &out, &errOut, "bogus")
	require.Error(t, err)
	assert.Contains(t, errOut.String(), "unknown command")
	assert.Contains(t, errOut.String(), "Usage:")
}

func TestServe_MissingWorkspaceRoot(t *testing.T) {
	t.Parallel()

	var out, errOut bytes.Buffer
	err := Execute(context.Background(), strings.NewReader(""), &out, &errOut,
		"serve", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestServe_WorkspaceRootIsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "Cargo.toml")
	require.NoError(t, os.WriteFile(path, []byte("[package]\n"), 0o600))

	var out, errOut bytes.Buffer
	err := Execute(context.Background(), strings.NewReader(""), &out, &errOut, "serve", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestResolveWorkspaceRoot_DefaultsToCwd(t *testing.T) {
	root, err := resolveWorkspaceRoot(nil)
	require.NoError(t, err)

	cwd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, cwd, root)
}

func TestRuntimeError_Unwrap(t *testing.T) {
	t.Parallel()

	inner := errors.New("analyzer exploded")
	err := RuntimeError{Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "analyzer exploded", err.Error())
}
