package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingFile_Write(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ramcp.debug.log")

	rf, err := NewRotatingFile(path, WithMaxSize(100), WithMaxBackups(2))
	require.NoError(t, err)
	defer rf.Close()

	data := []byte("hello world\n")
	n, err := rf.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, content)
}

func TestRotatingFile_Rotate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ramcp.debug.log")

	rf, err := NewRotatingFile(path, WithMaxSize(50), WithMaxBackups(2))
	require.NoError(t, err)
	defer rf.Close()

	old := bytes.Repeat([]byte("a"), 30)
	_, err = rf.Write(old)
	require.NoError(t, err)

	// Exceeds maxSize, triggers rotation.
	fresh := bytes.Repeat([]byte("b"), 30)
	_, err = rf.Write(fresh)
	require.NoError(t, err)

	backup, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, old, backup)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fresh, content)
}

func TestRotatingFile_DropsOldestBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ramcp.debug.log")

	rf, err := NewRotatingFile(path, WithMaxSize(10), WithMaxBackups(2))
	require.NoError(t, err)
	defer rf.Close()

	for i := 0; i < 5; i++ {
		_, err = rf.Write(bytes.Repeat([]byte{'0' + byte(i)}, 8))
		require.NoError(t, err)
	}

	_, err = os.Stat(path + ".1")
	assert.NoError(t, err)
	_, err = os.Stat(path + ".2")
	assert.NoError(t, err)
	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err), "only maxBackups backups should be kept")
}
