package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic_ReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	require.NoError(t, WriteFileAtomic(path, []byte("first"), 0o644))
	require.NoError(t, WriteFileAtomic(path, []byte("second"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileLock_LockUnlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	l, err := NewFileLock(path)
	require.NoError(t, err)
	assert.Equal(t, path+".lock", l.Path())

	require.NoError(t, l.Lock())
	require.NoError(t, l.Unlock())
	require.NoError(t, l.Lock())
	require.NoError(t, l.Unlock())
}

func TestSetLogLevel(t *testing.T) {
	defer func() { _ = SetLogLevel("info") }()

	require.NoError(t, SetLogLevel("DEBUG"))
	assert.Equal(t, "debug", Log.GetLevel().String())
	require.NoError(t, SetLogLevel("warn"))
	assert.Equal(t, "warning", Log.GetLevel().String())
	assert.Error(t, SetLogLevel("loud"))
}
