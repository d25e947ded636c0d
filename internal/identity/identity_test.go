package identity

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreate_GeneratesOnce(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	first, created, err := LoadOrCreate(dir, "laptop")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "laptop", first.Name)
	_, err = uuid.Parse(first.ID)
	require.NoError(t, err)

	info, err := os.Stat(Path(dir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// Повторный запуск читает тот же id
	second, created, err := LoadOrCreate(dir, "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "laptop", second.Name)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
}

func TestLoadOrCreate_RenameKeepsID(t *testing.T) {
	dir := t.TempDir()

	dev, _, err := LoadOrCreate(dir, "old")
	require.NoError(t, err)

	renamed, created, err := LoadOrCreate(dir, "new")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, dev.ID, renamed.ID)
	assert.Equal(t, "new", renamed.Name)

	loaded, err := Load(Path(dir))
	require.NoError(t, err)
	assert.Equal(t, "new", loaded.Name)
}

func TestLoadOrCreate_CorruptFileIsNotReplaced(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "not json", content: "device-id"},
		{name: "empty id", content: `{"device_id":"  "}`},
		{name: "empty file", content: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(Path(dir), []byte(tt.content), 0o600))

			_, _, err := LoadOrCreate(dir, "")
			require.ErrorIs(t, err, ErrCorrupt)

			data, err := os.ReadFile(Path(dir))
			require.NoError(t, err)
			assert.Equal(t, tt.content, string(data))
		})
	}
}

func TestLoadOrCreate_InvalidName(t *testing.T) {
	_, _, err := LoadOrCreate(t.TempDir(), "bad\nname")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid device name")
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(Path(t.TempDir()))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_TrimsID(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(Path(dir), []byte(`{"device_id":" dev-1 \n"}`), 0o600))

	dev, err := Load(Path(dir))
	require.NoError(t, err)
	assert.Equal(t, "dev-1", dev.ID)
	assert.Equal(t, "dev-1", dev.DisplayName())
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	_, _, err := LoadOrCreate(dir, "a")
	require.NoError(t, err)
	_, _, err = LoadOrCreate(dir, "b")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".device-"), "leftover %s", e.Name())
	}
	assert.Len(t, entries, 1)
}
