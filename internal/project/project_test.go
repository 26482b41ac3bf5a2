package project_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quill/internal/project"
)

func TestInitScaffoldsLayout(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "proj")
	require.NoError(t, project.NewInitializer(zap.NewNop()).Init(dir))

	for _, sub := range []string{"data/raw", "data/processed", "src"} {
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(sub)))
		require.NoError(t, err, sub)
		assert.True(t, info.IsDir(), sub)
	}

	data, err := os.ReadFile(filepath.Join(dir, "qna.json"))
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))

	data, err = os.ReadFile(filepath.Join(dir, ".quill"))
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(data))
}

func TestInitPreservesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	ini := project.NewInitializer(zap.NewNop())
	require.NoError(t, ini.Init(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "qna.json"), []byte(`[{"query":"q"}]`), 0o644))

	// Re-running init must not clobber a live history file.
	require.NoError(t, ini.Init(dir))
	data, err := os.ReadFile(filepath.Join(dir, "qna.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"query"`)
}

func TestHistoryPath(t *testing.T) {
	assert.Equal(t, filepath.Join("p", "qna.json"), project.HistoryPath("p"))
}
