package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quill/internal/config"
)

func newHandler(t *testing.T) (*config.Handler, string) {
	t.Helper()
	dir := t.TempDir()
	return config.NewHandler(dir, zap.NewNop()), dir
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	h, _ := newHandler(t)

	cfg, err := h.Load()
	require.NoError(t, err)
	assert.Equal(t, "text", cfg["output_format"])
	assert.Equal(t, true, cfg["auto_commit"])
	assert.Equal(t, true, cfg["save_history"])
}

func TestSetAndGet(t *testing.T) {
	h, _ := newHandler(t)

	require.NoError(t, h.Set("output_format", "json"))
	v, err := h.Get("output_format")
	require.NoError(t, err)
	assert.Equal(t, "json", v)
}

func TestSetCoercesBooleanStrings(t *testing.T) {
	h, _ := newHandler(t)

	require.NoError(t, h.Set("auto_commit", "false"))
	b, err := h.Bool("auto_commit")
	require.NoError(t, err)
	assert.False(t, b)
}

func TestGetUnknownKey(t *testing.T) {
	h, _ := newHandler(t)

	_, err := h.Get("no_such_key")
	assert.Error(t, err)
}

func TestUnknownKeysSurviveEdits(t *testing.T) {
	h, dir := newHandler(t)
	path := filepath.Join(dir, config.FileName)
	require.NoError(t, os.WriteFile(path, []byte(`{"some_tool":"keeps this"}`), 0o644))

	require.NoError(t, h.Set("output_format", "json"))
	require.NoError(t, h.Reset())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "keeps this", raw["some_tool"])
	assert.NotContains(t, raw, "output_format")
}

func TestResetRestoresDefaults(t *testing.T) {
	h, _ := newHandler(t)

	require.NoError(t, h.Set("save_history", "false"))
	require.NoError(t, h.Reset())

	b, err := h.Bool("save_history")
	require.NoError(t, err)
	assert.True(t, b)
}

func TestKeysAreSorted(t *testing.T) {
	keys := config.Keys()
	assert.Equal(t, []string{"auto_commit", "output_format", "save_history"}, keys)
}

func TestCorruptFileIsAnError(t *testing.T) {
	h, dir := newHandler(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte("{oops"), 0o644))

	_, err := h.Load()
	assert.Error(t, err)
}
