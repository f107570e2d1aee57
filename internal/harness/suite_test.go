package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverScenarios(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	for _, name := range []string{"b.yaml", "a.yml", "notes.txt", filepath.Join("nested", "c.YAML")} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("name: x\n"), 0o644))
	}

	files, err := DiscoverScenarios(dir, filepath.Join(dir, "b.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yml"),
		filepath.Join(dir, "b.yaml"),
		filepath.Join(dir, "nested", "c.YAML"),
	}, files)
}

func TestDiscoverScenarios_Missing(t *testing.T) {
	_, err := DiscoverScenarios(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)

	var notFound *ScenarioNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Contains(t, notFound.Error(), "does not exist")
}

func TestRunSuite(t *testing.T) {
	files, err := DiscoverScenarios(filepath.Join("testdata", "scenarios"), filepath.Join("testdata", "invalid"))
	require.NoError(t, err)

	result, err := RunSuite(context.Background(), files)
	require.NoError(t, err)

	assert.Equal(t, len(files), result.Total)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, result.Total-2, result.Passed)
	assert.False(t, result.OK())
	require.Len(t, result.Failures, 2)
	for _, f := range result.Failures {
		require.NotEmpty(t, f.Errors)
		assert.Contains(t, f.Errors[0], "failed to load scenario")
	}
	assert.Len(t, result.Results, result.Total)
}

func TestRunSuite_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := RunSuite(ctx, []string{filepath.Join("testdata", "scenarios", "songs_select.yaml")})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, result.Total)
}
