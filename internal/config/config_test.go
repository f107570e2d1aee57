package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "relay.cue"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestDefault_IsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
	assert.Equal(t, 10*time.Second, Default().Timeout())
	assert.Equal(t, slog.LevelInfo, Default().SlogLevel())
}

func TestParseCUE_EmptyFileMatchesDefault(t *testing.T) {
	cfg, err := ParseCUE("relay.cue", []byte(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg, "schema defaults and Default() agree")
}

func TestParseCUE_Overrides(t *testing.T) {
	src := `
api: streams_url: "http://127.0.0.1:4000"
api: timeout_ms: 250
store: max_steps: 50
log: level: "debug"
`
	cfg, err := ParseCUE("relay.cue", []byte(src))
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:4000", cfg.API.StreamsURL)
	assert.Equal(t, "https://jsonplaceholder.typicode.com", cfg.API.BlogURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout())
	assert.Equal(t, 50, cfg.Store.MaxSteps)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, "relay.db", cfg.Journal.Path)
}

func TestParseCUE_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"negative timeout", `api: timeout_ms: -1`},
		{"bad scheme", `api: blog_url: "ftp://example.com"`},
		{"unknown level", `log: level: "trace"`},
		{"unknown field", `cache: size: 10`},
		{"float steps", `store: max_steps: 1.5`},
		{"empty journal path", `journal: path: ""`},
		{"syntax error", `api: {`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCUE("relay.cue", []byte(tt.src))
			assert.Error(t, err)
		})
	}
}

func TestParseTOML_Overrides(t *testing.T) {
	src := `
[api]
blog_url = "http://localhost:9000"

[journal]
path = "/tmp/relay-journal.db"
`
	cfg, err := ParseTOML("relay.toml", []byte(src))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000", cfg.API.BlogURL)
	assert.Equal(t, "http://localhost:3001", cfg.API.StreamsURL)
	assert.Equal(t, "/tmp/relay-journal.db", cfg.Journal.Path)
	assert.Equal(t, 1000, cfg.Store.MaxSteps)
}

func TestParseTOML_UnknownKey(t *testing.T) {
	_, err := ParseTOML("relay.toml", []byte("[api]\nbase = \"x\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.base")
}

func TestParseTOML_CollectsAllErrors(t *testing.T) {
	src := `
[api]
timeout_ms = 0
streams_url = "not a url"

[store]
max_steps = -5
`
	_, err := ParseTOML("relay.toml", []byte(src))
	require.Error(t, err)
	for _, field := range []string{"api.timeout_ms", "api.streams_url", "store.max_steps"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.API.TimeoutMS = 0
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
}

func TestLoad_ByExtension(t *testing.T) {
	dir := t.TempDir()

	cuePath := writeFile(t, dir, "a.cue", `store: max_steps: 7`)
	cfg, err := Load(cuePath)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Store.MaxSteps)

	tomlPath := writeFile(t, dir, "b.toml", "[store]\nmax_steps = 8\n")
	cfg, err = Load(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Store.MaxSteps)

	yamlPath := writeFile(t, dir, "c.yaml", "store: {}")
	_, err = Load(yamlPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported extension")
}

func TestFind_PrefersCUE(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Find(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	writeFile(t, dir, TOMLFile, "[store]\nmax_steps = 2\n")
	cfg, err = Find(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Store.MaxSteps)

	writeFile(t, dir, CUEFile, `store: max_steps: 3`)
	cfg, err = Find(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Store.MaxSteps)
}
