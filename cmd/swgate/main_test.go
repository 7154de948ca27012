package main

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swgate/internal/swgate"
)

func writeConfig(t *testing.T) (configPath, storePath string) {
	t.Helper()
	dir := t.TempDir()
	storePath = filepath.Join(dir, "leveldb")
	configPath = filepath.Join(dir, "swgate.yaml")
	yaml := "server:\n  origin: http://origin.test\ncache:\n  generation: v3\nstorage:\n  kind: disk\n  path: " + storePath + "\n"
	require.NoError(t, os.WriteFile(configPath, []byte(yaml), 0o600))
	return configPath, storePath
}

func seedGenerations(t *testing.T, path string, names ...string) {
	t.Helper()
	ctx := context.Background()
	st, err := swgate.NewDiskStorage(path, 0)
	require.NoError(t, err)
	defer st.Close()
	for _, name := range names {
		c, err := st.Open(ctx, name)
		require.NoError(t, err)
		req := &swgate.Request{Method: http.MethodGet, URL: "/offline"}
		require.NoError(t, c.Put(ctx, req, &swgate.Response{Status: http.StatusOK, Header: http.Header{}, Body: []byte(name)}))
	}
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.ExecuteContext(context.Background()), out.String())
	return out.String()
}

func TestCachesCommand(t *testing.T) {
	cfgPath, store := writeConfig(t)
	seedGenerations(t, store, "v2", "v3")

	out := run(t, "--config", cfgPath, "caches")
	assert.Equal(t, "  v2\t1 entries\n* v3\t1 entries\n", out)
}

func TestPurgeCommand(t *testing.T) {
	cfgPath, store := writeConfig(t)
	seedGenerations(t, store, "v1", "v2", "v3")

	out := run(t, "--config", cfgPath, "purge")
	assert.Equal(t, "deleted v1\ndeleted v2\n", out)

	out = run(t, "--config", cfgPath, "purge", "--keep", "v9")
	assert.Equal(t, "deleted v3\n", out)

	out = run(t, "--config", cfgPath, "caches")
	assert.Empty(t, out)
}

func TestMissingConfig(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml"), "caches"})
	assert.Error(t, root.Execute())
}

func TestGetenvDefault(t *testing.T) {
	t.Setenv("SWGATE_TEST_VAR", "")
	assert.Equal(t, "fallback", getenvDefault("SWGATE_TEST_VAR", "fallback"))
	t.Setenv("SWGATE_TEST_VAR", "set")
	assert.Equal(t, "set", getenvDefault("SWGATE_TEST_VAR", "fallback"))
}
