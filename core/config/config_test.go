package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "default", cfg.Session)
	assert.Equal(t, 8, cfg.Limits.ScatterWorkers)
	assert.Equal(t, 65536, cfg.Limits.StreamBytes)
	require.Len(t, cfg.Mounts, 1)
	assert.Equal(t, "/tmp", cfg.Mounts[0].Path)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Configuration)
		field  string
	}{
		{
			name:   "missing session",
			mutate: func(c *Configuration) { c.Session = "" },
			field:  "session",
		},
		{
			name:   "zero workers",
			mutate: func(c *Configuration) { c.Limits.ScatterWorkers = 0 },
			field:  "scatter_workers",
		},
		{
			name:   "tiny stream",
			mutate: func(c *Configuration) { c.Limits.StreamBytes = 16 },
			field:  "stream_bytes",
		},
		{
			name: "relative mount path",
			mutate: func(c *Configuration) {
				c.Mounts = append(c.Mounts, MountConfig{Path: "data", Type: "memory"})
			},
			field: "path",
		},
		{
			name: "local mount without spec",
			mutate: func(c *Configuration) {
				c.Mounts = append(c.Mounts, MountConfig{Path: "/h", Type: "local"})
			},
			field: "spec",
		},
		{
			name: "duplicate mounts",
			mutate: func(c *Configuration) {
				c.Mounts = append(c.Mounts,
					MountConfig{Path: "/d", Type: "memory"},
					MountConfig{Path: "/d", Type: "memory"})
			},
			field: "mounts",
		},
		{
			name: "server without address",
			mutate: func(c *Configuration) {
				c.Servers = append(c.Servers, ServerConfig{Name: "build"})
			},
			field: "address",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigurationName)
	require.NoError(t, os.WriteFile(path, []byte("session: ci\nlimits:\n  scatter_workers: 2\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "ci", cfg.Session)
	assert.Equal(t, 2, cfg.Limits.ScatterWorkers)
	// Untouched fields keep defaults.
	assert.Equal(t, 65536, cfg.Limits.StreamBytes)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigurationName)
	require.NoError(t, os.WriteFile(path, []byte("session: x\nbogus: 1\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestInitialize(t *testing.T) {
	dir := t.TempDir()

	path, err := Initialize(dir)
	require.NoError(t, err)
	assert.FileExists(t, path)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.Session)

	_, err = Initialize(dir)
	assert.ErrorContains(t, err, "already exists")
}
