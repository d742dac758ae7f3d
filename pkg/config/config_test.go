package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfig_Defaults(t *testing.T) {
	cfg := InitConfig()

	assert.Equal(t, 300000, cfg.Interval)
	assert.Equal(t, 30, cfg.TopN)
	assert.True(t, cfg.SMP)
}

func TestInitConfig_EnvOverrides(t *testing.T) {
	t.Setenv(EnvInterval, "60000")
	t.Setenv(EnvTopN, "5")
	t.Setenv(EnvSMP, "false")

	cfg := InitConfig()

	assert.Equal(t, 60000, cfg.Interval)
	assert.Equal(t, 5, cfg.TopN)
	assert.False(t, cfg.SMP)
}

func TestInitConfig_IgnoresInvalidValues(t *testing.T) {
	t.Setenv(EnvInterval, "not-a-number")
	t.Setenv(EnvTopN, "-3")

	cfg := InitConfig()

	assert.Equal(t, 300000, cfg.Interval)
	assert.Equal(t, 30, cfg.TopN)
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv(EnvHome, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.Home)
	assert.Equal(t, []string{"127.0.0.1:2379"}, cfg.EtcdEndpoints)
	assert.Equal(t, 300000, cfg.Collect.Interval)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doghair.yaml")
	content := `home: /var/lib/doghair
etcd_endpoints:
  - etcd-1:2379
  - etcd-2:2379
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/doghair", cfg.Home)
	assert.Equal(t, []string{"etcd-1:2379", "etcd-2:2379"}, cfg.EtcdEndpoints)
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doghair.yaml")
	require.NoError(t, os.WriteFile(path, []byte("home: /from/file\n"), 0644))

	t.Setenv(EnvHome, "/from/env")
	t.Setenv(EnvEtcdEndpoints, "a:2379, b:2379")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/from/env", cfg.Home)
	assert.Equal(t, []string{"a:2379", "b:2379"}, cfg.EtcdEndpoints)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
