package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/cuemby/sdscompose/pkg/remote"
	"github.com/cuemby/sdscompose/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sdscompose.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "enabled_backends", cfg.GroupingKey)
	assert.Equal(t, "scp -B %user%@%host%:%file% %temp%", cfg.CopyFromRemoteCmd)
	assert.Equal(t, "scp -B %temp% %user%@%host%:%file%", cfg.CopyToRemoteCmd)

	volume := cfg.Services[types.ServiceVolume]
	assert.Equal(t, "/etc/cinder/cinder.conf", volume.ConfigFile)
	assert.Equal(t, "cinder", volume.OSUser)
	assert.Equal(t, "cinder-volume", volume.Binary)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
data_dir: /tmp/sds
grouping_key: backends
copy_timeout: 30s
parallel_hosts: 4
verify_output: true
retry:
  max_retries: 2
  initial_interval: 100ms
volume_service:
  hosts: [h1, h2]
drivers:
  ceph:
    rbd_user: cinder
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/sds", cfg.DataDir)
	assert.Equal(t, 30*time.Second, cfg.CopyTimeout)
	assert.Equal(t, []string{"h1", "h2"}, cfg.VolumeService.Hosts)
	assert.Equal(t, "cinder", cfg.Drivers["ceph"]["rbd_user"])

	// Unset fields keep their defaults
	assert.Equal(t, TransportCommand, cfg.Transport)
	assert.Contains(t, cfg.Services, types.ServiceVolume)

	assert.Equal(t, remote.Options{
		GroupingKey:   "backends",
		Verify:        true,
		Parallel:      4,
		MaxRetries:    2,
		RetryInterval: 100 * time.Millisecond,
	}, cfg.SyncerOptions())

	transport, err := cfg.NewTransport()
	require.NoError(t, err)
	assert.IsType(t, &remote.CommandTransport{}, transport)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bad transport", body: "transport: rsync\n"},
		{name: "negative parallelism", body: "parallel_hosts: -1\n"},
		{name: "bad log level", body: "log:\n  level: loud\n"},
		{name: "unknown service kind", body: "services:\n  compute:\n    binary: nova\n    config_file: /etc/nova/nova.conf\n"},
		{name: "incomplete service", body: "services:\n  volume:\n    config_file: /etc/cinder/cinder.conf\n"},
		{name: "sftp without key", body: "transport: sftp\n"},
		{name: "bad endpoint", body: "volume_service:\n  endpoint: not a url\n"},
		{name: "not yaml", body: "data_dir: [unterminated\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestValidate_ErrorClass(t *testing.T) {
	cfg := Default()
	cfg.GroupingKey = ""
	assert.ErrorIs(t, cfg.Validate(), errdefs.ErrInvalidArgument)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
