package remote

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		in      string
		want    Location
		wantErr bool
	}{
		{in: "cinder@node-1:/etc/cinder/cinder.conf", want: Location{User: "cinder", Host: "node-1", Path: "/etc/cinder/cinder.conf"}},
		{in: "node-1:/etc/cinder/cinder.conf", want: Location{Host: "node-1", Path: "/etc/cinder/cinder.conf"}},
		{in: "/tmp/file", want: Location{Path: "/tmp/file"}},
		{in: "./dir/a:b", want: Location{Path: "./dir/a:b"}},
		{in: "", wantErr: true},
		{in: "node-1:", wantErr: true},
		{in: "cinder@:/etc/x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLocation(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestCommandTransport_Command(t *testing.T) {
	tr := NewCommandTransport("", "", 0)

	argv, err := tr.command(Location{User: "cinder", Host: "n1", Path: "/etc/c.conf"}, Local("/tmp/a b"))
	require.NoError(t, err)
	assert.Equal(t, []string{"scp", "-B", "cinder@n1:/etc/c.conf", "/tmp/a b"}, argv)

	argv, err = tr.command(Local("/tmp/new"), Location{Host: "n1", Path: "/etc/c.conf"})
	require.NoError(t, err)
	assert.Equal(t, []string{"scp", "-B", "/tmp/new", "n1:/etc/c.conf"}, argv, "empty user drops the user@ prefix")

	_, err = tr.command(Local("/a"), Local("/b"))
	assert.True(t, errors.Is(err, errdefs.ErrInvalidArgument))

	_, err = tr.command(Location{Host: "a", Path: "/a"}, Location{Host: "b", Path: "/b"})
	assert.True(t, errors.Is(err, errdefs.ErrInvalidArgument))
}

func TestCommandTransport_Copy(t *testing.T) {
	dir := t.TempDir()
	remoteFile := filepath.Join(dir, "remote.conf")
	localFile := filepath.Join(dir, "local.conf")
	require.NoError(t, os.WriteFile(remoteFile, []byte("[DEFAULT]\n"), 0600))

	// cp stands in for scp; the host is ignored
	tr := NewCommandTransport("cp %file% %temp%", "cp %temp% %file%", time.Minute)

	require.NoError(t, tr.Copy(context.Background(), Location{Host: "localhost", Path: remoteFile}, Local(localFile)))
	data, err := os.ReadFile(localFile)
	require.NoError(t, err)
	assert.Equal(t, "[DEFAULT]\n", string(data))

	require.NoError(t, os.WriteFile(localFile, []byte("[alpha]\n"), 0600))
	require.NoError(t, tr.Copy(context.Background(), Local(localFile), Location{Host: "localhost", Path: remoteFile}))
	data, err = os.ReadFile(remoteFile)
	require.NoError(t, err)
	assert.Equal(t, "[alpha]\n", string(data))

	err = tr.Copy(context.Background(), Location{Host: "localhost", Path: filepath.Join(dir, "missing")}, Local(localFile))
	require.Error(t, err)
	assert.False(t, errdefs.IsUnavailable(err))
}

func TestCommandTransport_Timeout(t *testing.T) {
	tr := NewCommandTransport("sleep 5", "sleep 5", 50*time.Millisecond)

	start := time.Now()
	err := tr.Copy(context.Background(), Location{Host: "h", Path: "/x"}, Local("/tmp/x"))
	require.Error(t, err)
	assert.True(t, errdefs.IsUnavailable(err), "timeouts are retryable")
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestNewSFTPTransport_RequiresHostKeyPolicy(t *testing.T) {
	_, err := NewSFTPTransport(SFTPConfig{PrivateKey: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
}
