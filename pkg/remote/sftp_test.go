package remote

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// sftpHost is an in-process SSH server offering the sftp subsystem
type sftpHost struct {
	port           int
	privateKeyPath string
	knownHostsPath string
}

func newSigner(t *testing.T) (ssh.Signer, ed25519.PrivateKey) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	return signer, priv
}

func startSFTPHost(t *testing.T) *sftpHost {
	t.Helper()
	dir := t.TempDir()

	hostSigner, _ := newSigner(t)
	clientSigner, clientKey := newSigner(t)

	block, err := ssh.MarshalPrivateKey(clientKey, "")
	require.NoError(t, err)
	keyPath := filepath.Join(dir, "id_ed25519")
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(block), 0600))

	config := &ssh.ServerConfig{
		PublicKeyCallback: func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), clientSigner.PublicKey().Marshal()) {
				return nil, nil
			}
			return nil, errors.New("unknown client key")
		},
	}
	config.AddHostKey(hostSigner)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSSH(conn, config)
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	line := knownhosts.Line([]string{knownhosts.Normalize(net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))}, hostSigner.PublicKey())
	knownHostsPath := filepath.Join(dir, "known_hosts")
	require.NoError(t, os.WriteFile(knownHostsPath, []byte(line+"\n"), 0600))

	return &sftpHost{
		port:           port,
		privateKeyPath: keyPath,
		knownHostsPath: knownHostsPath,
	}
}

func serveSSH(conn net.Conn, config *ssh.ServerConfig) {
	defer conn.Close()
	_, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		return
	}
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "session only")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			return
		}
		go func() {
			for req := range requests {
				ok := req.Type == "subsystem" && len(req.Payload) > 4 && string(req.Payload[4:]) == "sftp"
				_ = req.Reply(ok, nil)
				if !ok {
					continue
				}
				server, err := sftp.NewServer(channel)
				if err != nil {
					channel.Close()
					return
				}
				_ = server.Serve()
				channel.Close()
				return
			}
		}()
	}
}

func (h *sftpHost) transport(t *testing.T, timeout time.Duration) *SFTPTransport {
	t.Helper()
	tr, err := NewSFTPTransport(SFTPConfig{
		Port:       h.port,
		PrivateKey: h.privateKeyPath,
		KnownHosts: h.knownHostsPath,
		Timeout:    timeout,
	})
	require.NoError(t, err)
	return tr
}

func TestSFTPTransport_RoundTrip(t *testing.T) {
	host := startSFTPHost(t)
	tr := host.transport(t, 10*time.Second)
	dir := t.TempDir()

	remotePath := filepath.Join(dir, "cinder.conf")
	require.NoError(t, os.WriteFile(remotePath, []byte("[DEFAULT]\nenabled_backends=a,b,c\n"), 0640))
	remote := Location{User: "cinder", Host: "127.0.0.1", Path: remotePath}

	// Fetch
	scratch := filepath.Join(dir, "scratch.conf")
	require.NoError(t, tr.Copy(context.Background(), remote, Local(scratch)))
	got, err := os.ReadFile(scratch)
	require.NoError(t, err)
	assert.Equal(t, "[DEFAULT]\nenabled_backends=a,b,c\n", string(got))

	// Push a shorter file: the remote copy is truncated, not overlaid
	require.NoError(t, os.WriteFile(scratch, []byte("[DEFAULT]\n"), 0600))
	require.NoError(t, tr.Copy(context.Background(), Local(scratch), remote))
	got, err = os.ReadFile(remotePath)
	require.NoError(t, err)
	assert.Equal(t, "[DEFAULT]\n", string(got))

	info, err := os.Stat(remotePath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), info.Mode().Perm(), "existing mode kept")
}

func TestSFTPTransport_MissingRemoteFile(t *testing.T) {
	host := startSFTPHost(t)
	tr := host.transport(t, 10*time.Second)
	dir := t.TempDir()

	err := tr.Copy(context.Background(),
		Location{Host: "127.0.0.1", Path: filepath.Join(dir, "missing.conf")},
		Local(filepath.Join(dir, "scratch.conf")))
	require.Error(t, err)
	assert.False(t, errdefs.IsUnavailable(err), "a missing file is not retryable")
}

func TestSFTPTransport_UnknownHostKey(t *testing.T) {
	host := startSFTPHost(t)

	other, _ := newSigner(t)
	line := knownhosts.Line([]string{knownhosts.Normalize(net.JoinHostPort("127.0.0.1", strconv.Itoa(host.port)))}, other.PublicKey())
	require.NoError(t, os.WriteFile(host.knownHostsPath, []byte(line+"\n"), 0600))

	tr := host.transport(t, 10*time.Second)
	err := tr.Copy(context.Background(),
		Location{Host: "127.0.0.1", Path: "/etc/hostname"},
		Local(filepath.Join(t.TempDir(), "scratch")))
	require.Error(t, err)
	assert.False(t, errdefs.IsUnavailable(err), "host key mismatch is not retryable")
}

func TestSFTPTransport_StalledHostIsRetryable(t *testing.T) {
	// Accepts connections but never speaks SSH
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				_, _ = io.Copy(io.Discard, conn)
				conn.Close()
			}()
		}
	}()

	host := startSFTPHost(t)
	host.port = ln.Addr().(*net.TCPAddr).Port
	tr := host.transport(t, 300*time.Millisecond)

	start := time.Now()
	err = tr.Copy(context.Background(),
		Location{Host: "127.0.0.1", Path: "/etc/hostname"},
		Local(filepath.Join(t.TempDir(), "scratch")))
	require.Error(t, err)
	assert.True(t, errdefs.IsUnavailable(err), "an interrupted copy is retryable")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSFTPTransport_BothSidesLocal(t *testing.T) {
	host := startSFTPHost(t)
	tr := host.transport(t, time.Second)

	err := tr.Copy(context.Background(), Local("/a"), Local("/b"))
	assert.True(t, errdefs.IsInvalidArgument(err))
}
